// Package navtags provides an embeddable dashboard for the notification tags
// (unread counts, pending tasks) of a business application.
//
// The tag service is polled only while someone is using the dashboard. After
// each fetch the next one is scheduled one polling interval later, and an
// idle timeout of two intervals is armed. When it fires polling goes dormant
// until a user input event (pointer, key, wheel or touch) arrives.
//
// # Quick Start
//
//	src, _ := navtags.NewSource("https://erp.example.com/ws/tags")
//	nt, _ := navtags.New(navtags.WithSource(src))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	nt.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
//	nt, err := navtags.New(
//	    navtags.WithSource(src),
//	    navtags.WithPollingInterval(30 * time.Second),
//	    navtags.WithPort(9090),
//	    navtags.WithCacheDir("/var/cache/navtags"),
//	)
//
// Intervals below one second disable polling. The interval can be changed
// on a running instance with [NavTags.SetPollingInterval].
//
// # Decoders
//
// A [TagDecoder] turns the service response into tags:
//
//   - [DefaultDecoder]: the {"status": 0, "data": [...]} envelope or a bare array
//   - [JSONPathDecoder]: a tag array at a dot-separated path
//   - [FirstMatch]: tries decoders in order
//
// # Architecture
//
//   - internal/activity: the activity-aware poller and input event hub
//   - internal/remote: HTTP client for the tag service
//   - internal/store: latest snapshot with pub/sub and an optional disk cache
//   - internal/server: REST API, Server-Sent Events and activity reports
//   - dashboard: embedded web UI assets
package navtags
