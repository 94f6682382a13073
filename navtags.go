package navtags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/navtags/dashboard"
	"github.com/jpalmerr/navtags/internal/activity"
	"github.com/jpalmerr/navtags/internal/remote"
	"github.com/jpalmerr/navtags/internal/server"
	"github.com/jpalmerr/navtags/internal/store"
)

const (
	defaultPollingInterval = 10 * time.Second
	defaultPort            = 8080
)

// NavTags polls a tag service while the user is active and serves the
// resulting badges on a live dashboard.
//
// The typical lifecycle is:
//
//	nt, err := navtags.New(navtags.WithSource(src))
//	if err != nil {
//	    slog.Error("failed to create navtags", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	nt.Start(ctx) // blocks until context cancelled
type NavTags struct {
	title        string
	source       Source
	port         int
	headless     bool
	cacheDir     string
	logger       *slog.Logger
	tagCallbacks []func(TagResult)
	pollerOpts   []activity.Option

	hub    *activity.Hub
	client *remote.Client

	mu              sync.Mutex
	pollingInterval time.Duration
	runCtx          context.Context
	store           store.Store

	// pollerMu serializes poller replacement and is never held while waiting
	// on a fetch, so callbacks may change the interval
	pollerMu sync.Mutex
	poller   *activity.Poller
	// retired tracks replaced pollers until their last fetch returns
	retired sync.WaitGroup
}

// New creates a [NavTags] instance with the given options.
//
// A source must be configured via [WithSource]. Other options default to:
//   - Polling interval: 10 seconds
//   - Port: 8080
//
// Returns an error if no source is configured or if any option is invalid.
func New(opts ...Option) (*NavTags, error) {
	cfg := &ntConfig{
		pollingInterval: defaultPollingInterval,
		port:            defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.source == nil {
		return nil, errors.New("a tag source is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &NavTags{
		title:           cfg.title,
		source:          *cfg.source,
		port:            cfg.port,
		headless:        cfg.headless,
		cacheDir:        cfg.cacheDir,
		logger:          logger,
		tagCallbacks:    cfg.tagCallbacks,
		pollerOpts:      cfg.pollerOpts,
		hub:             activity.NewHub(),
		client:          remote.NewClient(),
		pollingInterval: cfg.pollingInterval,
	}, nil
}

// Start begins serving the dashboard and polling the tag service.
//
// Start is a blocking call that runs until ctx is cancelled. The first fetch
// happens immediately. Polling suspends after two intervals without a fetch
// being re-armed by activity, and resumes on the next input event reported
// by the dashboard or through [NavTags.ReportActivity].
//
// Returns nil on graceful shutdown. Returns an error if the cache cannot be
// opened or the HTTP server fails to start.
func (nt *NavTags) Start(ctx context.Context) error {
	nt.logger.Info("navtags starting", "source", nt.source.url)
	if !nt.headless {
		nt.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", nt.port))
	}

	if ctx.Err() != nil {
		return nil
	}

	var st store.Store = store.NewMemoryStore()
	if nt.cacheDir != "" {
		cache, err := store.NewDiskCache(nt.cacheDir)
		if err != nil {
			return fmt.Errorf("failed to open tag cache: %w", err)
		}
		st = store.NewPersistentStore(st, cache, nt.logger)
	}

	nt.mu.Lock()
	nt.store = st
	nt.mu.Unlock()

	if !nt.headless {
		httpServer := server.NewServer(st, nt.hub, nt.port, dashboard.Assets, nt.title, nt.logger)
		if err := httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	// only a running instance lets SetPollingInterval start pollers
	nt.mu.Lock()
	nt.runCtx = ctx
	nt.mu.Unlock()

	nt.restartPoller()

	<-ctx.Done()

	nt.pollerMu.Lock()
	p := nt.poller
	nt.poller = nil
	nt.pollerMu.Unlock()
	if p != nil {
		p.Stop()
	}
	nt.retired.Wait()
	nt.client.Close()

	nt.logger.Info("navtags stopped")
	return nil
}

// SetPollingInterval changes the polling interval.
//
// On a running instance the current poller is torn down, cancelling any
// fetch in flight, and a new one starts with an immediate fetch. An interval
// below one second stops polling until a valid interval is set. It is safe
// to call from a tag callback.
//
// Returns an error if the duration is negative.
func (nt *NavTags) SetPollingInterval(d time.Duration) error {
	if d < 0 {
		return errors.New("polling interval cannot be negative")
	}

	nt.mu.Lock()
	changed := nt.pollingInterval != d
	nt.pollingInterval = d
	running := nt.runCtx != nil && nt.runCtx.Err() == nil
	nt.mu.Unlock()

	if running && changed {
		nt.logger.Info("polling interval changed", "interval", d.String())
		nt.restartPoller()
	}
	return nil
}

// restartPoller replaces the current poller with one using the configured
// interval.
func (nt *NavTags) restartPoller() {
	nt.pollerMu.Lock()
	defer nt.pollerMu.Unlock()

	// a callback may be running on the old poller's fetch goroutine, so
	// cancel it here and let Start wait for it during shutdown
	if old := nt.poller; old != nil {
		old.Cancel()
		nt.poller = nil
		nt.retired.Add(1)
		go func() {
			defer nt.retired.Done()
			old.Wait()
		}()
	}

	nt.mu.Lock()
	interval := nt.pollingInterval
	ctx := nt.runCtx
	nt.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	opts := append([]activity.Option{activity.WithLogger(nt.logger)}, nt.pollerOpts...)
	p := activity.NewPoller(nt.fetchTags, interval, nt.hub, opts...)
	p.Start(ctx)
	nt.poller = p
}

// ReportActivity feeds a user input event, named as in the DOM (for example
// "mousemove" or "keypress"), to the poller. A dormant poller fetches
// immediately; otherwise the call has no effect.
//
// Returns an error for names that are not qualifying events.
func (nt *NavTags) ReportActivity(event string) error {
	ev, err := activity.ParseEvent(event)
	if err != nil {
		return err
	}
	nt.hub.Emit(ev)
	return nil
}

// Hub returns the activity hub the poller listens on.
func (nt *NavTags) Hub() *activity.Hub {
	return nt.hub
}

// FetchOnce performs a single fetch and decode without touching the store,
// the callbacks or the polling schedule.
func (nt *NavTags) FetchOnce(ctx context.Context) TagResult {
	resp := nt.client.Fetch(ctx, remote.Request{
		Method:  nt.source.method,
		URL:     nt.source.url,
		Headers: nt.source.headers,
		Names:   nt.source.names,
		Timeout: nt.source.timeout,
	})

	result := TagResult{
		FetchedAt:  time.Now(),
		Latency:    resp.Latency,
		StatusCode: resp.StatusCode,
	}
	if resp.Error != nil {
		result.Error = resp.Error
		return result
	}

	result.Tags, result.Error = nt.safeDecode(resp.Body)
	if result.Error != nil {
		result.Tags = nil
	}
	return result
}

// Source returns the configured tag source.
func (nt *NavTags) Source() Source {
	return nt.source
}

// Port returns the configured HTTP port for the dashboard server.
func (nt *NavTags) Port() int {
	return nt.port
}

// PollingInterval returns the current polling interval.
func (nt *NavTags) PollingInterval() time.Duration {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return nt.pollingInterval
}

// fetchTags is the poller's fetch function. It records the outcome and
// returns the fetch error, which the poller ignores.
func (nt *NavTags) fetchTags(ctx context.Context) error {
	result := nt.FetchOnce(ctx)

	// a teardown cancelled this fetch; its result is stale
	if ctx.Err() != nil {
		return ctx.Err()
	}

	nt.record(result)

	logAttrs := []any{
		"url", nt.source.url,
		"status_code", result.StatusCode,
		"latency_ms", result.Latency.Milliseconds(),
	}
	if result.Error != nil {
		nt.logger.Debug("tag fetch failed", append(logAttrs, "error", result.Error.Error())...)
	} else {
		nt.logger.Debug("tag fetch completed", append(logAttrs, "tag_count", len(result.Tags))...)
	}
	return result.Error
}

// record publishes a fetch result to the store, then to the callbacks.
func (nt *NavTags) record(result TagResult) {
	nt.mu.Lock()
	st := nt.store
	nt.mu.Unlock()

	if st != nil {
		st.Update(resultToSnapshot(result, st))
	}

	for _, cb := range nt.tagCallbacks {
		invokeCallbackSafe(cb, copyResult(result), nt.logger)
	}
}

// safeDecode calls the decoder with panic recovery.
// A panic is logged with its stack under a correlation ID, which is also
// carried by the returned error.
func (nt *NavTags) safeDecode(body []byte) (tags []Tag, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			nt.logger.Error("decoder panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			tags = nil
			err = fmt.Errorf("decoder panic (correlation_id: %s)", correlationID)
		}
	}()
	return nt.source.Decoder()(body)
}

// resultToSnapshot converts a fetch result to a store snapshot. A failed
// fetch keeps the tags of the previous snapshot.
func resultToSnapshot(result TagResult, st store.Store) store.Snapshot {
	snap := store.Snapshot{FetchedAt: result.FetchedAt}

	if result.Error != nil {
		msg := result.Error.Error()
		snap.Error = &msg
		if prev, ok := st.Latest(); ok {
			snap.Tags = prev.Tags
		}
		return snap
	}

	snap.Tags = make([]store.Tag, len(result.Tags))
	for i, tag := range result.Tags {
		snap.Tags[i] = store.Tag{Name: tag.Name, Value: tag.Value, Style: tag.Style}
	}
	return snap
}

// copyResult gives each callback its own tag slice.
func copyResult(r TagResult) TagResult {
	if r.Tags != nil {
		r.Tags = append([]Tag(nil), r.Tags...)
	}
	return r
}

// invokeCallbackSafe calls a tag callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(TagResult), result TagResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("tag callback panicked", "panic", r)
		}
	}()
	cb(result)
}
