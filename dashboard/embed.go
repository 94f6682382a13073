// Package dashboard provides the embedded web UI assets for navtags.
//
// The page renders the latest tags from the SSE stream and reports the
// browser's qualifying input events back to the server, which is how the
// poller learns that a user is present.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
