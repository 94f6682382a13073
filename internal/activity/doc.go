// Package activity provides the activity-aware poller used by navtags.
//
// A [Poller] runs a fetch operation on a fixed interval, but only while the
// user is considered present. Presence is inferred from qualifying input
// events (pointer, keyboard, wheel and touch) delivered through a [Source].
// After two intervals the poller goes dormant and waits for the next event.
//
// The main components are:
//
//   - [Poller]: the polling state machine
//   - [Hub]: in-process [Source] that fans events out to subscribers
//   - [Event]: a qualifying input event name
//   - [Clock]: timer primitives, replaceable in tests
//
// Users of the navtags library should not need to interact with this package
// directly, except through the hub returned by navtags.NavTags.Hub.
package activity
