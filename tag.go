package navtags

import "time"

// Tag is a single notification badge published by the business application,
// such as the unread count of a mail folder.
type Tag struct {
	// Name identifies the menu or view the tag belongs to.
	Name string `json:"name"`

	// Value is the badge text, usually a count.
	Value string `json:"value"`

	// Style is the badge style hint (e.g. "important", "warning").
	Style string `json:"style,omitempty"`
}

// TagDecoder turns a tag service response body into tags.
//
// Built-in decoders: [DefaultDecoder], [JSONPathDecoder] and [FirstMatch]
// for composition. Decoders are called within a panic recovery boundary; a
// panicking decoder fails the fetch with an error carrying a correlation ID.
type TagDecoder func(body []byte) ([]Tag, error)

// TagResult holds the outcome of one tag fetch.
//
// TagResult is passed to callbacks registered with [WithTagCallback].
type TagResult struct {
	// Tags holds the decoded tags. Nil when Error is set.
	Tags []Tag

	// FetchedAt is when the fetch completed.
	FetchedAt time.Time

	// Latency is the time taken by the HTTP request.
	Latency time.Duration

	// StatusCode is the HTTP status code, zero if no response arrived.
	StatusCode int

	// Error is set when the request, the status code or decoding failed.
	Error error
}
