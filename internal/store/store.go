package store

import "time"

// Tag is the storage representation of a single notification tag.
type Tag struct {
	// Name identifies the menu or view the tag belongs to.
	Name string `json:"name"`

	// Value is the badge text, usually a count.
	Value string `json:"value"`

	// Style is the badge style hint (e.g. "important", "warning").
	Style string `json:"style,omitempty"`
}

// Snapshot is the outcome of one tag fetch.
type Snapshot struct {
	// Tags holds the tags from the last successful fetch. A failed fetch
	// keeps the previous tags and only sets Error.
	Tags []Tag `json:"tags"`

	// FetchedAt is when the fetch completed.
	FetchedAt time.Time `json:"fetched_at"`

	// Error contains the failure message of the latest fetch, if any.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to tag snapshots.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update replaces the latest snapshot and notifies all subscribers.
	Update(snap Snapshot)

	// Latest returns the most recent snapshot, and false if there is none.
	Latest() (Snapshot, bool)

	// Subscribe returns a channel that receives snapshots.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}

// cloneSnapshot copies the tag slice so callers cannot alias stored data.
func cloneSnapshot(s Snapshot) Snapshot {
	if s.Tags != nil {
		s.Tags = append([]Tag(nil), s.Tags...)
	}
	return s
}
