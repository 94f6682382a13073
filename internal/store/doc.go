// Package store keeps the latest tag snapshot and publishes updates.
//
// This package is internal to navtags. It implements a publish-subscribe
// pattern so the dashboard stream sees every new snapshot.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [DiskCache]: diskv-backed cache of the last good snapshot
//   - [PersistentStore]: Store wrapper that writes through to a DiskCache
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers miss updates rather than block the poller).
package store
