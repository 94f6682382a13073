package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/peterbourgon/diskv/v3"
)

// snapshotKey is the single diskv key the cache writes.
const snapshotKey = "last-snapshot.json"

// DiskCache persists the last successful snapshot so a restarted dashboard
// can show last-known tags before the first fetch completes.
type DiskCache struct {
	d *diskv.Diskv
}

// NewDiskCache opens (and creates if needed) a cache rooted at dir.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		return nil, errors.New("store: cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure cache dir: %w", err)
	}

	return &DiskCache{d: diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 64 * 1024,
	})}, nil
}

// Save writes the snapshot, replacing any previous one.
func (c *DiskCache) Save(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	if err := c.d.Write(snapshotKey, data); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	return nil
}

// Load returns the cached snapshot. The bool is false when nothing has been
// saved yet.
func (c *DiskCache) Load() (Snapshot, bool, error) {
	if !c.d.Has(snapshotKey) {
		return Snapshot{}, false, nil
	}
	data, err := c.d.Read(snapshotKey)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("store: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Clear removes the cached snapshot.
func (c *DiskCache) Clear() error {
	return c.d.EraseAll()
}

// PersistentStore is a [Store] that writes successful snapshots through to a
// [DiskCache]. Failed fetches are published but never cached.
type PersistentStore struct {
	Store
	cache  *DiskCache
	logger *slog.Logger
}

// NewPersistentStore wraps inner and seeds it with the cached snapshot, if any.
// A corrupt cache is logged and ignored.
func NewPersistentStore(inner Store, cache *DiskCache, logger *slog.Logger) *PersistentStore {
	if logger == nil {
		logger = slog.Default()
	}

	snap, ok, err := cache.Load()
	switch {
	case err != nil:
		logger.Warn("ignoring tag cache", "error", err)
	case ok:
		inner.Update(snap)
	}

	return &PersistentStore{Store: inner, cache: cache, logger: logger}
}

// Update publishes the snapshot and caches it when the fetch succeeded.
func (p *PersistentStore) Update(snap Snapshot) {
	p.Store.Update(snap)
	if snap.Error != nil {
		return
	}
	if err := p.cache.Save(snap); err != nil {
		p.logger.Warn("failed to cache tags", "error", err)
	}
}
