package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navtags.yaml")
	writeConfig(t, path, "polling_interval: 5s\nsource:\n  url: https://example.com\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeConfig(t, path, "polling_interval: 20s\nsource:\n  url: https://example.com\n")

	select {
	case cfg := <-updates:
		if cfg.Interval() != 20*time.Second {
			t.Errorf("Interval() = %v, want 20s", cfg.Interval())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_SkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "navtags.yaml")
	writeConfig(t, path, "source:\n  url: https://example.com\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeConfig(t, path, "source: [")

	// unrelated files in the same directory are ignored
	writeConfig(t, filepath.Join(dir, "other.yaml"), "x: 1")

	select {
	case cfg := <-updates:
		t.Fatalf("unexpected reload: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}

	writeConfig(t, path, "port: 9000\nsource:\n  url: https://example.com\n")

	select {
	case cfg := <-updates:
		if cfg.Port != 9000 {
			t.Errorf("Port = %d, want 9000", cfg.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after fixing config")
	}
}

func TestWatch_ClosesOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navtags.yaml")
	writeConfig(t, path, "source:\n  url: https://example.com\n")

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := Watch(ctx, path, nil)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-updates:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "navtags.yaml")
	if _, err := Watch(context.Background(), path, nil); err == nil {
		t.Error("Watch() on a missing directory should fail")
	}
}
