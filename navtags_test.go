package navtags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jpalmerr/navtags/internal/activity"
	"github.com/jpalmerr/navtags/internal/store"
)

const tagBody = `{"status": 0, "data": [{"name": "mail-inbox", "tag": 3, "tagStyle": "important"}]}`

// stepClock hands out timers that only fire when the test says so.
type stepClock struct {
	mu     sync.Mutex
	timers []*stepTimer
}

type stepTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *stepTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

func (c *stepClock) AfterFunc(d time.Duration, f func()) activity.Timer {
	t := &stepTimer{d: d, f: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// armed counts live timers of duration d.
func (c *stepClock) armed(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.d == d && !t.stopped.Load() {
			n++
		}
	}
	return n
}

// fire runs every live timer of duration d.
func (c *stepClock) fire(d time.Duration) {
	c.mu.Lock()
	var due []*stepTimer
	for _, t := range c.timers {
		if t.d == d && !t.stopped.Load() {
			t.stopped.Store(true)
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// newTagServer serves body with the given status and counts requests.
func newTagServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

// startInstance runs Start in the background and returns a stop function
// that cancels it and waits for Start to return.
func startInstance(t *testing.T, nt *NavTags) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- nt.Start(ctx)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Start() error = %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Error("Start() did not return after cancellation")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan TagResult) TagResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tag callback")
		return TagResult{}
	}
}

// newInstance builds a headless instance on a step clock with a buffered
// callback channel.
func newInstance(t *testing.T, url string, opts ...Option) (*NavTags, *stepClock, <-chan TagResult) {
	t.Helper()
	src, err := NewSource(url)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	clock := &stepClock{}
	results := make(chan TagResult, 16)
	base := []Option{
		WithSource(src),
		WithHeadless(),
		WithPollingInterval(time.Second),
		WithLogger(discardLogger()),
		WithTagCallback(func(r TagResult) { results <- r }),
		withPollerOptions(activity.WithClock(clock)),
	}

	nt, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return nt, clock, results
}

func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	ts, _ := newTagServer(t, http.StatusOK, tagBody)
	nt, _, results := newInstance(t, ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- nt.Start(ctx)
	}()

	receive(t, results)

	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, _, _ := newInstance(t, ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := nt.Start(ctx); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("fetches = %d, want 0", hits.Load())
	}
}

func TestStart_FetchesImmediately(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, clock, results := newInstance(t, ts.URL)
	startInstance(t, nt)

	r := receive(t, results)
	if r.Error != nil {
		t.Fatalf("result error = %v", r.Error)
	}
	if diff := cmp.Diff([]Tag{{Name: "mail-inbox", Value: "3", Style: "important"}}, r.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if r.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", r.StatusCode)
	}

	// next fetch after T, idle timeout after 2T
	waitFor(t, "timers armed", func() bool {
		return clock.armed(time.Second) == 1 && clock.armed(2*time.Second) == 1
	})
	if hits.Load() != 1 {
		t.Errorf("fetches = %d, want 1", hits.Load())
	}
}

func TestStart_FetchesOnInterval(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, clock, results := newInstance(t, ts.URL)
	startInstance(t, nt)

	receive(t, results)
	waitFor(t, "next fetch armed", func() bool { return clock.armed(time.Second) == 1 })

	clock.fire(time.Second)
	receive(t, results)

	if hits.Load() != 2 {
		t.Errorf("fetches = %d, want 2", hits.Load())
	}
}

func TestStart_IdleThenActivityResumes(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, clock, results := newInstance(t, ts.URL)
	startInstance(t, nt)

	receive(t, results)
	waitFor(t, "idle armed", func() bool { return clock.armed(2*time.Second) == 1 })

	clock.fire(2 * time.Second)
	if clock.armed(time.Second) != 0 {
		t.Error("idle timeout should cancel the next fetch")
	}

	if err := nt.ReportActivity("mousemove"); err != nil {
		t.Fatalf("ReportActivity() error = %v", err)
	}
	receive(t, results)

	if hits.Load() != 2 {
		t.Errorf("fetches = %d, want 2", hits.Load())
	}
}

func TestStart_ActivityWhileScheduledIsIgnored(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, clock, results := newInstance(t, ts.URL)
	startInstance(t, nt)

	receive(t, results)
	waitFor(t, "timers armed", func() bool { return clock.armed(time.Second) == 1 })

	for _, ev := range activity.QualifyingEvents() {
		nt.Hub().Emit(ev)
	}

	time.Sleep(50 * time.Millisecond)
	if hits.Load() != 1 {
		t.Errorf("fetches = %d, want 1", hits.Load())
	}
}

func TestStart_SubscribesToActivity(t *testing.T) {
	ts, _ := newTagServer(t, http.StatusOK, tagBody)
	nt, _, results := newInstance(t, ts.URL)
	stop := startInstance(t, nt)

	receive(t, results)
	for _, ev := range activity.QualifyingEvents() {
		if n := nt.Hub().Subscribers(ev); n != 1 {
			t.Errorf("Subscribers(%s) = %d, want 1", ev, n)
		}
	}

	stop()
	for _, ev := range activity.QualifyingEvents() {
		if n := nt.Hub().Subscribers(ev); n != 0 {
			t.Errorf("after stop: Subscribers(%s) = %d, want 0", ev, n)
		}
	}
}

func TestStart_DisabledBelowMinimum(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, _, _ := newInstance(t, ts.URL, WithPollingInterval(500*time.Millisecond))
	startInstance(t, nt)

	time.Sleep(100 * time.Millisecond)
	if hits.Load() != 0 {
		t.Errorf("fetches = %d, want 0", hits.Load())
	}
	if n := nt.Hub().Subscribers(activity.EventPointerMove); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
}

func TestStart_ServesTags(t *testing.T) {
	ts, _ := newTagServer(t, http.StatusOK, tagBody)
	port := freePort(t)

	src, err := NewSource(ts.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	results := make(chan TagResult, 4)
	nt, err := New(
		WithSource(src),
		WithPort(port),
		WithLogger(discardLogger()),
		WithTagCallback(func(r TagResult) { results <- r }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	startInstance(t, nt)
	receive(t, results)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/tags", port))
	if err != nil {
		t.Fatalf("GET /api/tags: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var snap store.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]store.Tag{{Name: "mail-inbox", Value: "3", Style: "important"}}, snap.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	src, err := NewSource("http://localhost:1/tags")
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	nt, err := New(
		WithSource(src),
		WithPort(ln.Addr().(*net.TCPAddr).Port),
		WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = nt.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("Start() error = %v, want bind failure", err)
	}

	// a failed Start leaves nothing running for SetPollingInterval to restart
	if err := nt.SetPollingInterval(2 * time.Second); err != nil {
		t.Fatalf("SetPollingInterval() error = %v", err)
	}
	nt.pollerMu.Lock()
	p := nt.poller
	nt.pollerMu.Unlock()
	if p != nil {
		t.Error("SetPollingInterval() after a failed Start created a poller")
	}
	if n := nt.Hub().Subscribers(activity.EventPointerMove); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
}

func TestStart_CacheSeedsStore(t *testing.T) {
	dir := t.TempDir()

	ok, _ := newTagServer(t, http.StatusOK, tagBody)
	first, _, results := newInstance(t, ok.URL, WithCacheDir(dir))
	stop := startInstance(t, first)
	receive(t, results)
	stop()

	failing, _ := newTagServer(t, http.StatusInternalServerError, `{}`)
	second, _, results := newInstance(t, failing.URL, WithCacheDir(dir))
	startInstance(t, second)

	r := receive(t, results)
	if r.Error == nil {
		t.Fatal("expected fetch error from failing source")
	}

	second.mu.Lock()
	st := second.store
	second.mu.Unlock()

	snap, found := st.Latest()
	if !found {
		t.Fatal("expected a snapshot")
	}
	if snap.Error == nil {
		t.Error("snapshot should carry the fetch error")
	}
	if diff := cmp.Diff([]store.Tag{{Name: "mail-inbox", Value: "3", Style: "important"}}, snap.Tags); diff != "" {
		t.Errorf("cached tags mismatch (-want +got):\n%s", diff)
	}
}

func TestSetPollingInterval_RestartsPoller(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, _, results := newInstance(t, ts.URL)
	startInstance(t, nt)
	receive(t, results)

	if err := nt.SetPollingInterval(2 * time.Second); err != nil {
		t.Fatalf("SetPollingInterval() error = %v", err)
	}
	receive(t, results)

	if hits.Load() != 2 {
		t.Errorf("fetches = %d, want 2", hits.Load())
	}
	if nt.PollingInterval() != 2*time.Second {
		t.Errorf("PollingInterval() = %v, want 2s", nt.PollingInterval())
	}

	// unchanged interval keeps the current poller
	if err := nt.SetPollingInterval(2 * time.Second); err != nil {
		t.Fatalf("SetPollingInterval() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if hits.Load() != 2 {
		t.Errorf("fetches = %d, want 2", hits.Load())
	}
}

func TestSetPollingInterval_FromCallback(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)

	changed := make(chan error, 1)
	var once sync.Once
	var nt *NavTags
	var results <-chan TagResult
	nt, _, results = newInstance(t, ts.URL, WithTagCallback(func(TagResult) {
		once.Do(func() {
			changed <- nt.SetPollingInterval(3 * time.Second)
		})
	}))
	stop := startInstance(t, nt)
	receive(t, results)

	select {
	case err := <-changed:
		if err != nil {
			t.Fatalf("SetPollingInterval() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SetPollingInterval() from a tag callback did not return")
	}

	// the replacement poller fetches immediately
	receive(t, results)
	if hits.Load() != 2 {
		t.Errorf("fetches = %d, want 2", hits.Load())
	}
	if nt.PollingInterval() != 3*time.Second {
		t.Errorf("PollingInterval() = %v, want 3s", nt.PollingInterval())
	}

	stop()
}

func TestSetPollingInterval_BelowMinimumStopsPolling(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, _, results := newInstance(t, ts.URL)
	startInstance(t, nt)
	receive(t, results)

	if err := nt.SetPollingInterval(0); err != nil {
		t.Fatalf("SetPollingInterval() error = %v", err)
	}
	if n := nt.Hub().Subscribers(activity.EventKeyPress); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
	if err := nt.ReportActivity("keypress"); err != nil {
		t.Fatalf("ReportActivity() error = %v", err)
	}

	if err := nt.SetPollingInterval(time.Second); err != nil {
		t.Fatalf("SetPollingInterval() error = %v", err)
	}
	receive(t, results)
	if hits.Load() != 2 {
		t.Errorf("fetches = %d, want 2", hits.Load())
	}
}

func TestSetPollingInterval_BeforeStart(t *testing.T) {
	ts, hits := newTagServer(t, http.StatusOK, tagBody)
	nt, _, _ := newInstance(t, ts.URL)

	if err := nt.SetPollingInterval(5 * time.Second); err != nil {
		t.Fatalf("SetPollingInterval() error = %v", err)
	}
	if nt.PollingInterval() != 5*time.Second {
		t.Errorf("PollingInterval() = %v, want 5s", nt.PollingInterval())
	}
	if hits.Load() != 0 {
		t.Errorf("fetches = %d, want 0", hits.Load())
	}
}

func TestSetPollingInterval_Negative(t *testing.T) {
	nt, _, _ := newInstance(t, "http://localhost:1/tags")
	if err := nt.SetPollingInterval(-time.Second); err == nil {
		t.Error("expected error for negative interval")
	}
}

func TestReportActivity_UnknownEvent(t *testing.T) {
	nt, _, _ := newInstance(t, "http://localhost:1/tags")
	if err := nt.ReportActivity("click"); err == nil {
		t.Error("expected error for non-qualifying event")
	}
}

func TestFetchOnce_PostsNames(t *testing.T) {
	var got struct {
		Names []string `json:"names"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	src, err := NewSource(ts.URL, WithMethod(http.MethodPost), WithNames("a", "b"))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	nt, err := New(WithSource(src), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r := nt.FetchOnce(context.Background())
	if r.Error != nil {
		t.Fatalf("FetchOnce() error = %v", r.Error)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got.Names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchOnce_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		decoder TagDecoder
		wantErr string
	}{
		{name: "non-2xx", status: http.StatusServiceUnavailable, body: `{}`, wantErr: "unexpected status 503"},
		{name: "service status", status: http.StatusOK, body: `{"status": 1}`, wantErr: "service returned status 1"},
		{
			name:   "decoder panic",
			status: http.StatusOK,
			body:   `[]`,
			decoder: func([]byte) ([]Tag, error) {
				panic("boom")
			},
			wantErr: "correlation_id",
		},
		{
			name:   "decoder error",
			status: http.StatusOK,
			body:   `[]`,
			decoder: func([]byte) ([]Tag, error) {
				return []Tag{{Name: "partial"}}, errors.New("bad payload")
			},
			wantErr: "bad payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTagServer(t, tt.status, tt.body)

			var opts []SourceOption
			if tt.decoder != nil {
				opts = append(opts, WithDecoder(tt.decoder))
			}
			src, err := NewSource(ts.URL, opts...)
			if err != nil {
				t.Fatalf("NewSource() error = %v", err)
			}
			nt, err := New(WithSource(src), WithLogger(discardLogger()))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			r := nt.FetchOnce(context.Background())
			if r.Error == nil || !strings.Contains(r.Error.Error(), tt.wantErr) {
				t.Fatalf("FetchOnce() error = %v, want containing %q", r.Error, tt.wantErr)
			}
			if r.Tags != nil {
				t.Errorf("Tags = %v, want nil on error", r.Tags)
			}
			if r.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", r.StatusCode, tt.status)
			}
		})
	}
}

func TestRecord_FailureKeepsPreviousTags(t *testing.T) {
	nt, _, results := newInstance(t, "http://localhost:1/tags")
	st := store.NewMemoryStore()
	nt.store = st

	nt.record(TagResult{Tags: []Tag{{Name: "a", Value: "1"}}, FetchedAt: time.Now()})
	nt.record(TagResult{Error: errors.New("connection refused"), FetchedAt: time.Now()})

	snap, ok := st.Latest()
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.Error == nil || *snap.Error != "connection refused" {
		t.Errorf("Error = %v, want connection refused", snap.Error)
	}
	if diff := cmp.Diff([]store.Tag{{Name: "a", Value: "1"}}, snap.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	if len(results) != 2 {
		t.Errorf("callbacks = %d, want 2", len(results))
	}
}

func TestRecord_CallbackPanicRecovered(t *testing.T) {
	var calls atomic.Int32
	src, err := NewSource("http://localhost:1/tags")
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	nt, err := New(
		WithSource(src),
		WithLogger(discardLogger()),
		WithTagCallback(func(TagResult) { panic("callback bug") }),
		WithTagCallback(func(TagResult) { calls.Add(1) }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	nt.record(TagResult{})

	if calls.Load() != 1 {
		t.Errorf("second callback calls = %d, want 1", calls.Load())
	}
}

func TestRecord_CallbacksGetOwnTags(t *testing.T) {
	var second []Tag
	src, err := NewSource("http://localhost:1/tags")
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	nt, err := New(
		WithSource(src),
		WithLogger(discardLogger()),
		WithTagCallback(func(r TagResult) { r.Tags[0].Value = "mutated" }),
		WithTagCallback(func(r TagResult) { second = r.Tags }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	nt.record(TagResult{Tags: []Tag{{Name: "a", Value: "1"}}})

	if second[0].Value != "1" {
		t.Errorf("second callback saw %q, want unmodified value", second[0].Value)
	}
}

func TestFetchTags_CancelledFetchNotRecorded(t *testing.T) {
	ts, _ := newTagServer(t, http.StatusOK, tagBody)
	nt, _, results := newInstance(t, ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := nt.fetchTags(ctx); err == nil {
		t.Error("expected context error")
	}
	if len(results) != 0 {
		t.Errorf("callbacks = %d, want 0", len(results))
	}
}
