package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockTag is one badge served by the mock tag service.
type mockTag struct {
	Name     string `json:"name"`
	Tag      int    `json:"tag"`
	TagStyle string `json:"tagStyle,omitempty"`
}

// StartMockTagServer runs a mock tag service whose counters drift every few
// seconds. POST requests may restrict the answer with {"names": [...]}.
// Call this in a goroutine before creating the dashboard.
func StartMockTagServer(addr string) {
	var mu sync.Mutex
	tags := []mockTag{
		{Name: "mail-inbox", Tag: 3, TagStyle: "important"},
		{Name: "tasks", Tag: 12, TagStyle: "warning"},
		{Name: "approvals", Tag: 1, TagStyle: "info"},
	}

	go func() {
		for range time.Tick(5 * time.Second) {
			mu.Lock()
			i := rand.Intn(len(tags))
			tags[i].Tag = max(0, tags[i].Tag+rand.Intn(5)-2)
			slog.Info("tag changed", "name", tags[i].Name, "value", tags[i].Tag)
			mu.Unlock()
		}
	}()

	http.HandleFunc("/ws/tags", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Names []string `json:"names"`
		}
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		wanted := make(map[string]bool, len(req.Names))
		for _, n := range req.Names {
			wanted[n] = true
		}

		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		data := make([]mockTag, 0, len(tags))
		for _, t := range tags {
			if len(wanted) == 0 || wanted[t.Name] {
				data = append(data, t)
			}
		}
		mu.Unlock()

		slog.Info("tags requested", "method", r.Method, "count", len(data))

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"status": 0, "data": data}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
