// Standalone mock tag service for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/navtags serve -c example/navtags.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

func main() {
	fmt.Println("Mock tag service starting on :9999")
	fmt.Println("GET or POST /ws/tags; counters drift every 5s")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu   sync.Mutex
		tags = map[string]int{"mail-inbox": 3, "tasks": 12, "approvals": 1}
	)

	go func() {
		names := []string{"mail-inbox", "tasks", "approvals"}
		for range time.Tick(5 * time.Second) {
			mu.Lock()
			name := names[rand.Intn(len(names))]
			tags[name] = max(0, tags[name]+rand.Intn(5)-2)
			mu.Unlock()
		}
	}()

	http.HandleFunc("/ws/tags", func(w http.ResponseWriter, r *http.Request) {
		// ?fail=1 simulates an outage
		if r.URL.Query().Get("fail") != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status": -1, "data": {"message": "service unavailable"}}`))
			return
		}

		mu.Lock()
		data := make([]map[string]any, 0, len(tags))
		for name, count := range tags {
			data = append(data, map[string]any{"name": name, "tag": count})
		}
		mu.Unlock()

		slog.Info("tags requested", "method", r.Method, "count", len(data))

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"status": 0, "data": data}); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
