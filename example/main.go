package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/navtags"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockTagServer(":9999")
	time.Sleep(100 * time.Millisecond)

	src, err := navtags.NewSource("http://localhost:9999/ws/tags",
		navtags.WithMethod(http.MethodPost),
		navtags.WithNames("mail-inbox", "tasks"),
	)
	if err != nil {
		slog.Error("failed to create source", "error", err)
		os.Exit(1)
	}

	nt, err := navtags.New(
		navtags.WithSource(src),
		navtags.WithPollingInterval(2*time.Second),
		navtags.WithPort(8080),
		navtags.WithTitle("navtags demo"),
		navtags.WithTagCallback(func(r navtags.TagResult) {
			if r.Error != nil {
				return
			}
			for _, tag := range r.Tags {
				fmt.Printf("  %-12s %s\n", tag.Name, tag.Value)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create navtags", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  navtags demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser.")
	fmt.Println("  Polling runs every 2s, pauses after two intervals and resumes")
	fmt.Println("  on the next mouse or keyboard input on the page.")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := nt.Start(ctx); err != nil {
		slog.Error("navtags error", "error", err)
		os.Exit(1)
	}
}
