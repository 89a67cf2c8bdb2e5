// Standalone mock analytics API for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/carepulse serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/carepulse/example/mockapi"
)

func main() {
	fmt.Println("Mock analytics API starting on :9999 (base URL http://localhost:9999/api/)")
	fmt.Println("Case counts grow on every request; unknown diseases return 404")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	api := mockapi.New(mockapi.Options{
		MinLatency: 50 * time.Millisecond,
		MaxLatency: 200 * time.Millisecond,
		Logger:     logger,
	})

	if err := http.ListenAndServe(":9999", http.StripPrefix("/api", api)); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
