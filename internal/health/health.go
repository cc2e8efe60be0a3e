// Package health serves the keep-alive HTTP endpoint some hosting
// platforms require to consider the process healthy.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Status is the live state reported by /healthz.
type Status struct {
	Rules     int `json:"rules"`
	Directory int `json:"directory"`
	Ledger    int `json:"ledger"`
}

// StatusFunc supplies the current Status per request.
type StatusFunc func() Status

// Serve runs the health server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, status StatusFunc) error {
	started := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "chatrelay running")
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := struct {
			Status
			UptimeSeconds int64 `json:"uptime_seconds"`
		}{status(), int64(time.Since(started).Seconds())}
		_ = json.NewEncoder(w).Encode(payload)
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("health endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	}
}
