package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jefferson57-lab/greengrow-manager/api"
	"github.com/jefferson57-lab/greengrow-manager/ledger"
)

// shutdownTimeout bounds graceful shutdown once ctx is cancelled.
const shutdownTimeout = 10 * time.Second

// runServe serves the HTTP API until ctx is cancelled.
func runServe(ctx context.Context, a *App, l *ledger.Ledger, args []string) error {
	cfg := a.Config.Server

	fs := newFlagSet("serve")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	l.Logger = log.Default()
	h := api.NewHandler(l)
	h.DateLocation = a.Location
	router, err := api.NewRouter(h, api.Options{
		AllowedOrigins: cfg.CORSOrigins,
		RateLimit:      cfg.RateLimit,
	})
	if err != nil {
		return failf(err, "Starting server failed: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[api] listening on %s (driver=%s)", cfg.Addr, a.Config.DB.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return failf(err, "Server error: %v", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("[api] shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[api] error during shutdown: %v", err)
	}
	log.Println("[api] server stopped gracefully")
	return nil
}
