// Package monitor serves a read-only HTTP view of a running engine:
// Prometheus metrics, the last published cycle snapshot and a health probe.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/snapshot"
)

// Source is the engine state the monitor reads. *engine.Engine implements
// it; every method is safe from other goroutines.
type Source interface {
	LastSnapshot() snapshot.Snapshot
	State() engine.RunState
	Outcome() engine.Outcome
	RunID() string
	Cycle() int64
}

// Health is the body of GET /healthz.
type Health struct {
	State   string `json:"state"`
	Outcome string `json:"outcome,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Cycle   int64  `json:"cycle"`
}

// NewHandler creates the monitor router. gatherer may be nil, in which case
// /metrics is not mounted.
func NewHandler(src Source, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		data, err := src.LastSnapshot().Canonical()
		if err != nil {
			http.Error(w, "encode snapshot: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := src.State()
		h := Health{
			State:   state.String(),
			Outcome: string(src.Outcome()),
			RunID:   src.RunID(),
			Cycle:   src.Cycle(),
		}
		w.Header().Set("Content-Type", "application/json")
		if state == engine.StateStopped || state == engine.StateEmergency {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})

	return r
}

// Serve listens on addr until ctx is done, then shuts the server down.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, h, logger)
}

func serve(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("monitor listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
