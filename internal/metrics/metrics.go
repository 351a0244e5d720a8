// Package metrics exposes ingestion counters on a dedicated Prometheus
// listener, separate from the read API.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the ingestion counters onto one registry.
type Metrics struct {
	registry *prometheus.Registry

	ItemsProcessed *prometheus.CounterVec
	EventsCreated  prometheus.Counter
	SourcesAdded   prometheus.Counter
	FetchErrors    *prometheus.CounterVec
	ItemErrors     prometheus.Counter
}

// New builds a registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ItemsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_items_processed_total",
			Help: "Feed items that went through the dedup and merge engine.",
		}, []string{"source_type"}),
		EventsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "newsradar_events_created_total",
			Help: "New events created from ingested items.",
		}),
		SourcesAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "newsradar_sources_added_total",
			Help: "Source links attached to events.",
		}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_fetch_errors_total",
			Help: "Feed fetches that failed entirely.",
		}, []string{"source_type"}),
		ItemErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "newsradar_item_errors_total",
			Help: "Items that failed to persist and were skipped.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics listener until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	if logger != nil {
		logger.Info("metrics listener started", "addr", addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
