// Package metrics exposes Prometheus instrumentation for the collector.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lsx_collector"

// Outcomes used as status labels.
const (
	StatusConverted  = "converted"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
	StatusLoaded     = "loaded"
	StatusDownloaded = "downloaded"
)

// Metrics holds the collector's instruments.
type Metrics struct {
	Registry *prometheus.Registry

	Documents       *prometheus.CounterVec
	PagesSkipped    prometheus.Counter
	MalformedRows   prometheus.Counter
	TradesParsed    prometheus.Counter
	RowsUpserted    prometheus.Counter
	ParseDuration   prometheus.Histogram
	Downloads       *prometheus.CounterVec
	LastSyncSuccess prometheus.Gauge
}

// New creates the instruments and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Kursblatt documents processed, by outcome.",
		}, []string{"status"}),
		PagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_skipped_total",
			Help:      "Pages whose text could not be extracted.",
		}),
		MalformedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_rows_total",
			Help:      "Trade rows dropped because of a known extraction defect.",
		}),
		TradesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_parsed_total",
			Help:      "Trade records assembled from reports.",
		}),
		RowsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_upserted_total",
			Help:      "Share transactions written to the database.",
		}),
		ParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time to parse one document.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Source downloads, by kind and outcome.",
		}, []string{"kind", "status"}),
		LastSyncSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync job.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Documents,
		m.PagesSkipped,
		m.MalformedRows,
		m.TradesParsed,
		m.RowsUpserted,
		m.ParseDuration,
		m.Downloads,
		m.LastSyncSuccess,
	)
	return m
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on port until ctx is done.
func (m *Metrics) Serve(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", slog.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
