// Package observability exposes Prometheus collectors for the ask pipeline.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	pipelineOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_pipeline_outcomes_total",
			Help: "Pipeline invocations by terminal state and error kind.",
		},
		[]string{"state", "kind"},
	)

	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insights_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages, retries included.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	pipelineRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_pipeline_retries_total",
			Help: "Retries of transient stage failures by stage and error kind.",
		},
		[]string{"stage", "kind"},
	)

	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insights_query_rows_returned",
			Help:    "Rows returned by executed queries.",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 500, 1000, 10000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineOutcomesTotal,
		pipelineStageDurationSeconds,
		pipelineRetriesTotal,
		queryRowsReturned,
	)
}

// ObserveOutcome counts one finished invocation. kind is empty on success.
func ObserveOutcome(state, kind string) {
	if kind == "" {
		kind = "none"
	}
	pipelineOutcomesTotal.WithLabelValues(state, kind).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementRetry(stage, kind string) {
	pipelineRetriesTotal.WithLabelValues(stage, kind).Inc()
}

func ObserveRows(rows int) {
	queryRowsReturned.Observe(float64(rows))
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
