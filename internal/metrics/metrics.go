// Package metrics exposes sweep telemetry to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"knapsweep/internal/experiment"
)

// Metrics implements experiment.Recorder on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	EvaluationsTotal *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	BestScore        *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knapsweep_runs_total",
				Help: "Total number of evolutionary runs by outcome",
			},
			[]string{"group", "status"},
		),
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knapsweep_evaluations_total",
				Help: "Total number of genome evaluations",
			},
			[]string{"group"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "knapsweep_run_duration_seconds",
				Help:    "Wall time of a single run",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"group"},
		),
		BestScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "knapsweep_best_score",
				Help: "Best-of-run score of the latest run per budget; -1 when infeasible",
			},
			[]string{"group", "budget"},
		),
	}
}

func (m *Metrics) RunCompleted(result experiment.RunResult) {
	group := string(result.Group)
	m.RunsTotal.WithLabelValues(group, "completed").Inc()
	m.EvaluationsTotal.WithLabelValues(group).Add(float64(result.Evaluations))
	m.RunDuration.WithLabelValues(group).Observe(result.Elapsed.Seconds())
	m.BestScore.WithLabelValues(group, strconv.Itoa(result.GenerationBudget)).Set(float64(result.BestScore.Int()))
}

func (m *Metrics) RunFailed(entry experiment.Entry) {
	m.RunsTotal.WithLabelValues(string(entry.Group), "failed").Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
