package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knapsweep/internal/experiment"
	"knapsweep/internal/score"
)

var _ experiment.Recorder = (*Metrics)(nil)

func TestRecorderUpdatesMetrics(t *testing.T) {
	m := New()
	m.RunCompleted(experiment.RunResult{
		Group:            experiment.GroupIncremental,
		GenerationBudget: 20,
		BestScore:        score.Feasible(42),
		Evaluations:      400,
		Elapsed:          250 * time.Millisecond,
	})
	m.RunCompleted(experiment.RunResult{
		Group:            experiment.GroupIncremental,
		GenerationBudget: 20,
		BestScore:        score.Infeasible(),
		Evaluations:      400,
		Elapsed:          time.Second,
	})
	m.RunFailed(experiment.Entry{Group: experiment.GroupBaseline, GenerationBudget: 50})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("incremental", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("baseline", "failed")))
	assert.Equal(t, 800.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("incremental")))
	assert.Equal(t, -1.0, testutil.ToFloat64(m.BestScore.WithLabelValues("incremental", "20")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RunFailed(experiment.Entry{Group: experiment.GroupBaseline})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `knapsweep_runs_total{group="baseline",status="failed"} 1`), body)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RunFailed(experiment.Entry{Group: experiment.GroupBaseline})
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RunsTotal.WithLabelValues("baseline", "failed")))
}
