package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

func TestMetricsServiceRunCounters(t *testing.T) {
	m := NewMetricsService()

	m.RunStarted()
	m.RunStarted()
	m.ObserveImprovement()
	m.ObserveScoreMismatch()
	m.RunFinished(models.RunStateDone, models.SolutionOptimal, "exited", 3*time.Second, true)
	m.RunFinished(models.RunStateFailed, models.SolutionNone, "", 0, true)
	m.RunFinished(models.RunStateFailed, models.SolutionNone, "", 0, false)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/runs/:id", http.StatusOK, time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RunsStarted)
	assert.Equal(t, uint64(1), snap.RunsFinished)
	assert.Equal(t, uint64(2), snap.RunsFailed)
	assert.Equal(t, int64(0), snap.RunsActive)
	assert.Equal(t, uint64(1), snap.ScoreMismatch)
	assert.Equal(t, uint64(1), snap.RequestsTotal)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `solver_runs_total{solution="OPTIMAL",state="DONE"} 1`)
	assert.Contains(t, body, `solver_runs_total{solution="NO_SOLUTION",state="FAILED"} 2`)
	assert.Contains(t, body, "solver_objective_improvements_total 1")
	assert.Contains(t, body, `solver_run_duration_seconds_count{stop_reason="exited"} 1`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RunStarted()
	m.RunFinished(models.RunStateDone, models.SolutionFound, "exited", time.Second, true)
	m.RecordCacheOperation(true)
	assert.Equal(t, models.MetricsSnapshot{}, m.Snapshot())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
