package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/service"
)

func TestMetricsHandlerHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := NewMetricsHandler(nil, map[string]HealthCheck{
		"store": func(ctx context.Context) error { return nil },
	})
	degraded := NewMetricsHandler(nil, map[string]HealthCheck{
		"store": func(ctx context.Context) error { return nil },
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})

	router := gin.New()
	router.GET("/health", healthy.Health)
	router.GET("/degraded", degraded.Health)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/degraded", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Components["store"])
	assert.Equal(t, "connection refused", body.Components["redis"])
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.ObserveImprovement()

	router := gin.New()
	h := NewMetricsHandler(metrics, nil)
	router.GET("/metrics", h.Prometheus)
	router.GET("/stats", h.Stats)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "solver_objective_improvements_total 1")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	unavailable := NewMetricsHandler(nil, nil)
	router.GET("/none", unavailable.Prometheus)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/none", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
