package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the solver workers.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runsActive      prometheus.Gauge
	improvements    prometheus.Counter
	scoreMismatches prometheus.Counter

	requestCount  uint64
	runsStarted   uint64
	runsFinished  uint64
	runsFailed    uint64
	activeRuns    int64
	mismatchCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_cache_hits_total",
		Help: "Progress lookups answered from the cache",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_cache_misses_total",
		Help: "Progress lookups that fell back to the run record",
	})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_runs_total",
		Help: "Finished solver runs by final state and solution",
	}, []string{"state", "solution"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_run_duration_seconds",
		Help:    "Wall time of solver processes",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"stop_reason"})

	runsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solver_runs_active",
		Help: "Solver processes currently running",
	})

	improvements := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solver_objective_improvements_total",
		Help: "Objective improvements reported by solver processes",
	})

	scoreMismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solver_score_mismatches_total",
		Help: "Runs whose audited penalty disagreed with the solver objective",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, runsTotal, runDuration, runsActive, improvements, scoreMismatches, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		runsActive:      runsActive,
		improvements:    improvements,
		scoreMismatches: scoreMismatches,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records a progress cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RunStarted marks a solver process as running.
func (m *MetricsService) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
	atomic.AddUint64(&m.runsStarted, 1)
	atomic.AddInt64(&m.activeRuns, 1)
}

// RunFinished records the terminal state of a run. stopReason is empty when
// the run failed before the solver was launched.
func (m *MetricsService) RunFinished(state models.RunState, solution models.Solution, stopReason string, elapsed time.Duration, started bool) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(state), string(solution)).Inc()
	if started {
		m.runsActive.Dec()
		atomic.AddInt64(&m.activeRuns, -1)
	}
	if stopReason != "" {
		m.runDuration.WithLabelValues(stopReason).Observe(elapsed.Seconds())
	}
	if state == models.RunStateFailed {
		atomic.AddUint64(&m.runsFailed, 1)
	} else {
		atomic.AddUint64(&m.runsFinished, 1)
	}
}

// ObserveImprovement counts an objective improvement.
func (m *MetricsService) ObserveImprovement() {
	if m == nil {
		return
	}
	m.improvements.Inc()
}

// ObserveScoreMismatch counts an audit disagreement.
func (m *MetricsService) ObserveScoreMismatch() {
	if m == nil {
		return
	}
	m.scoreMismatches.Inc()
	atomic.AddUint64(&m.mismatchCount, 1)
}

// Snapshot returns aggregated counters for the status endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	return models.MetricsSnapshot{
		RequestsTotal: atomic.LoadUint64(&m.requestCount),
		RunsStarted:   atomic.LoadUint64(&m.runsStarted),
		RunsFinished:  atomic.LoadUint64(&m.runsFinished),
		RunsFailed:    atomic.LoadUint64(&m.runsFailed),
		RunsActive:    atomic.LoadInt64(&m.activeRuns),
		ScoreMismatch: atomic.LoadUint64(&m.mismatchCount),
		Goroutines:    runtime.NumGoroutine(),
		GeneratedAt:   time.Now().UTC(),
	}
}
