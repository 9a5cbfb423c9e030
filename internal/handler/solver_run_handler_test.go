package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/service"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

type runServiceMock struct {
	availability *models.Availability
	options      *models.SolverOptions
	runResp      *dto.RunResponse
	run          *models.SolverRun
	progress     *models.RunProgress
	err          error

	lastRunReq dto.CreateRunRequest
	lastID     string
}

func (m *runServiceMock) CreateAvailability(ctx context.Context, req dto.CreateAvailabilityRequest) (*models.Availability, error) {
	return m.availability, m.err
}

func (m *runServiceMock) CreateOptions(ctx context.Context, req dto.CreateSolverOptionsRequest) (*models.SolverOptions, error) {
	return m.options, m.err
}

func (m *runServiceMock) CreateRun(ctx context.Context, req dto.CreateRunRequest) (*dto.RunResponse, error) {
	m.lastRunReq = req
	return m.runResp, m.err
}

func (m *runServiceMock) Rerun(ctx context.Context, id string) (*dto.RunResponse, error) {
	m.lastID = id
	return m.runResp, m.err
}

func (m *runServiceMock) GetRun(ctx context.Context, id string) (*models.SolverRun, error) {
	m.lastID = id
	return m.run, m.err
}

func (m *runServiceMock) GetProgress(ctx context.Context, id string) (*models.RunProgress, error) {
	m.lastID = id
	return m.progress, m.err
}

type exportServiceMock struct {
	result     *service.ExportResult
	download   *service.ExportDownload
	err        error
	lastFormat models.ExportFormat
}

func (m *exportServiceMock) Generate(ctx context.Context, runID string, format models.ExportFormat) (*service.ExportResult, error) {
	m.lastFormat = format
	return m.result, m.err
}

func (m *exportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	return m.download, m.err
}

func newRouter(runs solverRunService, exports exportService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewSolverRunHandler(runs, exports).Register(router.Group("/api/v1"))
	return router
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestSolverRunHandlerCreateRun(t *testing.T) {
	mock := &runServiceMock{runResp: &dto.RunResponse{ID: "run-1", State: models.RunStateQueued, Solution: models.SolutionNone}}
	router := newRouter(mock, nil)

	w := do(router, http.MethodPost, "/api/v1/runs", dto.CreateRunRequest{AvailabilityID: "a-1", OptionsID: "o-1"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "a-1", mock.lastRunReq.AvailabilityID)

	var resp dto.RunResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, "run-1", resp.ID)
	assert.Equal(t, models.RunStateQueued, resp.State)
}

func TestSolverRunHandlerInvalidJSON(t *testing.T) {
	router := newRouter(&runServiceMock{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availabilities", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestSolverRunHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{appErrors.Clone(appErrors.ErrFormat, "line 1: bad header"), http.StatusUnprocessableEntity},
		{appErrors.Clone(appErrors.ErrConfig, "no slots for Bob"), http.StatusUnprocessableEntity},
		{appErrors.Clone(appErrors.ErrNotFound, "solver run not found"), http.StatusNotFound},
	}
	for _, tc := range cases {
		router := newRouter(&runServiceMock{err: tc.err}, nil)
		w := do(router, http.MethodPost, "/api/v1/availabilities", dto.CreateAvailabilityRequest{CSVData: "x"})
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestSolverRunHandlerCreateInputs(t *testing.T) {
	mock := &runServiceMock{
		availability: &models.Availability{ID: "a-1"},
		options:      &models.SolverOptions{ID: "o-1"},
	}
	router := newRouter(mock, nil)

	w := do(router, http.MethodPost, "/api/v1/availabilities", dto.CreateAvailabilityRequest{CSVData: "Schedule, M 9:00"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(router, http.MethodPost, "/api/v1/solver-options", dto.CreateSolverOptionsRequest{DayOffBonus: 5})
	assert.Equal(t, http.StatusCreated, w.Code)
	var opts models.SolverOptions
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &opts))
	assert.Equal(t, "o-1", opts.ID)
}

func TestSolverRunHandlerGetRunAndProgress(t *testing.T) {
	score := 12
	mock := &runServiceMock{
		run:      &models.SolverRun{ID: "run-1", State: models.RunStateDone, Solution: models.SolutionOptimal, Score: &score, Schedule: "Pupil Session Times.\n"},
		progress: &models.RunProgress{RunID: "run-1", State: models.RunStateRunning, Score: &score},
	}
	router := newRouter(mock, nil)

	w := do(router, http.MethodGet, "/api/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-1", mock.lastID)

	w = do(router, http.MethodGet, "/api/v1/runs/run-1/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var progress models.RunProgress
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &progress))
	assert.Equal(t, models.RunStateRunning, progress.State)

	w = do(router, http.MethodGet, "/api/v1/runs/run-1/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Pupil Session Times.\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	mock.run.State = models.RunStateRunning
	w = do(router, http.MethodGet, "/api/v1/runs/run-1/schedule", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestSolverRunHandlerRerun(t *testing.T) {
	mock := &runServiceMock{runResp: &dto.RunResponse{ID: "run-2", State: models.RunStateQueued}}
	router := newRouter(mock, nil)

	w := do(router, http.MethodPost, "/api/v1/runs/run-1/rerun", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "run-1", mock.lastID)
}

func TestSolverRunHandlerExport(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	exports := &exportServiceMock{result: &service.ExportResult{URL: "/api/v1/exports/tok", Format: models.ExportFormatPDF, ExpiresAt: expires}}
	router := newRouter(&runServiceMock{}, exports)

	w := do(router, http.MethodGet, "/api/v1/runs/run-1/export?format=pdf", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ExportFormatPDF, exports.lastFormat)
	var resp dto.ExportResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, "/api/v1/exports/tok", resp.URL)
	assert.True(t, expires.Equal(resp.ExpiresAt))

	w = do(router, http.MethodGet, "/api/v1/runs/run-1/export?format=xlsx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSolverRunHandlerExportDisabled(t *testing.T) {
	router := newRouter(&runServiceMock{}, nil)
	w := do(router, http.MethodGet, "/api/v1/runs/run-1/export?format=csv", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = do(router, http.MethodGet, "/api/v1/exports/tok", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSolverRunHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.csv")
	require.NoError(t, os.WriteFile(path, []byte("Day,Start\nM,9:00\n"), 0o644))
	file, err := os.Open(path)
	require.NoError(t, err)

	exports := &exportServiceMock{download: &service.ExportDownload{File: file, Filename: "schedule.csv", ContentType: "text/csv"}}
	router := newRouter(&runServiceMock{}, exports)

	w := do(router, http.MethodGet, "/api/v1/exports/tok", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Day,Start\nM,9:00\n", w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="schedule.csv"`, w.Header().Get("Content-Disposition"))

	exports.err = appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	w = do(router, http.MethodGet, "/api/v1/exports/tok", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
