package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/service"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/response"
)

type solverRunService interface {
	CreateAvailability(ctx context.Context, req dto.CreateAvailabilityRequest) (*models.Availability, error)
	CreateOptions(ctx context.Context, req dto.CreateSolverOptionsRequest) (*models.SolverOptions, error)
	CreateRun(ctx context.Context, req dto.CreateRunRequest) (*dto.RunResponse, error)
	Rerun(ctx context.Context, id string) (*dto.RunResponse, error)
	GetRun(ctx context.Context, id string) (*models.SolverRun, error)
	GetProgress(ctx context.Context, id string) (*models.RunProgress, error)
}

type exportService interface {
	Generate(ctx context.Context, runID string, format models.ExportFormat) (*service.ExportResult, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// SolverRunHandler exposes availability, options, run and export endpoints.
type SolverRunHandler struct {
	runs    solverRunService
	exports exportService
}

// NewSolverRunHandler constructs the handler. exports may be nil when no
// signing secret is configured.
func NewSolverRunHandler(runs solverRunService, exports exportService) *SolverRunHandler {
	return &SolverRunHandler{runs: runs, exports: exports}
}

// Register mounts the routes on group.
func (h *SolverRunHandler) Register(group *gin.RouterGroup) {
	group.POST("/availabilities", h.CreateAvailability)
	group.POST("/solver-options", h.CreateOptions)
	group.POST("/runs", h.CreateRun)
	group.GET("/runs/:id", h.GetRun)
	group.GET("/runs/:id/progress", h.GetProgress)
	group.GET("/runs/:id/schedule", h.GetSchedule)
	group.POST("/runs/:id/rerun", h.Rerun)
	group.GET("/runs/:id/export", h.Export)
	group.GET("/exports/:token", h.Download)
}

// CreateAvailability godoc
// @Summary Upload an availability table
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.CreateAvailabilityRequest true "Availability CSV"
// @Success 201 {object} response.Envelope
// @Router /availabilities [post]
func (h *SolverRunHandler) CreateAvailability(c *gin.Context) {
	var req dto.CreateAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	availability, err := h.runs.CreateAvailability(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, availability)
}

// CreateOptions godoc
// @Summary Store solver options
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.CreateSolverOptionsRequest true "Objective weights and constraints"
// @Success 201 {object} response.Envelope
// @Router /solver-options [post]
func (h *SolverRunHandler) CreateOptions(c *gin.Context) {
	var req dto.CreateSolverOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	opts, err := h.runs.CreateOptions(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, opts)
}

// CreateRun godoc
// @Summary Queue a solver run
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.CreateRunRequest true "Availability and options IDs"
// @Success 202 {object} response.Envelope
// @Router /runs [post]
func (h *SolverRunHandler) CreateRun(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	run, err := h.runs.CreateRun(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// Rerun godoc
// @Summary Queue a new run with the inputs of an existing one
// @Tags Scheduling
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} response.Envelope
// @Router /runs/{id}/rerun [post]
func (h *SolverRunHandler) Rerun(c *gin.Context) {
	run, err := h.runs.Rerun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// GetRun godoc
// @Summary Get a solver run
// @Tags Scheduling
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /runs/{id} [get]
func (h *SolverRunHandler) GetRun(c *gin.Context) {
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// GetProgress godoc
// @Summary Live progress of a solver run
// @Tags Scheduling
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /runs/{id}/progress [get]
func (h *SolverRunHandler) GetProgress(c *gin.Context) {
	progress, err := h.runs.GetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// GetSchedule returns the plain text schedule report of a finished run.
func (h *SolverRunHandler) GetSchedule(c *gin.Context) {
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !run.State.Terminal() {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("run is %s", run.State)))
		return
	}
	response.Text(c, http.StatusOK, run.Schedule)
}

// Export godoc
// @Summary Render a finished schedule
// @Tags Exports
// @Produce json
// @Param id path string true "Run ID"
// @Param format query string true "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /runs/{id}/export [get]
func (h *SolverRunHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled"))
		return
	}
	var req dto.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil || (req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	result, err := h.exports.Generate(c.Request.Context(), c.Param("id"), req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ExportResponse{URL: result.URL, Format: result.Format, ExpiresAt: result.ExpiresAt})
}

// Download streams an export referenced by a signed token.
func (h *SolverRunHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "private, no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}
