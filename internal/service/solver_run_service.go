package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/pbo"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/jobs"
)

// JobTypeSolve is the queue job type for solver runs.
const JobTypeSolve = "solve"

const outputTailSize = 4096

// RunStore persists solver runs; PostgreSQL and Badger both implement it.
type RunStore interface {
	Create(ctx context.Context, run *models.SolverRun) error
	GetByID(ctx context.Context, id string) (*models.SolverRun, error)
	Update(ctx context.Context, id string, params repository.UpdateSolverRunParams) error
	Claim(ctx context.Context, id string, startedAt time.Time) (bool, error)
	ListQueued(ctx context.Context, limit int) ([]models.SolverRun, error)
	FailStale(ctx context.Context, startedBefore, finishedAt time.Time, message string) ([]string, error)
}

// AvailabilityStore persists uploaded preference tables.
type AvailabilityStore interface {
	Create(ctx context.Context, availability *models.Availability) error
	GetByID(ctx context.Context, id string) (*models.Availability, error)
}

// OptionsStore persists solver option sets.
type OptionsStore interface {
	Create(ctx context.Context, opts *models.SolverOptions) error
	GetByID(ctx context.Context, id string) (*models.SolverOptions, error)
}

// ProgressCache holds live run snapshots. It may be nil.
type ProgressCache interface {
	Get(ctx context.Context, runID string) (*models.RunProgress, error)
	Set(ctx context.Context, progress *models.RunProgress) error
	Delete(ctx context.Context, runID string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// SolverRunServiceConfig governs run creation and queue recovery.
type SolverRunServiceConfig struct {
	SolverVersion string
	RecoverLimit  int
	// StaleAfter is how long a run may stay RUNNING before the poller
	// assumes its worker died. Zero disables the sweep.
	StaleAfter time.Duration
}

// SolverRunService manages availabilities, options and the run lifecycle.
type SolverRunService struct {
	runs           RunStore
	availabilities AvailabilityStore
	options        OptionsStore
	progress       ProgressCache
	queue          jobDispatcher
	validator      *validator.Validate
	metrics        *MetricsService
	logger         *zap.Logger
	cfg            SolverRunServiceConfig
}

// NewSolverRunService constructs the service. queue may be nil when runs are
// only picked up by a separate worker process.
func NewSolverRunService(runs RunStore, availabilities AvailabilityStore, options OptionsStore, progress ProgressCache, queue jobDispatcher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg SolverRunServiceConfig) *SolverRunService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SolverVersion == "" {
		cfg.SolverVersion = DefaultSolverVersion
	}
	if cfg.RecoverLimit <= 0 {
		cfg.RecoverLimit = 50
	}
	return &SolverRunService{
		runs:           runs,
		availabilities: availabilities,
		options:        options,
		progress:       progress,
		queue:          queue,
		validator:      validate,
		metrics:        metrics,
		logger:         logger,
		cfg:            cfg,
	}
}

// DefaultSolverVersion is recorded on runs when no version is configured.
const DefaultSolverVersion = "v0.4"

// SetQueue attaches the dispatcher once the worker pool exists.
func (s *SolverRunService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateAvailability validates and stores a preference table.
func (s *SolverRunService) CreateAvailability(ctx context.Context, req dto.CreateAvailabilityRequest) (*models.Availability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	availability := &models.Availability{CSVData: req.CSVData, DefaultLength: req.DefaultLength}
	if _, err := LoadTable(availability); err != nil {
		return nil, err
	}
	if err := s.availabilities.Create(ctx, availability); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store availability")
	}
	return availability, nil
}

// CreateOptions validates and stores a set of solver options.
func (s *SolverRunService) CreateOptions(ctx context.Context, req dto.CreateSolverOptionsRequest) (*models.SolverOptions, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid solver options payload")
	}
	opts := &models.SolverOptions{
		ArriveLateBonus:                 req.ArriveLateBonus,
		LeaveEarlyBonus:                 req.LeaveEarlyBonus,
		DayOffBonus:                     req.DayOffBonus,
		PupilPreferencePenaltyList:      req.PupilPreferencePenaltyList,
		InstructorPreferencePenaltyList: req.InstructorPreferencePenaltyList,
		NoBreakPenalty:                  req.NoBreakPenalty,
		ComplexConstraints:              req.ComplexConstraints,
	}
	if _, err := pbo.ParseOptions(RawOptions(opts)); err != nil {
		return nil, err
	}
	if err := s.options.Create(ctx, opts); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store solver options")
	}
	return opts, nil
}

// CreateRun queues a solve for an existing availability and options pair.
func (s *SolverRunService) CreateRun(ctx context.Context, req dto.CreateRunRequest) (*dto.RunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run payload")
	}
	if _, err := s.availabilities.GetByID(ctx, req.AvailabilityID); err != nil {
		return nil, notFoundOr(err, "availability not found", "failed to load availability")
	}
	if _, err := s.options.GetByID(ctx, req.OptionsID); err != nil {
		return nil, notFoundOr(err, "solver options not found", "failed to load solver options")
	}
	return s.queueRun(ctx, req.AvailabilityID, req.OptionsID)
}

// Rerun queues a fresh run with the inputs of an existing one.
func (s *SolverRunService) Rerun(ctx context.Context, id string) (*dto.RunResponse, error) {
	original, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "solver run not found", "failed to load solver run")
	}
	return s.queueRun(ctx, original.AvailabilityID, original.OptionsID)
}

func (s *SolverRunService) queueRun(ctx context.Context, availabilityID, optionsID string) (*dto.RunResponse, error) {
	run := &models.SolverRun{
		AvailabilityID: availabilityID,
		OptionsID:      optionsID,
		SolverVersion:  s.cfg.SolverVersion,
		State:          models.RunStateQueued,
		Solution:       models.SolutionNone,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create solver run")
	}
	s.dispatch(run.ID)
	return &dto.RunResponse{ID: run.ID, State: run.State, Solution: run.Solution}, nil
}

// dispatch hands a run to the local queue; the poller retries on failure.
func (s *SolverRunService) dispatch(id string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: JobTypeSolve}); err != nil {
		s.logger.Sugar().Warnw("failed to enqueue solver run", "run_id", id, "error", err)
	}
}

// GetRun returns a run record.
func (s *SolverRunService) GetRun(ctx context.Context, id string) (*models.SolverRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "solver run not found", "failed to load solver run")
	}
	return run, nil
}

// GetProgress prefers the live snapshot and falls back to the run record.
func (s *SolverRunService) GetProgress(ctx context.Context, id string) (*models.RunProgress, error) {
	if s.progress != nil {
		cached, err := s.progress.Get(ctx, id)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("progress cache lookup failed", "run_id", id, "error", err)
		}
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	progress := &models.RunProgress{
		RunID:      run.ID,
		State:      run.State,
		Solution:   run.Solution,
		Score:      run.Score,
		OutputTail: tail(run.SolverOutput, outputTailSize),
		UpdatedAt:  time.Now().UTC(),
	}
	if run.StartedAt != nil {
		end := time.Now()
		if run.FinishedAt != nil {
			end = *run.FinishedAt
		}
		progress.Elapsed = end.Sub(*run.StartedAt).Round(time.Millisecond).String()
	}
	return progress, nil
}

// FailStaleRuns marks runs whose worker outlived every solver time limit
// as FAILED.
func (s *SolverRunService) FailStaleRuns(ctx context.Context) int {
	if s.cfg.StaleAfter <= 0 {
		return 0
	}
	now := time.Now().UTC()
	message := fmt.Sprintf("worker lost: run still RUNNING after %s", s.cfg.StaleAfter)
	ids, err := s.runs.FailStale(ctx, now.Add(-s.cfg.StaleAfter), now, message)
	if err != nil {
		s.logger.Sugar().Warnw("failed to sweep stale solver runs", "error", err)
		return 0
	}
	for _, id := range ids {
		s.logger.Sugar().Warnw("solver run marked failed, worker lost", "run_id", id)
		if s.progress != nil {
			if err := s.progress.Delete(ctx, id); err != nil {
				s.logger.Sugar().Debugw("failed to clear run progress", "run_id", id, "error", err)
			}
		}
	}
	return len(ids)
}

// RecoverPendingJobs fails stale runs and re-dispatches queued ones, e.g.
// after a restart.
func (s *SolverRunService) RecoverPendingJobs(ctx context.Context) int {
	s.FailStaleRuns(ctx)
	if s.queue == nil {
		return 0
	}
	pending, err := s.runs.ListQueued(ctx, s.cfg.RecoverLimit)
	if err != nil {
		s.logger.Sugar().Warnw("failed to list queued solver runs", "error", err)
		return 0
	}
	for _, run := range pending {
		s.dispatch(run.ID)
	}
	return len(pending)
}

// StartPolling re-dispatches queued runs on a cron schedule until ctx ends.
func (s *SolverRunService) StartPolling(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(spec, func() { s.RecoverPendingJobs(ctx) }); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, "invalid worker poll schedule")
	}
	scheduler.Start()
	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
	return scheduler, nil
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, appErrors.ErrNotFound) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
