package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/solver"
	"github.com/noah-isme/lesson-scheduler/pkg/jobs"
)

// SolverRunWorker executes queued runs end to end.
type SolverRunWorker struct {
	runs           RunStore
	availabilities AvailabilityStore
	options        OptionsStore
	progress       ProgressCache
	solver         *SolverService
	metrics        *MetricsService
	logger         *zap.Logger
}

// NewSolverRunWorker constructs a worker.
func NewSolverRunWorker(runs RunStore, availabilities AvailabilityStore, options OptionsStore, progress ProgressCache, solverSvc *SolverService, metrics *MetricsService, logger *zap.Logger) *SolverRunWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolverRunWorker{
		runs:           runs,
		availabilities: availabilities,
		options:        options,
		progress:       progress,
		solver:         solverSvc,
		metrics:        metrics,
		logger:         logger,
	}
}

// Handle processes a queue job. Runs that fail are marked FAILED and not
// retried; an error is returned only when the run record cannot be read or
// claimed.
func (w *SolverRunWorker) Handle(ctx context.Context, job jobs.Job) error {
	log := w.logger.Sugar().With("run_id", job.ID)

	run, err := w.runs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if run.State != models.RunStateQueued {
		log.Debugw("skipping solver run", "state", string(run.State))
		return nil
	}
	startedAt := time.Now().UTC()
	claimed, err := w.runs.Claim(ctx, run.ID, startedAt)
	if err != nil {
		return err
	}
	if !claimed {
		log.Debugw("solver run claimed elsewhere")
		return nil
	}
	log.Infow("solver run started", "availability_id", run.AvailabilityID, "options_id", run.OptionsID)

	availability, err := w.availabilities.GetByID(ctx, run.AvailabilityID)
	if err != nil {
		w.fail(ctx, run.ID, err, false)
		return nil
	}
	opts, err := w.options.GetByID(ctx, run.OptionsID)
	if err != nil {
		w.fail(ctx, run.ID, err, false)
		return nil
	}
	problem, err := w.solver.Prepare(availability, opts)
	if err != nil {
		w.fail(ctx, run.ID, err, false)
		return nil
	}

	preamble := w.solver.Preamble(problem)
	if err := w.runs.Update(ctx, run.ID, repository.UpdateSolverRunParams{SchedulerOutput: &preamble}); err != nil {
		log.Warnw("failed to store scheduler preamble", "error", err)
	}
	w.publish(ctx, &models.RunProgress{
		RunID:     run.ID,
		State:     models.RunStateRunning,
		Solution:  models.SolutionNone,
		UpdatedAt: time.Now().UTC(),
	})

	w.metrics.RunStarted()
	result, err := w.solver.Solve(ctx, run.ID, problem, w.checkpoint(run.ID, problem.ScoreFromObjective))
	if err != nil {
		w.fail(ctx, run.ID, err, true)
		return nil
	}

	if result.Mismatch != nil {
		w.metrics.ObserveScoreMismatch()
		log.Errorw("audited score does not match solver objective", "error", result.Mismatch)
	}

	done := models.RunStateDone
	finishedAt := time.Now().UTC()
	noError := ""
	params := repository.UpdateSolverRunParams{
		State:           &done,
		Solution:        &result.Solution,
		Score:           result.Score,
		SchedulerOutput: &result.SchedulerOutput,
		SolverOutput:    &result.SolverOutput,
		Schedule:        &result.Schedule,
		Lessons:         &result.Lessons,
		ErrorMessage:    &noError,
		FinishedAt:      &finishedAt,
	}
	// Persist the terminal state even when the job context was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	if err := w.runs.Update(persistCtx, run.ID, params); err != nil {
		log.Errorw("failed to store solver result", "error", err)
		return err
	}
	w.clearProgress(persistCtx, run.ID)
	w.metrics.RunFinished(done, result.Solution, string(result.StopReason), result.Outcome.Elapsed, true)
	log.Infow("solver run finished",
		"solution", string(result.Solution),
		"stop_reason", string(result.StopReason),
		"elapsed", result.Outcome.Elapsed.String(),
	)
	return nil
}

// checkpoint persists intermediate solver progress onto the run record.
func (w *SolverRunWorker) checkpoint(runID string, score func(int) int) solver.CheckpointFunc {
	return func(ctx context.Context, p solver.Progress) error {
		transcript := p.Transcript
		params := repository.UpdateSolverRunParams{SolverOutput: &transcript}
		snapshot := &models.RunProgress{
			RunID:      runID,
			State:      models.RunStateRunning,
			Solution:   models.SolutionNone,
			Objective:  p.Objective,
			OutputTail: tail(transcript, outputTailSize),
			Elapsed:    p.Elapsed.Round(time.Millisecond).String(),
			UpdatedAt:  time.Now().UTC(),
		}
		if p.Objective != nil {
			value := score(*p.Objective)
			solution := models.SolutionFound
			snapshot.Score = &value
			snapshot.Solution = solution
			if p.Improved {
				params.Score = &value
				params.Solution = &solution
				w.metrics.ObserveImprovement()
			}
		}
		w.publish(ctx, snapshot)
		return w.runs.Update(ctx, runID, params)
	}
}

func (w *SolverRunWorker) publish(ctx context.Context, snapshot *models.RunProgress) {
	if w.progress == nil {
		return
	}
	if err := w.progress.Set(ctx, snapshot); err != nil {
		w.logger.Sugar().Warnw("failed to publish run progress", "run_id", snapshot.RunID, "error", err)
	}
}

func (w *SolverRunWorker) clearProgress(ctx context.Context, runID string) {
	if w.progress == nil {
		return
	}
	if err := w.progress.Delete(ctx, runID); err != nil {
		w.logger.Sugar().Warnw("failed to clear run progress", "run_id", runID, "error", err)
	}
}

func (w *SolverRunWorker) fail(ctx context.Context, runID string, cause error, started bool) {
	ctx = context.WithoutCancel(ctx)
	w.logger.Sugar().Errorw("solver run failed", "run_id", runID, "error", cause)
	failed := models.RunStateFailed
	msg := cause.Error()
	now := time.Now().UTC()
	if err := w.runs.Update(ctx, runID, repository.UpdateSolverRunParams{
		State:        &failed,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark solver run failed", "run_id", runID, "error", err)
	}
	w.clearProgress(ctx, runID)
	w.metrics.RunFinished(failed, models.SolutionNone, "", 0, started)
}
