package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

const solverRunColumns = `id, availability_id, options_id, solver_version, state, solution, score, scheduler_output, solver_output, schedule, lessons, error_message, created_at, started_at, finished_at`

// SolverRunRepository persists solver runs in PostgreSQL.
type SolverRunRepository struct {
	db *sqlx.DB
}

// NewSolverRunRepository constructs the repository.
func NewSolverRunRepository(db *sqlx.DB) *SolverRunRepository {
	return &SolverRunRepository{db: db}
}

// Create inserts a new run row with generated defaults.
func (r *SolverRunRepository) Create(ctx context.Context, run *models.SolverRun) error {
	prepareRun(run)
	const query = `INSERT INTO solver_runs (id, availability_id, options_id, solver_version, state, solution, score, scheduler_output, solver_output, schedule, lessons, error_message, created_at, started_at, finished_at)
VALUES (:id, :availability_id, :options_id, :solver_version, :state, :solution, :score, :scheduler_output, :solver_output, :schedule, :lessons, :error_message, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create solver run: %w", err)
	}
	return nil
}

// GetByID returns a run by its identifier.
func (r *SolverRunRepository) GetByID(ctx context.Context, id string) (*models.SolverRun, error) {
	query := `SELECT ` + solverRunColumns + ` FROM solver_runs WHERE id = $1`
	var run models.SolverRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get solver run: %w", err)
	}
	return &run, nil
}

// UpdateSolverRunParams lists the mutable fields; nil fields are left untouched.
type UpdateSolverRunParams struct {
	State           *models.RunState
	Solution        *models.Solution
	Score           *int
	SchedulerOutput *string
	SolverOutput    *string
	Schedule        *string
	Lessons         *models.LessonSlots
	ErrorMessage    *string
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

func (p UpdateSolverRunParams) assignments() ([]string, []interface{}) {
	set := make([]string, 0, 10)
	args := make([]interface{}, 0, 10)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.State != nil {
		add("state", *p.State)
	}
	if p.Solution != nil {
		add("solution", *p.Solution)
	}
	if p.Score != nil {
		add("score", *p.Score)
	}
	if p.SchedulerOutput != nil {
		add("scheduler_output", *p.SchedulerOutput)
	}
	if p.SolverOutput != nil {
		add("solver_output", *p.SolverOutput)
	}
	if p.Schedule != nil {
		add("schedule", *p.Schedule)
	}
	if p.Lessons != nil {
		add("lessons", *p.Lessons)
	}
	if p.ErrorMessage != nil {
		add("error_message", *p.ErrorMessage)
	}
	if p.StartedAt != nil {
		add("started_at", *p.StartedAt)
	}
	if p.FinishedAt != nil {
		add("finished_at", *p.FinishedAt)
	}
	return set, args
}

// apply mirrors the update onto an in-memory record.
func (p UpdateSolverRunParams) apply(run *models.SolverRun) {
	if p.State != nil {
		run.State = *p.State
	}
	if p.Solution != nil {
		run.Solution = *p.Solution
	}
	if p.Score != nil {
		score := *p.Score
		run.Score = &score
	}
	if p.SchedulerOutput != nil {
		run.SchedulerOutput = *p.SchedulerOutput
	}
	if p.SolverOutput != nil {
		run.SolverOutput = *p.SolverOutput
	}
	if p.Schedule != nil {
		run.Schedule = *p.Schedule
	}
	if p.Lessons != nil {
		run.Lessons = append(models.LessonSlots(nil), (*p.Lessons)...)
	}
	if p.ErrorMessage != nil {
		msg := *p.ErrorMessage
		run.ErrorMessage = &msg
	}
	if p.StartedAt != nil {
		at := *p.StartedAt
		run.StartedAt = &at
	}
	if p.FinishedAt != nil {
		at := *p.FinishedAt
		run.FinishedAt = &at
	}
}

// Update persists the provided changes for a run.
func (r *SolverRunRepository) Update(ctx context.Context, id string, params UpdateSolverRunParams) error {
	set, args := params.assignments()
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE solver_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update solver run: %w", err)
	}
	return nil
}

// Claim moves a queued run to RUNNING. It reports false when another worker
// got there first.
func (r *SolverRunRepository) Claim(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	const query = `UPDATE solver_runs SET state = 'RUNNING', started_at = $1 WHERE id = $2 AND state = 'QUEUED'`
	res, err := r.db.ExecContext(ctx, query, startedAt, id)
	if err != nil {
		return false, fmt.Errorf("claim solver run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim solver run: %w", err)
	}
	return affected == 1, nil
}

// ListQueued fetches queued runs oldest first.
func (r *SolverRunRepository) ListQueued(ctx context.Context, limit int) ([]models.SolverRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + solverRunColumns + ` FROM solver_runs WHERE state = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var runs []models.SolverRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued solver runs: %w", err)
	}
	return runs, nil
}

// FailStale marks runs RUNNING since before startedBefore as FAILED and
// returns their ids.
func (r *SolverRunRepository) FailStale(ctx context.Context, startedBefore, finishedAt time.Time, message string) ([]string, error) {
	const query = `UPDATE solver_runs SET state = 'FAILED', error_message = $1, finished_at = $2 WHERE state = 'RUNNING' AND started_at < $3 RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, message, finishedAt, startedBefore); err != nil {
		return nil, fmt.Errorf("fail stale solver runs: %w", err)
	}
	return ids, nil
}

func prepareRun(run *models.SolverRun) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.State == "" {
		run.State = models.RunStateQueued
	}
	if run.Solution == "" {
		run.Solution = models.SolutionNone
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}
