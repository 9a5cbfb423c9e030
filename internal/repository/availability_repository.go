package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// AvailabilityRepository stores uploaded availability tables.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// Create inserts an availability table.
func (r *AvailabilityRepository) Create(ctx context.Context, availability *models.Availability) error {
	prepareAvailability(availability)
	const query = `INSERT INTO availabilities (id, csv_data, default_length, created_at) VALUES (:id, :csv_data, :default_length, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, availability); err != nil {
		return fmt.Errorf("create availability: %w", err)
	}
	return nil
}

// GetByID loads an availability table.
func (r *AvailabilityRepository) GetByID(ctx context.Context, id string) (*models.Availability, error) {
	const query = `SELECT id, csv_data, default_length, created_at FROM availabilities WHERE id = $1`
	var availability models.Availability
	if err := r.db.GetContext(ctx, &availability, query, id); err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	return &availability, nil
}

// SolverOptionsRepository stores objective weight sets.
type SolverOptionsRepository struct {
	db *sqlx.DB
}

// NewSolverOptionsRepository constructs the repository.
func NewSolverOptionsRepository(db *sqlx.DB) *SolverOptionsRepository {
	return &SolverOptionsRepository{db: db}
}

// Create inserts an options record.
func (r *SolverOptionsRepository) Create(ctx context.Context, opts *models.SolverOptions) error {
	prepareOptions(opts)
	const query = `INSERT INTO solver_options (id, arrive_late_bonus, leave_early_bonus, day_off_bonus, pupil_preference_penalty_list, instructor_preference_penalty_list, no_break_penalty, complex_constraints, created_at)
VALUES (:id, :arrive_late_bonus, :leave_early_bonus, :day_off_bonus, :pupil_preference_penalty_list, :instructor_preference_penalty_list, :no_break_penalty, :complex_constraints, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, opts); err != nil {
		return fmt.Errorf("create solver options: %w", err)
	}
	return nil
}

// GetByID loads an options record.
func (r *SolverOptionsRepository) GetByID(ctx context.Context, id string) (*models.SolverOptions, error) {
	const query = `SELECT id, arrive_late_bonus, leave_early_bonus, day_off_bonus, pupil_preference_penalty_list, instructor_preference_penalty_list, no_break_penalty, complex_constraints, created_at
FROM solver_options WHERE id = $1`
	var opts models.SolverOptions
	if err := r.db.GetContext(ctx, &opts, query, id); err != nil {
		return nil, fmt.Errorf("get solver options: %w", err)
	}
	return &opts, nil
}

func prepareAvailability(a *models.Availability) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}

func prepareOptions(o *models.SolverOptions) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
}
