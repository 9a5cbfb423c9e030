package dto

import (
	"time"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// CreateAvailabilityRequest uploads a preference table.
type CreateAvailabilityRequest struct {
	CSVData       string `json:"csvData" validate:"required"`
	DefaultLength int    `json:"defaultLength" validate:"omitempty,min=1,max=1440"`
}

// CreateSolverOptionsRequest stores objective weights and interval constraints.
type CreateSolverOptionsRequest struct {
	ArriveLateBonus                 int    `json:"arriveLateBonus"`
	LeaveEarlyBonus                 int    `json:"leaveEarlyBonus"`
	DayOffBonus                     int    `json:"dayOffBonus"`
	PupilPreferencePenaltyList      string `json:"pupilPreferencePenaltyList" validate:"max=100"`
	InstructorPreferencePenaltyList string `json:"instructorPreferencePenaltyList" validate:"max=100"`
	NoBreakPenalty                  string `json:"noBreakPenalty" validate:"max=1000"`
	ComplexConstraints              string `json:"complexConstraints" validate:"max=4000"`
}

// CreateRunRequest queues a solve of an availability table under an options set.
type CreateRunRequest struct {
	AvailabilityID string `json:"availabilityId" validate:"required"`
	OptionsID      string `json:"optionsId" validate:"required"`
}

// RunResponse is returned after queueing a run.
type RunResponse struct {
	ID       string          `json:"id"`
	State    models.RunState `json:"state"`
	Solution models.Solution `json:"solution"`
}

// ExportRequest selects the rendering of a finished schedule.
type ExportRequest struct {
	Format models.ExportFormat `form:"format" json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResponse points at a signed download.
type ExportResponse struct {
	URL       string              `json:"url"`
	Format    models.ExportFormat `json:"format"`
	ExpiresAt time.Time           `json:"expiresAt"`
}
