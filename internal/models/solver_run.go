package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RunState captures the solver run lifecycle.
type RunState string

const (
	RunStateQueued  RunState = "QUEUED"
	RunStateRunning RunState = "RUNNING"
	RunStateDone    RunState = "DONE"
	RunStateFailed  RunState = "FAILED"
)

// Terminal reports whether no further transitions are expected.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateFailed
}

// Solution classifies what the solver produced so far.
type Solution string

const (
	SolutionNone       Solution = "NO_SOLUTION"
	SolutionFound      Solution = "SOLUTION"
	SolutionOptimal    Solution = "OPTIMAL"
	SolutionImpossible Solution = "IMPOSSIBLE"
)

// ExportFormat enumerates supported timetable export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Availability is an uploaded preference table.
type Availability struct {
	ID            string    `db:"id" json:"id"`
	CSVData       string    `db:"csv_data" json:"csvData"`
	DefaultLength int       `db:"default_length" json:"defaultLength"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// SolverOptions holds the raw objective weights and interval constraints of a run.
type SolverOptions struct {
	ID                              string    `db:"id" json:"id"`
	ArriveLateBonus                 int       `db:"arrive_late_bonus" json:"arriveLateBonus"`
	LeaveEarlyBonus                 int       `db:"leave_early_bonus" json:"leaveEarlyBonus"`
	DayOffBonus                     int       `db:"day_off_bonus" json:"dayOffBonus"`
	PupilPreferencePenaltyList      string    `db:"pupil_preference_penalty_list" json:"pupilPreferencePenaltyList"`
	InstructorPreferencePenaltyList string    `db:"instructor_preference_penalty_list" json:"instructorPreferencePenaltyList"`
	NoBreakPenalty                  string    `db:"no_break_penalty" json:"noBreakPenalty"`
	ComplexConstraints              string    `db:"complex_constraints" json:"complexConstraints"`
	CreatedAt                       time.Time `db:"created_at" json:"createdAt"`
}

// SolverRun is one solve of an availability table under a set of options.
type SolverRun struct {
	ID              string      `db:"id" json:"id"`
	AvailabilityID  string      `db:"availability_id" json:"availabilityId"`
	OptionsID       string      `db:"options_id" json:"optionsId"`
	SolverVersion   string      `db:"solver_version" json:"solverVersion"`
	State           RunState    `db:"state" json:"state"`
	Solution        Solution    `db:"solution" json:"solution"`
	Score           *int        `db:"score" json:"score,omitempty"`
	SchedulerOutput string      `db:"scheduler_output" json:"schedulerOutput"`
	SolverOutput    string      `db:"solver_output" json:"solverOutput"`
	Schedule        string      `db:"schedule" json:"schedule"`
	Lessons         LessonSlots `db:"lessons" json:"lessons"`
	ErrorMessage    *string     `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	StartedAt       *time.Time  `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt      *time.Time  `db:"finished_at" json:"finishedAt,omitempty"`
}

// Lesson is a decoded lesson placement kept with the run for exports.
type Lesson struct {
	Pupil    string `json:"pupil"`
	Day      string `json:"day"`
	Start    string `json:"start"`
	Slot     int    `json:"slot"`
	Duration int    `json:"duration"`
}

// LessonSlots is persisted as a JSONB array.
type LessonSlots []Lesson

// Value marshals lessons to JSON for persistence.
func (l LessonSlots) Value() (driver.Value, error) {
	if l == nil {
		l = LessonSlots{}
	}
	data, err := json.Marshal([]Lesson(l))
	if err != nil {
		return nil, fmt.Errorf("marshal run lessons: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the lesson list.
func (l *LessonSlots) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for LessonSlots", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	var lessons []Lesson
	if err := json.Unmarshal(data, &lessons); err != nil {
		return fmt.Errorf("unmarshal run lessons: %w", err)
	}
	*l = lessons
	return nil
}

// RunProgress is the live snapshot observers poll while a run executes.
type RunProgress struct {
	RunID      string    `json:"runId"`
	State      RunState  `json:"state"`
	Solution   Solution  `json:"solution"`
	Score      *int      `json:"score,omitempty"`
	Objective  *int      `json:"objective,omitempty"`
	OutputTail string    `json:"outputTail,omitempty"`
	Elapsed    string    `json:"elapsed,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MetricsSnapshot aggregates service counters for the status endpoint.
type MetricsSnapshot struct {
	RequestsTotal uint64    `json:"requestsTotal"`
	RunsStarted   uint64    `json:"runsStarted"`
	RunsFinished  uint64    `json:"runsFinished"`
	RunsFailed    uint64    `json:"runsFailed"`
	RunsActive    int64     `json:"runsActive"`
	ScoreMismatch uint64    `json:"scoreMismatch"`
	Goroutines    int       `json:"goroutines"`
	GeneratedAt   time.Time `json:"generatedAt"`
}
