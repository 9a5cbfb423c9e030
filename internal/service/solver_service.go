package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/pbo"
	"github.com/noah-isme/lesson-scheduler/internal/solver"
	"github.com/noah-isme/lesson-scheduler/internal/timetable"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

type solverRunner interface {
	Run(ctx context.Context, instancePath string, checkpoint solver.CheckpointFunc) (*solver.Outcome, error)
	Banner() string
}

type instanceStorage interface {
	Save(filename string, data []byte) (string, error)
	Path(filename string) string
}

// SolveResult is the decoded and audited outcome of one solver invocation.
type SolveResult struct {
	Solution        models.Solution
	Score           *int
	Schedule        string
	SchedulerOutput string
	SolverOutput    string
	Lessons         models.LessonSlots
	Audit           *pbo.Audit
	StopReason      solver.StopReason
	Outcome         *solver.Outcome
	// Mismatch is set when the audit disagrees with the solver objective.
	Mismatch error
}

// SolverService turns an availability table and options into a solved schedule.
type SolverService struct {
	runner    solverRunner
	instances instanceStorage
	logger    *zap.Logger
}

// NewSolverService constructs the pipeline.
func NewSolverService(runner solverRunner, instances instanceStorage, logger *zap.Logger) *SolverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolverService{runner: runner, instances: instances, logger: logger}
}

// LoadTable parses and indexes an availability table.
func LoadTable(availability *models.Availability) (*timetable.Table, error) {
	records, err := timetable.ReadRecords(strings.NewReader(availability.CSVData))
	if err != nil {
		return nil, err
	}
	return timetable.Load(records, timetable.ParseOptions{DefaultLessonLength: availability.DefaultLength})
}

// RawOptions maps a stored options record onto the compiler input.
func RawOptions(opts *models.SolverOptions) pbo.RawOptions {
	if opts == nil {
		return pbo.RawOptions{}
	}
	return pbo.RawOptions{
		ArriveLateBonus:                 opts.ArriveLateBonus,
		LeaveEarlyBonus:                 opts.LeaveEarlyBonus,
		DayOffBonus:                     opts.DayOffBonus,
		PupilPreferencePenaltyList:      opts.PupilPreferencePenaltyList,
		InstructorPreferencePenaltyList: opts.InstructorPreferencePenaltyList,
		NoBreakPenalty:                  opts.NoBreakPenalty,
		ComplexConstraints:              opts.ComplexConstraints,
	}
}

// Prepare parses the table and options and compiles the PBO instance.
func (s *SolverService) Prepare(availability *models.Availability, opts *models.SolverOptions) (*pbo.Problem, error) {
	table, err := LoadTable(availability)
	if err != nil {
		return nil, err
	}
	parsed, err := pbo.ParseOptions(RawOptions(opts))
	if err != nil {
		return nil, err
	}
	return pbo.Compile(table, parsed)
}

// Preamble is the scheduler log written before the solver starts.
func (s *SolverService) Preamble(problem *pbo.Problem) string {
	return s.runner.Banner() + problem.Header() + "\n"
}

// Solve writes the instance under name, runs the solver and finalizes the result.
func (s *SolverService) Solve(ctx context.Context, name string, problem *pbo.Problem, checkpoint solver.CheckpointFunc) (*SolveResult, error) {
	rel, err := s.instances.Save(name+".opb", []byte(pbo.FormatOPB(problem)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "write solver instance")
	}
	path := s.instances.Path(rel)
	s.logger.Sugar().Infow("solving instance", "instance", path, "header", problem.Header())

	outcome, err := s.runner.Run(ctx, path, checkpoint)
	if err != nil {
		return nil, err
	}
	result, err := s.Finalize(problem, outcome)
	if err != nil {
		return nil, err
	}
	result.SchedulerOutput = s.Preamble(problem) + result.SchedulerOutput
	return result, nil
}

// Classify maps the solver's final status onto a run solution.
func Classify(res solver.Result) models.Solution {
	switch res.Status {
	case solver.StatusOptimum:
		return models.SolutionOptimal
	case solver.StatusSatisfiable:
		return models.SolutionFound
	case solver.StatusUnsatisfiable:
		return models.SolutionImpossible
	case solver.StatusUnknown:
		return models.SolutionNone
	}
	if res.Objective != nil {
		return models.SolutionFound
	}
	return models.SolutionNone
}

// Finalize decodes, verifies and audits a finished solver outcome. A score
// mismatch is reported on the result, not as an error.
func (s *SolverService) Finalize(problem *pbo.Problem, outcome *solver.Outcome) (*SolveResult, error) {
	result := &SolveResult{
		Solution:     Classify(outcome.Result),
		SolverOutput: outcome.Transcript,
		StopReason:   outcome.StopReason,
		Outcome:      outcome,
	}
	if outcome.Objective != nil {
		score := problem.ScoreFromObjective(*outcome.Objective)
		result.Score = &score
	}

	decodable := result.Solution == models.SolutionOptimal || result.Solution == models.SolutionFound
	if !decodable || !outcome.HasAssignment {
		status := string(outcome.Status)
		if status == "" {
			status = "no status, stopped by " + string(outcome.StopReason)
		}
		result.Schedule = pbo.InfeasibleReport(status)
		return result, nil
	}

	values := pbo.AssignmentFromLiterals(problem.NumVars(), outcome.Literals)
	schedule := problem.Decode(values)
	if err := schedule.Verify(); err != nil {
		if !outcome.Stopped() {
			return nil, err
		}
		// Killed while printing its assignment; the objective still stands.
		s.logger.Sugar().Warnw("discarding incomplete assignment", "stop_reason", string(outcome.StopReason), "error", err)
		result.Schedule = pbo.InfeasibleReport(fmt.Sprintf("%s, assignment incomplete, stopped by %s", outcome.Status, outcome.StopReason))
		result.SchedulerOutput = fmt.Sprintf("\nassignment incomplete: %s\n", err.Error())
		return result, nil
	}

	audit := schedule.Audit()
	result.Audit = &audit
	result.Schedule = schedule.Report()
	result.Lessons = lessonsOf(schedule)

	var log strings.Builder
	log.WriteString("\n")
	log.WriteString(audit.Lines())
	if outcome.Objective != nil {
		if err := problem.Reconcile(audit, *outcome.Objective); err != nil {
			result.Mismatch = err
			fmt.Fprintf(&log, "%s\n", err.Error())
		}
	} else {
		score := audit.Score()
		result.Score = &score
	}
	result.SchedulerOutput = log.String()
	return result, nil
}

func lessonsOf(schedule *pbo.Schedule) models.LessonSlots {
	table := schedule.Problem.Table
	lessons := make(models.LessonSlots, 0, len(schedule.Lessons))
	for _, placement := range schedule.Lessons {
		slot := table.Slots[placement.Slot]
		pupil := table.People[placement.Person]
		lessons = append(lessons, models.Lesson{
			Pupil:    pupil.Name,
			Day:      slot.DayLetter(),
			Start:    timetable.FormatMinute(slot.Minute),
			Slot:     slot.Index,
			Duration: pupil.LessonLength,
		})
	}
	return lessons
}
