package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/solver"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/jobs"
)

func (f *runFixture) worker(t *testing.T, runner *runnerStub) *SolverRunWorker {
	t.Helper()
	solverSvc, _ := newSolverServiceForTest(t, runner)
	return NewSolverRunWorker(f.runs, f.availabilities, f.options, f.progress, solverSvc, f.metrics, zap.NewNop())
}

func (f *runFixture) queuedRun(t *testing.T, csvData string) string {
	t.Helper()
	svc := f.service()
	availability, err := svc.CreateAvailability(context.Background(), dto.CreateAvailabilityRequest{CSVData: csvData})
	require.NoError(t, err)
	opts, err := svc.CreateOptions(context.Background(), dto.CreateSolverOptionsRequest{})
	require.NoError(t, err)
	resp, err := svc.CreateRun(context.Background(), dto.CreateRunRequest{AvailabilityID: availability.ID, OptionsID: opts.ID})
	require.NoError(t, err)
	return resp.ID
}

func TestSolverRunWorkerHandleSuccess(t *testing.T) {
	f := newRunFixture(t)
	runID := f.queuedRun(t, singlePupilCSV)
	runner := &runnerStub{
		outcome: optimalOutcome(),
		checkpoints: []solver.Progress{
			{Objective: intPtr(0), Transcript: "o 0\n", Improved: true, Elapsed: time.Second},
		},
	}
	worker := f.worker(t, runner)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: runID, Type: JobTypeSolve}))

	run, err := f.runs.GetByID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateDone, run.State)
	assert.Equal(t, models.SolutionOptimal, run.Solution)
	require.NotNil(t, run.Score)
	assert.Equal(t, 0, *run.Score)
	assert.Contains(t, run.Schedule, "Alice")
	assert.Contains(t, run.SchedulerOutput, "banner\n")
	assert.Equal(t, optimalOutcome().Transcript, run.SolverOutput)
	require.Len(t, run.Lessons, 1)
	assert.Equal(t, "Alice", run.Lessons[0].Pupil)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)

	require.NotEmpty(t, f.progress.history)
	last := f.progress.history[len(f.progress.history)-1]
	assert.Equal(t, models.SolutionFound, last.Solution)
	assert.Equal(t, "o 0\n", last.OutputTail)
	assert.Empty(t, f.progress.entries)

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.RunsStarted)
	assert.Equal(t, uint64(1), snapshot.RunsFinished)
	assert.Equal(t, int64(0), snapshot.RunsActive)
}

func TestSolverRunWorkerFinishesRunStoppedMidAssignment(t *testing.T) {
	f := newRunFixture(t)
	runID := f.queuedRun(t, singlePupilCSV)
	outcome := optimalOutcome()
	outcome.Status = solver.StatusSatisfiable
	outcome.Literals = []int{-1, -2, 3, -4}
	outcome.Transcript = "o 0\ns SATISFIABLE\nv -x1 -x2 x3 -x4\nv -x"
	outcome.StopReason = solver.StopIdle
	worker := f.worker(t, &runnerStub{outcome: outcome})

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: runID, Type: JobTypeSolve}))

	run, err := f.runs.GetByID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateDone, run.State)
	assert.Equal(t, models.SolutionFound, run.Solution)
	require.NotNil(t, run.Score)
	assert.Equal(t, 0, *run.Score)
	assert.Contains(t, run.Schedule, "stopped by idle timeout")
	assert.Empty(t, run.Lessons)
	assert.Empty(t, run.ErrorMessage)
}

func TestSolverRunWorkerSkipsClaimedRuns(t *testing.T) {
	f := newRunFixture(t)
	runID := f.queuedRun(t, singlePupilCSV)
	runner := &runnerStub{outcome: optimalOutcome()}
	worker := f.worker(t, runner)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: runID}))
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: runID}))
	assert.Len(t, runner.paths, 1)
}

func TestSolverRunWorkerMarksFailedOnSolverError(t *testing.T) {
	f := newRunFixture(t)
	runID := f.queuedRun(t, singlePupilCSV)
	worker := f.worker(t, &runnerStub{err: appErrors.Clone(appErrors.ErrSolverProcess, "start solver: no such file")})

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: runID}))

	run, err := f.runs.GetByID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateFailed, run.State)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "start solver")
	require.NotNil(t, run.FinishedAt)

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.RunsFailed)
	assert.Equal(t, int64(0), snapshot.RunsActive)
}

func TestSolverRunWorkerMarksFailedOnCompileError(t *testing.T) {
	f := newRunFixture(t)
	// Bob has no slot where both he and the instructor are free.
	runID := f.queuedRun(t, "Schedule, M 9:00, M 9:30\nInstructor1, 1, 0\nBob, 0, 1\n")
	runner := &runnerStub{outcome: optimalOutcome()}
	worker := f.worker(t, runner)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: runID}))

	run, err := f.runs.GetByID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateFailed, run.State)
	assert.Empty(t, runner.paths)
}

func TestSolverRunWorkerRecordsImpossibleRuns(t *testing.T) {
	f := newRunFixture(t)
	runID := f.queuedRun(t, singlePupilCSV)
	worker := f.worker(t, &runnerStub{outcome: &solver.Outcome{
		Result:     solver.Result{Status: solver.StatusUnsatisfiable},
		Transcript: "s UNSATISFIABLE\n",
		StopReason: solver.StopExited,
	}})

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: runID}))

	run, err := f.runs.GetByID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateDone, run.State)
	assert.Equal(t, models.SolutionImpossible, run.Solution)
	assert.Nil(t, run.Score)
	assert.Contains(t, run.Schedule, "UNSATISFIABLE")
}

func TestSolverRunWorkerUnknownRun(t *testing.T) {
	f := newRunFixture(t)
	worker := f.worker(t, &runnerStub{})
	assert.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "missing"}))
}
