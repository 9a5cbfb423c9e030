package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/kvstore"
)

func newBadgerStores(t *testing.T) (*BadgerRunStore, *BadgerAvailabilityStore, *BadgerOptionsStore) {
	t.Helper()
	db, err := kvstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerRunStore(db), NewBadgerAvailabilityStore(db), NewBadgerOptionsStore(db)
}

func TestBadgerRunStoreLifecycle(t *testing.T) {
	runs, _, _ := newBadgerStores(t)
	ctx := context.Background()

	older := &models.SolverRun{AvailabilityID: "a", OptionsID: "o", CreatedAt: time.Now().Add(-time.Minute)}
	newer := &models.SolverRun{AvailabilityID: "a", OptionsID: "o"}
	require.NoError(t, runs.Create(ctx, newer))
	require.NoError(t, runs.Create(ctx, older))

	queued, err := runs.ListQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, older.ID, queued[0].ID)

	claimed, err := runs.Claim(ctx, older.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = runs.Claim(ctx, older.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)

	queued, err = runs.ListQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, newer.ID, queued[0].ID)

	done := models.RunStateDone
	solution := models.SolutionOptimal
	score := -4
	lessons := models.LessonSlots{{Pupil: "Alice", Day: "M", Start: "9:00", Duration: 30}}
	require.NoError(t, runs.Update(ctx, older.ID, UpdateSolverRunParams{
		State:    &done,
		Solution: &solution,
		Score:    &score,
		Lessons:  &lessons,
	}))

	stored, err := runs.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateDone, stored.State)
	assert.Equal(t, models.SolutionOptimal, stored.Solution)
	require.NotNil(t, stored.Score)
	assert.Equal(t, -4, *stored.Score)
	require.NotNil(t, stored.StartedAt)
	assert.Equal(t, lessons, stored.Lessons)
}

func TestBadgerStoresReportNotFound(t *testing.T) {
	runs, availabilities, options := newBadgerStores(t)
	ctx := context.Background()

	_, err := runs.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = availabilities.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = options.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	state := models.RunStateFailed
	err = runs.Update(ctx, "missing", UpdateSolverRunParams{State: &state})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestBadgerAvailabilityAndOptions(t *testing.T) {
	_, availabilities, options := newBadgerStores(t)
	ctx := context.Background()

	availability := &models.Availability{CSVData: "Schedule, M9:00\nInstructor1, 1\n", DefaultLength: 30}
	require.NoError(t, availabilities.Create(ctx, availability))
	loaded, err := availabilities.GetByID(ctx, availability.ID)
	require.NoError(t, err)
	assert.Equal(t, availability.CSVData, loaded.CSVData)

	opts := &models.SolverOptions{ArriveLateBonus: 3, NoBreakPenalty: "{60: 1}"}
	require.NoError(t, options.Create(ctx, opts))
	loadedOpts, err := options.GetByID(ctx, opts.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, loadedOpts.ArriveLateBonus)
	assert.Equal(t, "{60: 1}", loadedOpts.NoBreakPenalty)
}

func TestBadgerRunStoreFailStale(t *testing.T) {
	runs, _, _ := newBadgerStores(t)
	ctx := context.Background()

	stale := &models.SolverRun{AvailabilityID: "a", OptionsID: "o"}
	fresh := &models.SolverRun{AvailabilityID: "a", OptionsID: "o"}
	queued := &models.SolverRun{AvailabilityID: "a", OptionsID: "o"}
	for _, run := range []*models.SolverRun{stale, fresh, queued} {
		require.NoError(t, runs.Create(ctx, run))
	}
	_, err := runs.Claim(ctx, stale.ID, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = runs.Claim(ctx, fresh.ID, time.Now())
	require.NoError(t, err)

	ids, err := runs.FailStale(ctx, time.Now().Add(-time.Hour), time.Now(), "worker lost")
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, ids)

	got, err := runs.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateFailed, got.State)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "worker lost", *got.ErrorMessage)
	assert.NotNil(t, got.FinishedAt)

	for _, id := range []string{fresh.ID, queued.ID} {
		got, err = runs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.State.Terminal())
	}
}
