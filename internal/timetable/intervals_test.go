package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

func TestParseIntervalGroups(t *testing.T) {
	groups, err := ParseIntervalGroups("1 hour M9:00-11:00 OR T10:00-11:00, 30 min W 9:00, R12:00-13:30")
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, []Interval{
		{Day: 0, Start: 540, End: 660, HasEnd: true, Duration: 60},
		{Day: 1, Start: 600, End: 660, HasEnd: true, Duration: 60},
	}, groups[0].Alternatives)
	assert.Equal(t, []Interval{{Day: 2, Start: 540, Duration: 30}}, groups[1].Alternatives)
	assert.Equal(t, []Interval{{Day: 3, Start: 720, End: 810, HasEnd: true, Duration: 90}}, groups[2].Alternatives)
}

func TestParseIntervalGroupsEmpty(t *testing.T) {
	groups, err := ParseIntervalGroups("  ")
	require.NoError(t, err)
	assert.Nil(t, groups)
}

func TestParseIntervalGroupsErrors(t *testing.T) {
	_, err := ParseIntervalGroups("lunch please")
	assert.ErrorIs(t, err, appErrors.ErrFormat)

	_, err = ParseIntervalGroups("M9:00")
	assert.ErrorIs(t, err, appErrors.ErrFormat)

	_, err = ParseIntervalGroups("M11:00-10:00")
	assert.ErrorIs(t, err, appErrors.ErrFormat)

	_, err = ParseIntervalGroups("2 hour M11:00-12:00")
	assert.ErrorIs(t, err, appErrors.ErrConfig)
}

func TestCandidateRuns(t *testing.T) {
	table := loadFixture(t, mondayMorning)

	runs := table.CandidateRuns(Interval{Day: 0, Start: 540, End: 660, HasEnd: true, Duration: 60})
	assert.Equal(t, [][]int{{0, 1}, {1, 2}, {2, 3}}, runs)

	runs = table.CandidateRuns(Interval{Day: 0, Start: 570, End: 630, HasEnd: true, Duration: 45})
	assert.Equal(t, [][]int{{1, 2}}, runs)

	runs = table.CandidateRuns(Interval{Day: 0, Start: 600, Duration: 30})
	assert.Equal(t, [][]int{{2}}, runs)

	assert.Empty(t, table.CandidateRuns(Interval{Day: 1, Start: 540, End: 660, HasEnd: true, Duration: 30}))
}
