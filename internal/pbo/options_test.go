package pbo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

func TestNoBreakCurveInterpolation(t *testing.T) {
	curve, err := ParseNoBreakPenalty("{60: 2, 120: 10}")
	require.NoError(t, err)

	assert.InDelta(t, 6.0, curve.PerMinute(90), 1e-9)
	assert.InDelta(t, 2.0, curve.PerMinute(30), 1e-9)
	assert.InDelta(t, 2.0, curve.PerMinute(60), 1e-9)
	assert.InDelta(t, 10.0, curve.PerMinute(120), 1e-9)
	assert.InDelta(t, 10+30*(8.0/60), curve.PerMinute(150), 1e-9)
	assert.InDelta(t, 8.0/60, curve.PerMinute(151)-curve.PerMinute(150), 1e-9)
}

func TestNoBreakCurveNeverDecreasesPastLastPoint(t *testing.T) {
	curve, err := ParseNoBreakPenalty("{120: 4, 60: 10}")
	require.NoError(t, err)
	require.Equal(t, []ControlPoint{{Minutes: 60, Penalty: 10}, {Minutes: 120, Penalty: 4}}, curve.Points)

	assert.InDelta(t, 7.0, curve.PerMinute(90), 1e-9)
	assert.InDelta(t, 4.0, curve.PerMinute(240), 1e-9)
}

func TestNoBreakWeightRoundsHalfAwayFromZero(t *testing.T) {
	curve := NoBreakCurve{Points: []ControlPoint{{Minutes: 10, Penalty: 1}}}
	assert.Equal(t, 3, curve.Weight(5, 2))
	assert.Equal(t, 180, NoBreakCurve{Points: []ControlPoint{{Minutes: 60, Penalty: 2}, {Minutes: 120, Penalty: 10}}}.Weight(90, 3))
	assert.Equal(t, 0, NoBreakCurve{}.Weight(90, 3))
}

func TestParseNoBreakPenaltyErrors(t *testing.T) {
	for _, raw := range []string{"{60 2}", "{x: 2}", "{60: y}", "{60: 1, 60: 2}"} {
		_, err := ParseNoBreakPenalty(raw)
		assert.ErrorIs(t, err, appErrors.ErrConfig, raw)
	}

	curve, err := ParseNoBreakPenalty("{}")
	require.NoError(t, err)
	assert.True(t, curve.Empty())

	curve, err = ParseNoBreakPenalty(`{'90': 5}`)
	require.NoError(t, err)
	assert.Equal(t, []ControlPoint{{Minutes: 90, Penalty: 5}}, curve.Points)
}

func TestParsePenaltyList(t *testing.T) {
	values, err := ParsePenaltyList(" 4, 8 ,16")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8, 16}, values)

	values, err = ParsePenaltyList("")
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = ParsePenaltyList("4, lots")
	assert.ErrorIs(t, err, appErrors.ErrConfig)
}

func TestParseOptionsPropagatesIntervalErrors(t *testing.T) {
	_, err := ParseOptions(RawOptions{ComplexConstraints: "sometime on monday"})
	assert.ErrorIs(t, err, appErrors.ErrFormat)

	opts, err := ParseOptions(RawOptions{
		ArriveLateBonus:    2,
		NoBreakPenalty:     "{60: 1}",
		ComplexConstraints: "30 min M12:00-13:00 OR T12:00-13:00",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.ArriveLateBonus)
	require.Len(t, opts.Intervals, 1)
	assert.Len(t, opts.Intervals[0].Alternatives, 2)
}
