package pbo

import "math"

// ControlPoint anchors the no-break curve at a run length.
type ControlPoint struct {
	Minutes int
	Penalty int
}

// NoBreakCurve is a piecewise-linear per-minute penalty over run length.
// It is flat below the first point, interpolated between points and
// extrapolated past the last point with the final segment's slope, never
// decreasing.
type NoBreakCurve struct {
	Points []ControlPoint
}

// Empty reports whether the curve has no control points.
func (c NoBreakCurve) Empty() bool {
	return len(c.Points) == 0
}

// PerMinute returns the per-minute penalty for a run of the given length.
func (c NoBreakCurve) PerMinute(minutes int) float64 {
	n := len(c.Points)
	if n == 0 {
		return 0
	}
	first := c.Points[0]
	if minutes <= first.Minutes {
		return float64(first.Penalty)
	}
	for i := 0; i+1 < n; i++ {
		lo, hi := c.Points[i], c.Points[i+1]
		if minutes < hi.Minutes {
			return float64(lo.Penalty) + float64(minutes-lo.Minutes)*slope(lo, hi)
		}
	}

	last := c.Points[n-1]
	tail := 0.0
	if n > 1 {
		tail = math.Max(slope(c.Points[n-2], last), 0)
	}
	return float64(last.Penalty) + float64(minutes-last.Minutes)*tail
}

// Weight is the objective weight of one run: the per-minute penalty times
// the run length, spread over its slots and rounded half away from zero.
func (c NoBreakCurve) Weight(minutes, slots int) int {
	if slots <= 0 {
		return 0
	}
	return int(math.Round(c.PerMinute(minutes) * float64(minutes) / float64(slots)))
}

func slope(lo, hi ControlPoint) float64 {
	return float64(hi.Penalty-lo.Penalty) / float64(hi.Minutes-lo.Minutes)
}
