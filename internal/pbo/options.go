package pbo

import (
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/lesson-scheduler/internal/timetable"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// RawOptions mirrors the stored solver options record before parsing.
type RawOptions struct {
	ArriveLateBonus                 int
	LeaveEarlyBonus                 int
	DayOffBonus                     int
	PupilPreferencePenaltyList      string
	InstructorPreferencePenaltyList string
	NoBreakPenalty                  string
	ComplexConstraints              string
}

// Options are the parsed objective weights and extra constraints.
type Options struct {
	ArriveLateBonus               int
	LeaveEarlyBonus               int
	DayOffBonus                   int
	PupilPreferencePenalties      []int
	InstructorPreferencePenalties []int
	NoBreak                       NoBreakCurve
	Intervals                     []timetable.IntervalGroup
}

// ParseOptions validates and converts a raw options record.
func ParseOptions(raw RawOptions) (Options, error) {
	pupil, err := ParsePenaltyList(raw.PupilPreferencePenaltyList)
	if err != nil {
		return Options{}, err
	}
	instructor, err := ParsePenaltyList(raw.InstructorPreferencePenaltyList)
	if err != nil {
		return Options{}, err
	}
	curve, err := ParseNoBreakPenalty(raw.NoBreakPenalty)
	if err != nil {
		return Options{}, err
	}
	intervals, err := timetable.ParseIntervalGroups(raw.ComplexConstraints)
	if err != nil {
		return Options{}, err
	}

	return Options{
		ArriveLateBonus:               raw.ArriveLateBonus,
		LeaveEarlyBonus:               raw.LeaveEarlyBonus,
		DayOffBonus:                   raw.DayOffBonus,
		PupilPreferencePenalties:      pupil,
		InstructorPreferencePenalties: instructor,
		NoBreak:                       curve,
		Intervals:                     intervals,
	}, nil
}

// ParsePenaltyList parses "4, 8, 16" into integers.
func ParsePenaltyList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, appErrors.Newf(appErrors.ErrConfig, "penalty list %q: %q is not an integer", raw, part)
		}
		values = append(values, v)
	}
	return values, nil
}

// ParseNoBreakPenalty parses a mapping literal such as "{60: 2, 120: 10}".
func ParseNoBreakPenalty(raw string) (NoBreakCurve, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(body, "}")
	body = strings.TrimSpace(body)
	if body == "" {
		return NoBreakCurve{}, nil
	}

	seen := make(map[int]bool)
	var points []ControlPoint
	for _, entry := range strings.Split(body, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, ":")
		if !ok {
			return NoBreakCurve{}, appErrors.Newf(appErrors.ErrConfig, "no break penalty %q: entry %q is not minutes: penalty", raw, entry)
		}
		minutes, err := strconv.Atoi(strings.Trim(strings.TrimSpace(key), `'"`))
		if err != nil || minutes < 0 {
			return NoBreakCurve{}, appErrors.Newf(appErrors.ErrConfig, "no break penalty %q: invalid minutes %q", raw, key)
		}
		penalty, err := strconv.Atoi(strings.Trim(strings.TrimSpace(value), `'"`))
		if err != nil {
			return NoBreakCurve{}, appErrors.Newf(appErrors.ErrConfig, "no break penalty %q: invalid penalty %q", raw, value)
		}
		if seen[minutes] {
			return NoBreakCurve{}, appErrors.Newf(appErrors.ErrConfig, "no break penalty %q: duplicate threshold %d", raw, minutes)
		}
		seen[minutes] = true
		points = append(points, ControlPoint{Minutes: minutes, Penalty: penalty})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Minutes < points[j].Minutes })
	return NoBreakCurve{Points: points}, nil
}
