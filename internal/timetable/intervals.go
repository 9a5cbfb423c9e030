package timetable

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

var (
	alternativeSeparator = regexp.MustCompile(`(?i)\s+OR\s+`)
	intervalPattern      = regexp.MustCompile(`(?i)^(?:(\d+)\s*(min|mins|minutes?|h|hours?)\s+)?([MTWRFSU])\s*(\d{1,2}):(\d{2})(?:\s*-\s*(\d{1,2}):(\d{2}))?$`)
)

// Interval is one alternative of a free-time requirement.
type Interval struct {
	Day      int
	Start    int
	End      int
	HasEnd   bool
	Duration int
}

// IntervalGroup is satisfied when any alternative has a fully free run.
type IntervalGroup struct {
	Source       string
	Alternatives []Interval
}

// ParseIntervalGroups parses the complex constraint mini-language, e.g.
// "1 hour M11:00-14:00 OR 30 min T12:00-13:00, W9:00-10:00".
func ParseIntervalGroups(src string) ([]IntervalGroup, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}

	var groups []IntervalGroup
	for _, raw := range strings.Split(src, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		group := IntervalGroup{Source: raw}
		inherited := 0
		for _, alt := range alternativeSeparator.Split(raw, -1) {
			iv, err := parseInterval(strings.TrimSpace(alt), inherited)
			if err != nil {
				return nil, err
			}
			inherited = iv.Duration
			group.Alternatives = append(group.Alternatives, iv)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func parseInterval(text string, inherited int) (Interval, error) {
	m := intervalPattern.FindStringSubmatch(text)
	if m == nil {
		return Interval{}, appErrors.Newf(appErrors.ErrFormat, "complex constraint %q is not [N min|hour] <day><H:MM>[-<H:MM>]", text)
	}

	day, _ := DayIndex(m[3])
	start, err := clockMinutes(m[4], m[5])
	if err != nil {
		return Interval{}, appErrors.Newf(appErrors.ErrFormat, "complex constraint %q: %v", text, err)
	}
	iv := Interval{Day: day, Start: start}

	if m[6] != "" {
		end, err := clockMinutes(m[6], m[7])
		if err != nil {
			return Interval{}, appErrors.Newf(appErrors.ErrFormat, "complex constraint %q: %v", text, err)
		}
		if end <= start {
			return Interval{}, appErrors.Newf(appErrors.ErrFormat, "complex constraint %q: end must be after start", text)
		}
		iv.End = end
		iv.HasEnd = true
	}

	switch {
	case m[1] != "":
		n, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(strings.ToLower(m[2]), "h") {
			n *= 60
		}
		iv.Duration = n
	case inherited > 0:
		iv.Duration = inherited
	case iv.HasEnd:
		iv.Duration = iv.End - iv.Start
	default:
		return Interval{}, appErrors.Newf(appErrors.ErrFormat, "complex constraint %q needs a duration or an end time", text)
	}
	if iv.Duration <= 0 {
		return Interval{}, appErrors.Newf(appErrors.ErrFormat, "complex constraint %q: duration must be positive", text)
	}
	if iv.HasEnd && iv.Duration > iv.End-iv.Start {
		return Interval{}, appErrors.Newf(appErrors.ErrConfig, "complex constraint %q: %d minutes do not fit the interval", text, iv.Duration)
	}
	return iv, nil
}

func clockMinutes(hour, minute string) (int, error) {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	if h < 0 || h > 24 || m < 0 || m >= 60 || h*60+m > MinutesPerDay {
		return 0, fmt.Errorf("time %s:%s out of range", hour, minute)
	}
	return h*60 + m, nil
}

// CandidateRuns lists every contiguous slot run inside the interval whose
// total duration reaches the required length. Without an end time a run must
// begin exactly at the start time.
func (t *Table) CandidateRuns(iv Interval) [][]int {
	var runs [][]int
	day := t.DaySlots[iv.Day]
	for i, first := range day {
		slot := t.Slots[first]
		if slot.Minute < iv.Start || (!iv.HasEnd && slot.Minute != iv.Start) {
			continue
		}
		covered := 0
		var run []int
		for _, s := range day[i:] {
			if iv.HasEnd && t.Slots[s].End() > iv.End {
				break
			}
			run = append(run, s)
			covered += t.Slots[s].Duration
			if covered >= iv.Duration {
				runs = append(runs, run)
				break
			}
		}
	}
	return runs
}
