package timetable

import (
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// computeWorkdays groups slots per day and trims each day to the span
// bounded by instructor-available slots.
func (t *Table) computeWorkdays() error {
	instructor := t.People[InstructorIndex].Preference

	for d := 0; d < DaysPerWeek; d++ {
		t.DaySlots[d] = nil
		t.Workday[d] = nil
		t.DayRanges[d] = DayRange{}
	}
	for _, slot := range t.Slots {
		t.DaySlots[slot.Day] = append(t.DaySlots[slot.Day], slot.Index)
	}

	for d := 0; d < DaysPerWeek; d++ {
		slots := t.DaySlots[d]
		first, last := 0, len(slots)-1
		for first <= last && instructor[slots[first]] <= 0 {
			first++
		}
		for last >= first && instructor[slots[last]] <= 0 {
			last--
		}
		if first > last {
			continue
		}

		trimmed := make([]int, last-first+1)
		copy(trimmed, slots[first:last+1])
		t.Workday[d] = trimmed

		end := t.Slots[trimmed[len(trimmed)-1]]
		if end.End() > MinutesPerDay {
			return appErrors.Newf(appErrors.ErrConfig,
				"instructor is available for slot %q which runs past midnight; add a closing slot for day %s",
				end.Name, DayLetter(d))
		}
		t.DayRanges[d] = DayRange{Start: t.Slots[trimmed[0]].Minute, End: end.End()}
	}
	return nil
}

// WorkdayMinutes returns the length of a day's effective range.
func (t *Table) WorkdayMinutes(day int) int {
	return t.DayRanges[day].Minutes()
}
