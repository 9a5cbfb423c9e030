package pbo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/lesson-scheduler/internal/timetable"
)

// SlotStatus explains a slot's occupancy in the instructor calendar.
type SlotStatus string

const (
	SlotAssigned   SlotStatus = "assigned"
	SlotOngoing    SlotStatus = "ongoing"
	SlotFree       SlotStatus = "free"
	SlotForcedBusy SlotStatus = "forced busy"
	SlotForcedFree SlotStatus = "forced free"
)

// CalendarEntry is one row of the instructor calendar.
type CalendarEntry struct {
	Slot           timetable.Slot
	InstructorPref string
	PupilPref      string
	Pupil          string
	Status         SlotStatus
}

// PupilTimes pairs a pupil with the names of their lesson slots.
type PupilTimes struct {
	Name  string
	Slots []string
}

// Times lists every pupil with their assigned slot names.
func (s *Schedule) Times() []PupilTimes {
	table := s.Problem.Table
	out := make([]PupilTimes, 0, len(table.Pupils()))
	for _, pupil := range table.Pupils() {
		entry := PupilTimes{Name: pupil.Name}
		for _, slot := range s.PupilSlots(pupil.Index) {
			entry.Slots = append(entry.Slots, table.Slots[slot].Name)
		}
		out = append(out, entry)
	}
	return out
}

// Calendar walks every header slot day by day.
func (s *Schedule) Calendar() []CalendarEntry {
	table := s.Problem.Table
	var entries []CalendarEntry
	for d := 0; d < timetable.DaysPerWeek; d++ {
		for _, slot := range table.DaySlots[d] {
			entries = append(entries, s.entry(slot))
		}
	}
	return entries
}

func (s *Schedule) entry(slot int) CalendarEntry {
	table := s.Problem.Table
	pref := table.Pref(timetable.InstructorIndex, slot)
	e := CalendarEntry{Slot: table.Slots[slot], InstructorPref: "X"}
	if pref >= 0 {
		e.InstructorPref = strconv.Itoa(pref)
	}

	if pupil := s.StartPupil[slot]; pupil != 0 {
		e.Pupil = table.People[pupil].Name
		e.PupilPref = strconv.Itoa(table.Pref(pupil, slot))
		e.Status = SlotAssigned
		return e
	}
	switch {
	case pref > 0 && s.InstructorBusy[slot]:
		e.Status = SlotOngoing
	case pref > 0:
		e.Status = SlotFree
	case pref == timetable.PreferenceForcedBusy:
		e.Status = SlotForcedBusy
	default:
		e.Status = SlotForcedFree
	}
	return e
}

// Report renders the pupil list and the annotated instructor calendar.
func (s *Schedule) Report() string {
	var sb strings.Builder
	sb.WriteString("Pupil Session Times.\n")
	for _, pt := range s.Times() {
		fmt.Fprintf(&sb, "%s -- %s\n", pt.Name, strings.Join(pt.Slots, ", "))
	}

	sb.WriteString("\n\nInstructor Schedule.\n")
	sb.WriteString("For reference the first column is the instructor preference value (i1, i2, i3, etc).\n")
	sb.WriteString("The second column is the pupil preference value (p1, p2, p3, etc).\n")
	sb.WriteString("The third column is the session time.\n")
	sb.WriteString("And the fourth column is the pupil name.\n")

	lastDay := -1
	for _, e := range s.Calendar() {
		if lastDay != -1 && e.Slot.Day != lastDay {
			sb.WriteString("\n")
		}
		lastDay = e.Slot.Day
		sb.WriteString(formatEntry(e))
		sb.WriteString("\n")
	}
	if lastDay != -1 {
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatEntry(e CalendarEntry) string {
	prefix := "i" + e.InstructorPref + " "
	name := fmt.Sprintf("%-6s", e.Slot.Name)
	switch e.Status {
	case SlotAssigned:
		return prefix + "p" + e.PupilPref + " " + name + " " + e.Pupil
	case SlotOngoing:
		return prefix + "   " + name + " ---Lesson Ongoing---"
	case SlotForcedBusy:
		return prefix + "   " + name + " ***Forced to be Busy***"
	case SlotForcedFree:
		return prefix + "   " + name + " ***Forced to be Free***"
	default:
		return prefix + "   " + name
	}
}

// InfeasibleReport is the schedule text for runs without an assignment.
func InfeasibleReport(status string) string {
	return fmt.Sprintf("Pupil Session Times.\nNo feasible schedule was found (solver status: %s).\n", status)
}
