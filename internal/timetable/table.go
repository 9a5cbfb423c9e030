package timetable

import (
	"fmt"
	"strings"
)

const (
	// MinutesPerDay bounds slot start times and workday ends.
	MinutesPerDay = 24 * 60
	// DaysPerWeek is the number of calendar days a header may reference.
	DaysPerWeek = 7
	// DefaultLessonLength applies to pupils without a "[N min]" marker.
	DefaultLessonLength = 30
	// DefaultLastSlotDuration is used for a day containing a single slot.
	DefaultLastSlotDuration = 30
	// InstructorIndex is the person index reserved for the instructor.
	InstructorIndex = 0
)

// Preference values with special meaning.
const (
	PreferenceForcedBusy  = -1
	PreferenceUnavailable = 0
	PreferenceNeutral     = 1
)

const dayLetters = "MTWRFSU"

// Slot is one schedulable time unit.
type Slot struct {
	Index    int
	Name     string
	Day      int
	Minute   int
	Duration int
}

// End returns the minute of day at which the slot ends.
func (s Slot) End() int {
	return s.Minute + s.Duration
}

// DayLetter returns the single-letter code of the slot's day.
func (s Slot) DayLetter() string {
	return DayLetter(s.Day)
}

// Person is the instructor (index 0) or a pupil.
type Person struct {
	Index        int
	Name         string
	LessonLength int
	LessonCount  int
	Preference   []int
}

// IsInstructor reports whether the person is the instructor.
func (p Person) IsInstructor() bool {
	return p.Index == InstructorIndex
}

// Restriction requires at least MinFree of Slots to stay instructor-free.
type Restriction struct {
	Name    string
	MinFree int
	Slots   []int
}

// DayRange is the effective working window of a day in minutes.
type DayRange struct {
	Start int
	End   int
}

// Minutes returns the length of the range.
func (r DayRange) Minutes() int {
	return r.End - r.Start
}

// Table is the parsed availability model with its derived indexes.
type Table struct {
	Slots        []Slot
	People       []Person
	Restrictions []Restriction

	// PersonSlotOcclusion[p][s] lists the slots a lesson for p starting at s consumes.
	PersonSlotOcclusion [][][]int
	// SlotPersonOcclusion[s][p] lists the start slots of p whose lesson covers s.
	SlotPersonOcclusion [][][]int

	// DaySlots holds every slot of a day in header order.
	DaySlots [DaysPerWeek][]int
	// Workday holds the day's slots trimmed to instructor availability.
	Workday [DaysPerWeek][]int
	// DayRanges is keyed by day; zero for days without instructor availability.
	DayRanges [DaysPerWeek]DayRange
}

// NumSlots returns the number of header slots.
func (t *Table) NumSlots() int {
	return len(t.Slots)
}

// NumPeople returns the number of people including the instructor.
func (t *Table) NumPeople() int {
	return len(t.People)
}

// Instructor returns person 0.
func (t *Table) Instructor() Person {
	return t.People[InstructorIndex]
}

// Pupils returns every person except the instructor.
func (t *Table) Pupils() []Person {
	if len(t.People) <= 1 {
		return nil
	}
	return t.People[1:]
}

// Pref returns the preference of person p at slot s.
func (t *Table) Pref(p, s int) int {
	return t.People[p].Preference[s]
}

// DayIndex parses a single day letter into its index.
func DayIndex(letter string) (int, bool) {
	if len(letter) != 1 {
		return 0, false
	}
	idx := strings.Index(dayLetters, strings.ToUpper(letter))
	return idx, idx >= 0
}

// DayLetter returns the letter for a day index.
func DayLetter(day int) string {
	if day < 0 || day >= DaysPerWeek {
		return "?"
	}
	return dayLetters[day : day+1]
}

// FormatMinute renders a minute of day as H:MM.
func FormatMinute(minute int) string {
	return fmt.Sprintf("%d:%02d", minute/60, minute%60)
}
