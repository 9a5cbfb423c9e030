package pbo

import (
	"github.com/noah-isme/lesson-scheduler/internal/timetable"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// Placement is a lesson of Person starting at Slot.
type Placement struct {
	Person int
	Slot   int
}

// Schedule is a decoded assignment.
type Schedule struct {
	Problem *Problem
	Values  Assignment

	// Lessons lists pupil placements ordered by variable id.
	Lessons []Placement
	// StartPupil[s] is the pupil starting a lesson at s, 0 when none.
	StartPupil []int
	// InstructorBusy[s] is the decoded instructor variable or fixed value.
	InstructorBusy []bool
}

// Decode maps an assignment back to people and slots.
func (p *Problem) Decode(values Assignment) *Schedule {
	numSlots := p.Table.NumSlots()
	sched := &Schedule{
		Problem:        p,
		Values:         values,
		StartPupil:     make([]int, numSlots),
		InstructorBusy: make([]bool, numSlots),
	}
	for s := 0; s < numSlots; s++ {
		sched.InstructorBusy[s] = sched.Value(timetable.InstructorIndex, s) == 1
	}
	for i, ref := range p.Vars {
		if !values.Get(i+1) || ref.Person == timetable.InstructorIndex {
			continue
		}
		sched.Lessons = append(sched.Lessons, Placement{Person: ref.Person, Slot: ref.Slot})
		sched.StartPupil[ref.Slot] = ref.Person
	}
	return sched
}

// Value returns 1 or 0 for (person, slot): the variable's value when one
// exists, the fixed value otherwise.
func (s *Schedule) Value(person, slot int) int {
	if v, ok := s.Problem.Var(person, slot); ok {
		if s.Values.Get(v) {
			return 1
		}
		return 0
	}
	return s.Problem.Fixed[person][slot]
}

// Matrix returns Value for every person and slot.
func (s *Schedule) Matrix() [][]int {
	out := make([][]int, s.Problem.Table.NumPeople())
	for p := range out {
		out[p] = make([]int, s.Problem.Table.NumSlots())
		for slot := range out[p] {
			out[p][slot] = s.Value(p, slot)
		}
	}
	return out
}

// PupilSlots returns the start slots assigned to a pupil.
func (s *Schedule) PupilSlots(person int) []int {
	var slots []int
	for _, l := range s.Lessons {
		if l.Person == person {
			slots = append(slots, l.Slot)
		}
	}
	return slots
}

// Verify checks every constraint against the assignment.
func (s *Schedule) Verify() error {
	for _, con := range s.Problem.Constraints {
		if !con.Satisfied(s.Values) {
			return appErrors.Newf(appErrors.ErrInternal, "assignment violates %s constraint %q", con.Kind, con.Label)
		}
	}
	return nil
}
