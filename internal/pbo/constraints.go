package pbo

import (
	"github.com/noah-isme/lesson-scheduler/internal/timetable"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

func positive(v int) Term {
	return Term{Coef: 1, Literals: []Literal{{Var: v}}}
}

func (c *compiler) addConstraint(con Constraint) {
	for _, term := range con.Terms {
		c.register(term)
	}
	c.problem.Constraints = append(c.problem.Constraints, con)
}

// restrictionConstraints keeps at least MinFree slots of each group free.
// Members that are statically free count towards the target.
func (c *compiler) restrictionConstraints() error {
	for _, r := range c.table.Restrictions {
		need := r.MinFree
		var terms []Term
		for _, s := range r.Slots {
			v, ok := c.problem.Var(timetable.InstructorIndex, s)
			if !ok {
				if c.problem.Fixed[timetable.InstructorIndex][s] == 0 {
					need--
				}
				continue
			}
			terms = append(terms, Term{Coef: 1, Literals: []Literal{{Var: v, Negated: true}}})
		}
		if len(terms) == 0 || need <= 0 {
			continue
		}
		c.addConstraint(Constraint{
			Kind:     KindRestriction,
			Label:    r.Name,
			Terms:    terms,
			Relation: RelAtLeast,
			Bound:    need,
		})
	}
	return nil
}

// slotConstraints ties the instructor variable of each slot to the pupil
// lessons covering it, so at most one lesson occupies a slot.
func (c *compiler) slotConstraints() error {
	for s := range c.table.Slots {
		inst, ok := c.problem.Var(timetable.InstructorIndex, s)
		if !ok {
			continue
		}
		terms := []Term{positive(inst)}
		for p := 1; p < c.table.NumPeople(); p++ {
			for _, start := range c.table.SlotPersonOcclusion[s][p] {
				if v, ok := c.problem.Var(p, start); ok {
					terms = append(terms, Term{Coef: -1, Literals: []Literal{{Var: v}}})
				}
			}
		}
		c.addConstraint(Constraint{
			Kind:     KindSlotExclusivity,
			Label:    c.table.Slots[s].Name,
			Terms:    terms,
			Relation: RelEqual,
			Bound:    0,
		})
	}
	return nil
}

// pupilConstraints gives every pupil exactly LessonCount lessons, at most
// one per day when more than one is requested.
func (c *compiler) pupilConstraints() error {
	for _, pupil := range c.table.Pupils() {
		var terms []Term
		for s := range c.table.Slots {
			if v, ok := c.problem.Var(pupil.Index, s); ok {
				terms = append(terms, positive(v))
			}
		}
		if len(terms) == 0 {
			return appErrors.Newf(appErrors.ErrConfig, "pupil %q has no available slots", pupil.Name)
		}
		c.addConstraint(Constraint{
			Kind:     KindPupilLoad,
			Label:    pupil.Name,
			Terms:    terms,
			Relation: RelEqual,
			Bound:    pupil.LessonCount,
		})

		if pupil.LessonCount <= 1 {
			continue
		}
		for d := 0; d < timetable.DaysPerWeek; d++ {
			var daily []Term
			for _, s := range c.table.DaySlots[d] {
				if v, ok := c.problem.Var(pupil.Index, s); ok {
					daily = append(daily, Term{Coef: -1, Literals: []Literal{{Var: v}}})
				}
			}
			if len(daily) == 0 {
				continue
			}
			c.addConstraint(Constraint{
				Kind:     KindPupilDaily,
				Label:    pupil.Name + " " + timetable.DayLetter(d),
				Terms:    daily,
				Relation: RelAtLeast,
				Bound:    -1,
			})
		}
	}
	return nil
}

// intervalConstraints requires, per group, one candidate run to be entirely
// free of instructor lessons.
func (c *compiler) intervalConstraints() error {
	for _, group := range c.opts.Intervals {
		var terms []Term
		seen := make(map[string]bool)
		satisfied := false

		for _, alt := range group.Alternatives {
			for _, run := range c.table.CandidateRuns(alt) {
				lits, state := c.monomial(timetable.InstructorIndex, run, repeatBool(true, len(run)))
				if state == foldTrue {
					satisfied = true
					break
				}
				if state == foldFalse {
					continue
				}
				term := Term{Coef: 1, Literals: lits}
				key := term.product()
				if seen[key] {
					continue
				}
				seen[key] = true
				terms = append(terms, term)
			}
			if satisfied {
				break
			}
		}

		if satisfied {
			continue
		}
		if len(terms) == 0 {
			return appErrors.Newf(appErrors.ErrConfig, "complex constraint %q cannot be met by any slot run", group.Source)
		}
		c.addConstraint(Constraint{
			Kind:     KindInterval,
			Label:    group.Source,
			Terms:    terms,
			Relation: RelAtLeast,
			Bound:    1,
		})
	}
	return nil
}
