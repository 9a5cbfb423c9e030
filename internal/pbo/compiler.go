package pbo

import (
	"sort"

	"github.com/noah-isme/lesson-scheduler/internal/timetable"
)

// compiler owns all mutable state of a single compilation.
type compiler struct {
	table    *timetable.Table
	opts     Options
	problem  *Problem
	products map[string]struct{}
}

// Compile turns a loaded table and parsed options into a PBO problem.
func Compile(table *timetable.Table, opts Options) (*Problem, error) {
	c := &compiler{
		table:    table,
		opts:     opts,
		problem:  &Problem{Table: table},
		products: make(map[string]struct{}),
	}

	c.allocateVariables()

	steps := []func() error{
		c.restrictionConstraints,
		c.slotConstraints,
		c.pupilConstraints,
		c.intervalConstraints,
		c.preferencePenalty,
		c.arriveLateBonus,
		c.leaveEarlyBonus,
		c.noBreakPenalty,
		c.dayOffBonus,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	c.problem.Products = len(c.products)
	return c.problem, nil
}

// available reports whether (p, s) needs a decision variable. Pupils also
// need the instructor at every slot their lesson would occupy.
func (c *compiler) available(p, s int) bool {
	if c.table.Pref(p, s) <= 0 {
		return false
	}
	if p == timetable.InstructorIndex {
		return true
	}
	run := c.table.PersonSlotOcclusion[p][s]
	if len(run) == 0 {
		return false
	}
	for _, occluded := range run {
		if c.table.Pref(timetable.InstructorIndex, occluded) <= 0 {
			return false
		}
	}
	return true
}

// allocateVariables numbers variables person-major, then by slot.
func (c *compiler) allocateVariables() {
	numPeople, numSlots := c.table.NumPeople(), c.table.NumSlots()
	c.problem.VarIndex = make([][]int, numPeople)
	c.problem.Fixed = make([][]int, numPeople)

	for p := 0; p < numPeople; p++ {
		c.problem.VarIndex[p] = make([]int, numSlots)
		c.problem.Fixed[p] = make([]int, numSlots)
		for s := 0; s < numSlots; s++ {
			if c.available(p, s) {
				c.problem.Vars = append(c.problem.Vars, VarRef{Person: p, Slot: s})
				c.problem.VarIndex[p][s] = len(c.problem.Vars)
				continue
			}
			if c.table.Pref(p, s) == timetable.PreferenceForcedBusy {
				c.problem.Fixed[p][s] = 1
			}
		}
	}
}

// fold outcome of a monomial.
type fold int

const (
	foldLive fold = iota
	foldFalse
	foldTrue
)

// monomial resolves the literals of person over slots. Fixed pairs are
// replaced by their value: a false literal kills the product and a fully
// fixed product is always true.
func (c *compiler) monomial(person int, slots []int, negated []bool) ([]Literal, fold) {
	lits := make([]Literal, 0, len(slots))
	for i, s := range slots {
		if v, ok := c.problem.Var(person, s); ok {
			lits = append(lits, Literal{Var: v, Negated: negated[i]})
			continue
		}
		value := c.problem.Fixed[person][s] == 1
		if value == negated[i] {
			return nil, foldFalse
		}
	}
	if len(lits) == 0 {
		return nil, foldTrue
	}
	sort.Slice(lits, func(i, j int) bool { return lits[i].Var < lits[j].Var })
	return lits, foldLive
}

// addTerm is the single entry point for objective monomials.
func (c *compiler) addTerm(group *ObjectiveGroup, weight, person int, slots []int, negated []bool) {
	if weight == 0 {
		return
	}
	lits, state := c.monomial(person, slots, negated)
	switch state {
	case foldFalse:
		return
	case foldTrue:
		group.Correction += weight
		return
	}
	term := Term{Coef: weight, Literals: lits}
	c.register(term)
	group.Terms = append(group.Terms, term)
}

// register tracks distinct multi-literal products for the OPB header.
func (c *compiler) register(term Term) {
	if len(term.Literals) < 2 {
		return
	}
	c.products[term.product()] = struct{}{}
	if len(term.Literals) > c.problem.MaxProductSize {
		c.problem.MaxProductSize = len(term.Literals)
	}
}

func (c *compiler) newGroup(name string) *ObjectiveGroup {
	g := &ObjectiveGroup{Name: name}
	c.problem.Objective = append(c.problem.Objective, g)
	return g
}

func repeatBool(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}
