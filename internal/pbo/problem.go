package pbo

import (
	"strconv"
	"strings"

	"github.com/noah-isme/lesson-scheduler/internal/timetable"
)

// Objective group names, in emission order.
const (
	GroupPreference = "preference"
	GroupArriveLate = "arrive late"
	GroupLeaveEarly = "leave early"
	GroupNoBreak    = "no break"
	GroupDayOff     = "day off"
)

// Literal references a variable, optionally negated.
type Literal struct {
	Var     int
	Negated bool
}

func (l Literal) String() string {
	if l.Negated {
		return "~x" + strconv.Itoa(l.Var)
	}
	return "x" + strconv.Itoa(l.Var)
}

// Holds reports whether the literal is true under values.
func (l Literal) Holds(values Assignment) bool {
	return values.Get(l.Var) != l.Negated
}

// Term is a coefficient applied to the product of its literals.
type Term struct {
	Coef     int
	Literals []Literal
}

// Holds reports whether every literal of the product is true.
func (t Term) Holds(values Assignment) bool {
	for _, lit := range t.Literals {
		if !lit.Holds(values) {
			return false
		}
	}
	return true
}

func (t Term) product() string {
	parts := make([]string, len(t.Literals))
	for i, lit := range t.Literals {
		parts[i] = lit.String()
	}
	return strings.Join(parts, " ")
}

// Relation is the comparison operator of a constraint.
type Relation int

const (
	RelEqual Relation = iota
	RelAtLeast
)

func (r Relation) String() string {
	if r == RelEqual {
		return "="
	}
	return ">="
}

// Constraint kinds, used for logging and tests.
const (
	KindSlotExclusivity = "slot exclusivity"
	KindPupilLoad       = "pupil load"
	KindPupilDaily      = "pupil daily"
	KindRestriction     = "restriction"
	KindInterval        = "interval"
)

// Constraint is a linear (in)equality over terms.
type Constraint struct {
	Kind     string
	Label    string
	Terms    []Term
	Relation Relation
	Bound    int
}

// Satisfied evaluates the constraint against values.
func (c Constraint) Satisfied(values Assignment) bool {
	sum := 0
	for _, term := range c.Terms {
		if term.Holds(values) {
			sum += term.Coef
		}
	}
	if c.Relation == RelEqual {
		return sum == c.Bound
	}
	return sum >= c.Bound
}

// ObjectiveGroup is a named part of the objective together with the weight
// of monomials that folded to true at compile time.
type ObjectiveGroup struct {
	Name       string
	Terms      []Term
	Correction int
}

// Evaluate returns the group's penalty under values, correction included.
func (g *ObjectiveGroup) Evaluate(values Assignment) int {
	total := g.Correction
	for _, term := range g.Terms {
		if term.Holds(values) {
			total += term.Coef
		}
	}
	return total
}

// VarRef maps a variable back to its person and slot.
type VarRef struct {
	Person int
	Slot   int
}

// Problem is a compiled PBO instance with the bookkeeping needed to decode it.
type Problem struct {
	Table       *timetable.Table
	Constraints []Constraint
	Objective   []*ObjectiveGroup

	// Vars[v-1] describes variable v.
	Vars []VarRef
	// VarIndex[p][s] is the variable for (p, s), or 0 when the pair is fixed.
	VarIndex [][]int
	// Fixed[p][s] holds the static value of pairs without a variable.
	Fixed [][]int

	Products       int
	MaxProductSize int
}

// NumVars returns the number of decision variables.
func (p *Problem) NumVars() int {
	return len(p.Vars)
}

// Var returns the variable of (person, slot) and whether it exists.
func (p *Problem) Var(person, slot int) (int, bool) {
	v := p.VarIndex[person][slot]
	return v, v != 0
}

// Correction sums the folded weight of every objective group.
func (p *Problem) Correction() int {
	total := 0
	for _, g := range p.Objective {
		total += g.Correction
	}
	return total
}

// Group looks up an objective group by name.
func (p *Problem) Group(name string) *ObjectiveGroup {
	for _, g := range p.Objective {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// ObjectiveTerms flattens the groups in emission order.
func (p *Problem) ObjectiveTerms() []Term {
	var terms []Term
	for _, g := range p.Objective {
		terms = append(terms, g.Terms...)
	}
	return terms
}

// Assignment holds variable values indexed by variable id; index 0 is unused.
type Assignment []bool

// NewAssignment returns an all-false assignment for n variables.
func NewAssignment(n int) Assignment {
	return make(Assignment, n+1)
}

// Get returns the value of variable v, false when out of range.
func (a Assignment) Get(v int) bool {
	if v <= 0 || v >= len(a) {
		return false
	}
	return a[v]
}

// AssignmentFromLiterals builds an assignment from signed solver literals
// (positive = true). Unknown variables are ignored.
func AssignmentFromLiterals(numVars int, literals []int) Assignment {
	values := NewAssignment(numVars)
	for _, lit := range literals {
		if lit > 0 && lit <= numVars {
			values[lit] = true
		}
	}
	return values
}
