package pbo

import (
	"fmt"
	"strings"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// GroupPenalty is the audited penalty of one objective group.
type GroupPenalty struct {
	Name    string `json:"name"`
	Penalty int    `json:"penalty"`
}

// Audit is the independent re-evaluation of the objective.
type Audit struct {
	Groups []GroupPenalty `json:"groups"`
	Total  int            `json:"total"`
}

// Audit re-evaluates every objective group against the schedule,
// corrections included.
func (s *Schedule) Audit() Audit {
	var audit Audit
	for _, g := range s.Problem.Objective {
		penalty := g.Evaluate(s.Values)
		audit.Groups = append(audit.Groups, GroupPenalty{Name: g.Name, Penalty: penalty})
		audit.Total += penalty
	}
	return audit
}

// Score is the domain score: the negated total penalty.
func (a Audit) Score() int {
	return -a.Total
}

// Lines renders the audit in the scheduler log format.
func (a Audit) Lines() string {
	var sb strings.Builder
	for _, g := range a.Groups {
		fmt.Fprintf(&sb, "Penalty %d for term %q\n", g.Penalty, g.Name)
	}
	fmt.Fprintf(&sb, "Total Penalty %d\n", a.Total)
	return sb.String()
}

// ScoreFromObjective converts a solver objective value into the domain
// score by adding back the folded correction and negating.
func (p *Problem) ScoreFromObjective(objective int) int {
	return -(objective + p.Correction())
}

// Reconcile compares the audit with the solver's objective value.
func (p *Problem) Reconcile(a Audit, objective int) error {
	expected := objective + p.Correction()
	if a.Total != expected {
		return appErrors.Newf(appErrors.ErrScoreMismatch,
			"audited penalty %d does not match solver objective %d plus correction %d",
			a.Total, objective, p.Correction())
	}
	return nil
}
