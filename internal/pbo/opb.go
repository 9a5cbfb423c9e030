package pbo

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header returns the OPB comment line describing the instance size.
func (p *Problem) Header() string {
	return fmt.Sprintf("* #variable= %d #constraint= %d #product= %d sizeproduct= %d",
		p.NumVars(), len(p.Constraints), p.Products, p.MaxProductSize)
}

// WriteOPB serializes the problem in the OPB text format with products.
func WriteOPB(w io.Writer, p *Problem) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, p.Header()); err != nil {
		return err
	}

	if terms := p.ObjectiveTerms(); len(terms) > 0 {
		if _, err := fmt.Fprintf(bw, "min: %s;\n", formatTerms(terms)); err != nil {
			return err
		}
	}
	for _, con := range p.Constraints {
		if _, err := fmt.Fprintf(bw, "%s %s %d;\n", formatTerms(con.Terms), con.Relation, con.Bound); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FormatOPB renders the problem to a string.
func FormatOPB(p *Problem) string {
	var sb strings.Builder
	_ = WriteOPB(&sb, p)
	return sb.String()
}

func formatTerms(terms []Term) string {
	parts := make([]string, len(terms))
	for i, term := range terms {
		parts[i] = formatCoef(term.Coef) + " " + term.product()
	}
	return strings.Join(parts, " ")
}

func formatCoef(coef int) string {
	if coef >= 0 {
		return "+" + strconv.Itoa(coef)
	}
	return strconv.Itoa(coef)
}
