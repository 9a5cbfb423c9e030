package solver

import (
	"bufio"
	"strconv"
	"strings"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// Status is the final status token reported on an "s" line.
type Status string

const (
	StatusNone          Status = ""
	StatusOptimum       Status = "OPTIMUM FOUND"
	StatusSatisfiable   Status = "SATISFIABLE"
	StatusUnsatisfiable Status = "UNSATISFIABLE"
	StatusUnknown       Status = "UNKNOWN"
)

func parseStatus(token string) Status {
	switch Status(strings.TrimSpace(token)) {
	case StatusOptimum:
		return StatusOptimum
	case StatusSatisfiable:
		return StatusSatisfiable
	case StatusUnsatisfiable:
		return StatusUnsatisfiable
	default:
		return StatusUnknown
	}
}

// LineKind classifies a solver output line.
type LineKind int

const (
	LineOther LineKind = iota
	LineObjective
	LineStatus
	LineValues
)

// Line is a parsed solver output line.
type Line struct {
	Kind      LineKind
	Objective int
	Status    Status
	Literals  []int
}

// ParseLine recognises "o <int>", "s <status>" and "v <literals>" lines.
// Anything else, including comments, is LineOther.
func ParseLine(text string) (Line, error) {
	text = strings.TrimRight(text, "\r\n")
	if len(text) < 2 || text[1] != ' ' {
		return Line{Kind: LineOther}, nil
	}
	body := strings.TrimSpace(text[2:])

	switch text[0] {
	case 'o':
		v, err := strconv.Atoi(body)
		if err != nil {
			return Line{Kind: LineOther}, nil
		}
		return Line{Kind: LineObjective, Objective: v}, nil
	case 's':
		return Line{Kind: LineStatus, Status: parseStatus(body)}, nil
	case 'v':
		lits, err := parseLiterals(body)
		if err != nil {
			return Line{}, err
		}
		return Line{Kind: LineValues, Literals: lits}, nil
	}
	return Line{Kind: LineOther}, nil
}

// parseLiterals converts "x1 -x2 x3" into signed variable ids. A trailing
// "0" terminator is accepted.
func parseLiterals(body string) ([]int, error) {
	fields := strings.Fields(body)
	lits := make([]int, 0, len(fields))
	for _, f := range fields {
		if f == "0" {
			continue
		}
		sign := 1
		if strings.HasPrefix(f, "-") {
			sign = -1
			f = f[1:]
		}
		if !strings.HasPrefix(f, "x") {
			return nil, appErrors.Newf(appErrors.ErrSolverProcess, "unexpected assignment token %q", f)
		}
		v, err := strconv.Atoi(f[1:])
		if err != nil || v <= 0 {
			return nil, appErrors.Newf(appErrors.ErrSolverProcess, "unexpected assignment token %q", f)
		}
		lits = append(lits, sign*v)
	}
	return lits, nil
}

// Result is the outcome of parsing a complete transcript.
type Result struct {
	Status        Status
	Objective     *int
	Literals      []int
	HasAssignment bool
}

// Apply folds a parsed line into the result.
func (r *Result) Apply(line Line) {
	switch line.Kind {
	case LineObjective:
		v := line.Objective
		r.Objective = &v
	case LineStatus:
		r.Status = line.Status
	case LineValues:
		r.Literals = append(r.Literals, line.Literals...)
		r.HasAssignment = true
	}
}

// ParseTranscript re-reads a full solver transcript.
func ParseTranscript(transcript string) (Result, error) {
	var result Result
	scanner := bufio.NewScanner(strings.NewReader(transcript))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line, err := ParseLine(scanner.Text())
		if err != nil {
			return result, err
		}
		result.Apply(line)
	}
	if err := scanner.Err(); err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrSolverProcess.Code, appErrors.ErrSolverProcess.Status, "read solver transcript")
	}
	return result, nil
}

// ParseStoppedTranscript re-reads the transcript of a solver that was
// terminated. An unterminated last line is ignored, and a malformed
// assignment drops the assignment but keeps the status and objective.
func ParseStoppedTranscript(transcript string) Result {
	transcript = transcript[:strings.LastIndexByte(transcript, '\n')+1]

	var result Result
	broken := false
	scanner := bufio.NewScanner(strings.NewReader(transcript))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line, err := ParseLine(scanner.Text())
		if err != nil {
			broken = true
			continue
		}
		result.Apply(line)
	}
	if broken || scanner.Err() != nil {
		result.Literals = nil
		result.HasAssignment = false
	}
	return result
}
