package timetable

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// Row labels recognised in the first column.
const (
	LabelHeader       = "Schedule"
	LabelInstructor   = "Instructor1"
	LabelRestrictions = "Instructor1 Restrictions"
)

// RowKind tags a row of the availability table.
type RowKind int

const (
	RowHeader RowKind = iota
	RowInstructor
	RowRestrictions
	RowPupil
)

func (k RowKind) String() string {
	switch k {
	case RowHeader:
		return "header"
	case RowInstructor:
		return "instructor"
	case RowRestrictions:
		return "restrictions"
	default:
		return "pupil"
	}
}

// Row is a classified table row. Cells excludes the label column.
type Row struct {
	Kind  RowKind
	Label string
	Cells []string
	Line  int
}

// ReadRecords tokenizes CSV availability data into trimmed fields, skipping blank lines.
func ReadRecords(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrFormat.Code, appErrors.ErrFormat.Status, "read availability csv")
		}
		trimmed := make([]string, len(record))
		empty := true
		for i, field := range record {
			trimmed[i] = strings.TrimSpace(field)
			if trimmed[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		records = append(records, trimmed)
	}
	return records, nil
}

// ClassifyRows tags each record by its first field.
func ClassifyRows(records [][]string) []Row {
	rows := make([]Row, 0, len(records))
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		label := strings.TrimSpace(record[0])
		kind := RowPupil
		switch label {
		case LabelHeader:
			kind = RowHeader
		case LabelInstructor:
			kind = RowInstructor
		case LabelRestrictions:
			kind = RowRestrictions
		}
		cells := make([]string, len(record)-1)
		for j, cell := range record[1:] {
			cells[j] = strings.TrimSpace(cell)
		}
		rows = append(rows, Row{Kind: kind, Label: label, Cells: cells, Line: i + 1})
	}
	return rows
}
