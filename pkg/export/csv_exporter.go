package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is a titled table. Rows are positional and must match Headers.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
	// GroupColumn, when non-negative, separates consecutive rows whose value
	// in that column differs.
	GroupColumn int
}

func (d Dataset) validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("row %d has %d cells, expected %d", i+1, len(row), len(d.Headers))
		}
	}
	return nil
}

// groupBreak reports whether row i starts a new group.
func (d Dataset) groupBreak(i int) bool {
	if i == 0 || d.GroupColumn < 0 || d.GroupColumn >= len(d.Headers) {
		return false
	}
	return d.Rows[i][d.GroupColumn] != d.Rows[i-1][d.GroupColumn]
}

// CSVExporter renders datasets as CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes the header row followed by every data row. Groups are not
// separated so the output stays machine readable.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	if err := writer.WriteAll(data.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
