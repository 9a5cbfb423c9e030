package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lessonDataset() Dataset {
	return Dataset{
		Title:   "Lesson schedule",
		Headers: []string{"Day", "Start", "Pupil"},
		Rows: [][]string{
			{"M", "9:00", "Alice"},
			{"M", "9:30", "Bob, Jr."},
			{"T", "9:00", "Carol"},
		},
		GroupColumn: 0,
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(lessonDataset())
	require.NoError(t, err)
	assert.Equal(t, "Day,Start,Pupil\nM,9:00,Alice\nM,9:30,\"Bob, Jr.\"\nT,9:00,Carol\n", string(out))
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	data := lessonDataset()
	data.Rows = append(data.Rows, []string{"W"})
	_, err := NewCSVExporter().Render(data)
	assert.Error(t, err)

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	exporter := NewPDFExporter()
	exporter.Footer = "run-1"
	data := lessonDataset()
	for i := 0; i < 80; i++ {
		data.Rows = append(data.Rows, []string{"F", "10:00", strings.Repeat("x", i%7)})
	}
	out, err := exporter.Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestDatasetGroupBreak(t *testing.T) {
	data := lessonDataset()
	assert.False(t, data.groupBreak(0))
	assert.False(t, data.groupBreak(1))
	assert.True(t, data.groupBreak(2))

	data.GroupColumn = -1
	assert.False(t, data.groupBreak(2))
}

func TestColumnWidthsFillPage(t *testing.T) {
	widths := columnWidths(lessonDataset())
	total := 0.0
	for _, w := range widths {
		total += w
	}
	assert.InDelta(t, pageWidth, total, 0.001)
	assert.Greater(t, widths[2], widths[0])
}
