package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth    = 190.0
	headerHeight = 8.0
	rowHeight    = 6.5
	bottomMargin = 15.0
)

// PDFExporter renders datasets as a bordered table on A4 pages.
type PDFExporter struct {
	// Footer is printed at the bottom of every page when set.
	Footer string
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays out the dataset, repeating the header row on each page.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, bottomMargin)
	if e.Footer != "" {
		pdf.SetFooterFunc(func() {
			pdf.SetY(-12)
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(0, 6, fmt.Sprintf("%s - page %d", e.Footer, pdf.PageNo()), "", 0, "C", false, 0, "")
		})
	}
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, data.Title, "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	widths := columnWidths(data)
	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], headerHeight, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	for i, row := range data.Rows {
		if data.groupBreak(i) {
			pdf.Ln(2)
		}
		if pdf.GetY()+rowHeight > pageHeight-bottomMargin {
			pdf.AddPage()
			header()
		}
		for j, value := range row {
			pdf.CellFormat(widths[j], rowHeight, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths shares the page width in proportion to the longest cell of
// each column, with a floor so short columns stay legible.
func columnWidths(data Dataset) []float64 {
	longest := make([]int, len(data.Headers))
	for i, h := range data.Headers {
		longest[i] = len(h)
	}
	for _, row := range data.Rows {
		for i, cell := range row {
			if len(cell) > longest[i] {
				longest[i] = len(cell)
			}
		}
	}
	total := 0
	for i := range longest {
		if longest[i] < 4 {
			longest[i] = 4
		}
		total += longest[i]
	}
	widths := make([]float64, len(longest))
	for i, n := range longest {
		widths[i] = pageWidth * float64(n) / float64(total)
	}
	return widths
}
