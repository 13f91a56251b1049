package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Receipt describes a single settlement receipt document.
type Receipt struct {
	Title     string
	Reference string
	Lines     []ReceiptLine
	Total     string
	Footnote  string
}

// ReceiptLine is one labelled row on the receipt.
type ReceiptLine struct {
	Label string
	Value string
}

// PDFExporter renders settlement receipts as PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a single-page receipt PDF.
func (e *PDFExporter) Render(receipt Receipt) ([]byte, error) {
	if receipt.Title == "" {
		return nil, fmt.Errorf("pdf receipt requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, receipt.Title, "", 1, "C", false, 0, "")
	if receipt.Reference != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("Reference: %s", receipt.Reference), "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	for _, line := range receipt.Lines {
		pdf.CellFormat(80, 8, line.Label, "B", 0, "L", false, 0, "")
		pdf.CellFormat(100, 8, line.Value, "B", 1, "R", false, 0, "")
	}

	if receipt.Total != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(80, 9, "Total", "T", 0, "L", false, 0, "")
		pdf.CellFormat(100, 9, receipt.Total, "T", 1, "R", false, 0, "")
	}

	if receipt.Footnote != "" {
		pdf.Ln(8)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, receipt.Footnote, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
