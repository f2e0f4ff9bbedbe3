package services

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/estatedesk/ledger-api/internal/models"
)

// ReceiptService renders installment receipts as PDF
type ReceiptService struct{}

func NewReceiptService() *ReceiptService {
	return &ReceiptService{}
}

// RenderPDF renders a printable receipt for an installment
func (s *ReceiptService) RenderPDF(note *models.DemandNote, inst *models.Installment) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Payment Receipt")
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 10, inst.FormattedReceiptNo())
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(60, 8, "Receipt Date:")
	pdf.Cell(60, 8, inst.ReceiptDate.Format("2006-01-02"))
	pdf.Ln(6)

	pdf.Cell(60, 8, "Demand Note:")
	pdf.Cell(60, 8, note.DemandCode)
	pdf.Ln(6)

	pdf.Cell(60, 8, "Booking:")
	pdf.Cell(60, 8, note.BookingRef)
	pdf.Ln(6)

	pdf.Cell(60, 8, "Milestone:")
	pdf.Cell(60, 8, note.Milestone)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(60, 8, "Amount Received:")
	pdf.Cell(60, 8, inst.Amount.StringFixed(2))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(60, 8, "Payment Mode:")
	pdf.Cell(60, 8, inst.PaymentType)
	pdf.Ln(6)

	if inst.PaymentRef != "" {
		pdf.Cell(60, 8, "Payment Reference:")
		pdf.Cell(60, 8, inst.PaymentRef)
		pdf.Ln(6)
	}

	if inst.Note != "" {
		pdf.Ln(4)
		pdf.MultiCell(0, 6, inst.Note, "", "L", false)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, "", fmt.Errorf("failed to render receipt: %w", err)
	}

	filename := fmt.Sprintf("receipt_%s.pdf", inst.FormattedReceiptNo())
	return buf.Bytes(), filename, nil
}
