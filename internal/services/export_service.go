package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/estatedesk/ledger-api/internal/models"
)

// ExportService renders the demand note register for download
type ExportService struct {
	clock Clock
}

func NewExportService(clock Clock) *ExportService {
	return &ExportService{clock: clock}
}

func (s *ExportService) registerRow(note *models.DemandNote) []string {
	paid := note.TotalPaid()
	return []string{
		note.DemandCode,
		note.BookingRef,
		note.Milestone,
		note.Total.StringFixed(2),
		paid.StringFixed(2),
		note.TotalDue(paid).StringFixed(2),
		note.Status,
		note.DueDate.Format("2006-01-02"),
		fmt.Sprintf("%t", note.Important),
	}
}

var registerHeader = []string{
	"Demand Code", "Booking", "Milestone", "Total", "Paid", "Due", "Status", "Due Date", "Important",
}

// ExportCSV renders the register as CSV. Notes must have installments
// preloaded so paid totals are authoritative.
func (s *ExportService) ExportCSV(ctx context.Context, notes []models.DemandNote) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	_ = writer.Write([]string{"Demand Note Register", s.clock.Now().Format("2006-01-02 15:04")})
	_ = writer.Write([]string{""})
	_ = writer.Write(registerHeader)

	for i := range notes {
		_ = writer.Write(s.registerRow(&notes[i]))
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("demand_notes_%s.csv", s.clock.Now().Format("2006-01-02"))
	return buf.Bytes(), filename, nil
}

// ExportXLSX renders the register as an Excel workbook
func (s *ExportService) ExportXLSX(ctx context.Context, notes []models.DemandNote) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Demand Notes"
	_ = f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for col, title := range registerHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for i := range notes {
		for col, value := range s.registerRow(&notes[i]) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("demand_notes_%s.xlsx", s.clock.Now().Format("2006-01-02"))
	return buf.Bytes(), filename, nil
}
