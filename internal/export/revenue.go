// Package export renders revenue reports as Excel workbooks.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuebook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet   = "Summary"
	bucketsSheet   = "Revenue"
	customersSheet = "Top customers"
)

// ContentType is the MIME type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FileName is the download name of a report workbook.
func FileName(r *models.RevenueReport) string {
	return fmt.Sprintf("revenue_club%d_%s_%s_to_%s.xlsx", r.ClubID, r.Period, r.From, r.To)
}

// RevenueWorkbook renders the report into an in-memory xlsx file.
func RevenueWorkbook(r *models.RevenueReport) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("error renaming sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating style: %w", err)
	}

	writeSummary(f, r, headerStyle)

	if _, err := f.NewSheet(bucketsSheet); err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	writeRows(f, bucketsSheet, headerStyle, []interface{}{"Period", "Revenue", "Bookings"}, len(r.Buckets),
		func(i int) []interface{} {
			b := r.Buckets[i]
			return []interface{}{b.Label, b.Revenue, b.Bookings}
		})

	if _, err := f.NewSheet(customersSheet); err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	writeRows(f, customersSheet, headerStyle, []interface{}{"Player", "Name", "Bookings", "Revenue"}, len(r.TopCustomers),
		func(i int) []interface{} {
			c := r.TopCustomers[i]
			return []interface{}{c.PlayerID, c.Name, c.Bookings, c.Revenue}
		})

	for _, sheet := range []string{summarySheet, bucketsSheet, customersSheet} {
		_ = f.SetColWidth(sheet, "A", "A", 22)
		_ = f.SetColWidth(sheet, "B", "D", 16)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf, nil
}

// SaveRevenueWorkbook writes the workbook under dir and returns its path.
func SaveRevenueWorkbook(dir string, r *models.RevenueReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	buf, err := RevenueWorkbook(r)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(r))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

func writeSummary(f *excelize.File, r *models.RevenueReport, headerStyle int) {
	rows := [][]interface{}{
		{"Club", r.ClubID},
		{"Period", r.Period},
		{"From", r.From},
		{"To", r.To},
		{"Total revenue", r.TotalRevenue},
		{"Completed bookings", r.CompletedBookings},
		{"Walk-ins", r.WalkIns},
		{"Unique customers", r.UniqueCustomers},
		{"Generated at", r.GeneratedAt.Format("2006-01-02 15:04:05")},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(summarySheet, cell, &row)
		_ = f.SetCellStyle(summarySheet, cell, cell, headerStyle)
	}
}

func writeRows(f *excelize.File, sheet string, headerStyle int, header []interface{}, n int, row func(int) []interface{}) {
	_ = f.SetSheetRow(sheet, "A1", &header)
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	_ = f.SetCellStyle(sheet, "A1", last, headerStyle)

	for i := 0; i < n; i++ {
		values := row(i)
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(sheet, cell, &values)
	}
}
