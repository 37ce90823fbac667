package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/lumeodev/cra_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExportReportXlsx renders a report and its active entries as an XLSX sheet:
// a period header, one row per entry, and the server-computed totals.
func ExportReportXlsx(ctx context.Context, reportId int) ([]byte, error) {
	report, err := models.GetReport(ctx, reportId)
	if err != nil {
		return nil, err
	}
	entries, _, err := models.PaginateEntries(ctx, reportId, nil, models.EntrySortDateAsc, 10000, 0)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	period := time.Date(report.Year, time.Month(report.Month), 1, 0, 0, 0, 0, time.UTC)
	f.SetCellValue(sheet, "A1", "Activity Report")
	f.SetCellValue(sheet, "B1", period.Format("January 2006"))
	f.SetCellValue(sheet, "C1", report.CurrencyCode)
	f.SetCellValue(sheet, "D1", string(report.Status))

	headers := []string{"Date", "Mission", "Quantity", "Unit Price", "Amount", "Description"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(sheet, cell, h)
	}

	row := 4
	for _, e := range entries {
		amount := e.Quantity.Mul(decimal.NewFromInt(e.UnitPrice)).Round(0).IntPart()
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), e.EntryDate.Format("2006-01-02"))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), e.MissionId)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), e.Quantity.String())
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), e.UnitPrice)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), amount)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), e.Description)
		row++
	}

	row++
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Totals")
	f.SetCellValue(sheet, fmt.Sprintf("C%d", row), report.TotalQuantity.String())
	f.SetCellValue(sheet, fmt.Sprintf("E%d", row), report.TotalAmount)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
