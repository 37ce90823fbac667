package models

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecalculateReportTotals recomputes total_quantity and total_amount from the
// report's active entries and persists them when they differ from the stored
// values. Runs inside the caller's transaction; a failed write must roll back
// the triggering operation so totals never diverge from the entry set.
//
// total_quantity = Σ quantity
// total_amount   = Σ quantity × unit_price, in integer minor currency units
//
// The fold happens in decimal on the Go side: unit prices are integers and
// quantities decimals, so products are exact and the accumulator has no
// fixed-width overflow for realistic entry counts. The sum is rounded to the
// nearest minor unit only once, at the end.
func RecalculateReportTotals(ctx context.Context, tx *gorm.DB, report *Report) (bool, error) {
	type entryRow struct {
		Quantity  decimal.Decimal
		UnitPrice int64
	}
	var rows []entryRow
	err := tx.WithContext(ctx).Model(&Entry{}).
		Select("quantity", "unit_price").
		Where("report_id = ?", report.ID).
		Find(&rows).Error
	if err != nil {
		return false, err
	}

	totalQuantity := decimal.Zero
	totalAmount := decimal.Zero
	for _, row := range rows {
		totalQuantity = totalQuantity.Add(row.Quantity)
		totalAmount = totalAmount.Add(row.Quantity.Mul(decimal.NewFromInt(row.UnitPrice)))
	}
	amount := totalAmount.Round(0).IntPart()

	if report.TotalQuantity.Equal(totalQuantity) && report.TotalAmount == amount {
		// unchanged, skip the write
		return false, nil
	}

	err = tx.WithContext(ctx).Model(report).Updates(map[string]interface{}{
		"TotalQuantity": totalQuantity,
		"TotalAmount":   amount,
	}).Error
	if err != nil {
		return false, err
	}
	report.TotalQuantity = totalQuantity
	report.TotalAmount = amount
	return true, nil
}
