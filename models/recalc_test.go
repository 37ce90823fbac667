package models_test

import (
	"testing"
	"time"

	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/models"
)

func TestRecalculateSkipsWriteWhenUnchanged(t *testing.T) {
	ctx := setupTest(t)

	mission := createTestMission(t, ctx, "Backend Dev")
	report := createTestReport(t, ctx, 3, 2026)
	createTestEntry(t, ctx, report.ID, mission.ID, day(2026, time.March, 3), "1.0", 50000)

	db := config.GetDB()
	report = reloadReport(t, ctx, report.ID)

	changed, err := models.RecalculateReportTotals(ctx, db, report)
	if err != nil {
		t.Fatalf("RecalculateReportTotals: %v", err)
	}
	if changed {
		t.Fatal("totals already current, expected no write")
	}

	// a drifted stored total gets repaired
	if err := db.Model(&models.Report{}).Where("id = ?", report.ID).
		Update("total_amount", 1).Error; err != nil {
		t.Fatalf("tamper totals: %v", err)
	}
	report = reloadReport(t, ctx, report.ID)
	changed, err = models.RecalculateReportTotals(ctx, db, report)
	if err != nil {
		t.Fatalf("RecalculateReportTotals: %v", err)
	}
	if !changed {
		t.Fatal("expected totals write after drift")
	}
	assertTotals(t, reloadReport(t, ctx, report.ID), "1", 50000)
}

// The amount is rounded once, over the sum, not per entry. Two quarter-day
// entries at 101 minor units each contribute 25.25; the correct total is
// round(50.5) = 51, while per-entry rounding would yield 50.
func TestRecalculateRoundsSumOnce(t *testing.T) {
	ctx := setupTest(t)

	mission := createTestMission(t, ctx, "Backend Dev")
	report := createTestReport(t, ctx, 3, 2026)

	createTestEntry(t, ctx, report.ID, mission.ID, day(2026, time.March, 3), "0.25", 101)
	createTestEntry(t, ctx, report.ID, mission.ID, day(2026, time.March, 4), "0.25", 101)

	report = reloadReport(t, ctx, report.ID)
	assertTotals(t, report, "0.5", 51)
}

func TestRecalculateFractionalQuantities(t *testing.T) {
	ctx := setupTest(t)

	mission := createTestMission(t, ctx, "Backend Dev")
	report := createTestReport(t, ctx, 3, 2026)

	createTestEntry(t, ctx, report.ID, mission.ID, day(2026, time.March, 3), "0.5", 50000)
	createTestEntry(t, ctx, report.ID, mission.ID, day(2026, time.March, 4), "0.25", 50000)
	createTestEntry(t, ctx, report.ID, mission.ID, day(2026, time.March, 5), "1", 60000)

	report = reloadReport(t, ctx, report.ID)
	assertTotals(t, report, "1.75", 97500)
}
