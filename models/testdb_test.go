package models_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/models"
	"github.com/lumeodev/cra_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// setupTest opens a per-test in-memory SQLite database, installs it as the
// global handle, runs migrations and returns a context carrying a test
// company and user.
func setupTest(t *testing.T) context.Context {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NamingStrategy: &schema.NamingStrategy{},
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	config.SetDB(db)
	models.MigrateTable()
	t.Cleanup(func() { config.SetDB(nil) })

	ctx := context.Background()
	ctx = utils.SetCompanyIdInContext(ctx, "co_test")
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func createTestMission(t *testing.T, ctx context.Context, title string) *models.Mission {
	t.Helper()
	mission, err := models.CreateMission(ctx, &models.NewMission{
		Title:      title,
		ClientName: "ACME",
		DailyRate:  50000,
	})
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	return mission
}

func createTestReport(t *testing.T, ctx context.Context, month int, year int) *models.Report {
	t.Helper()
	report, err := models.CreateReport(ctx, &models.NewReport{
		Month:        month,
		Year:         year,
		CurrencyCode: "EUR",
	})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	return report
}

func createTestEntry(t *testing.T, ctx context.Context, reportId int, missionId int, date time.Time, qty string, unitPrice int64) *models.Entry {
	t.Helper()
	entry, err := models.CreateEntry(ctx, &models.NewEntry{
		ReportId:  reportId,
		MissionId: missionId,
		EntryDate: date,
		Quantity:  decimal.RequireFromString(qty),
		UnitPrice: unitPrice,
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	return entry
}

func reloadReport(t *testing.T, ctx context.Context, id int) *models.Report {
	t.Helper()
	report, err := models.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	return report
}

func missionLinkCount(t *testing.T, reportId int, missionId int) int64 {
	t.Helper()
	var count int64
	err := config.GetDB().Model(&models.ReportMissionLink{}).
		Where("report_id = ? AND mission_id = ?", reportId, missionId).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count mission links: %v", err)
	}
	return count
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func assertTotals(t *testing.T, report *models.Report, quantity string, amount int64) {
	t.Helper()
	if !report.TotalQuantity.Equal(decimal.RequireFromString(quantity)) {
		t.Fatalf("total_quantity = %s, want %s", report.TotalQuantity, quantity)
	}
	if report.TotalAmount != amount {
		t.Fatalf("total_amount = %d, want %d", report.TotalAmount, amount)
	}
}
