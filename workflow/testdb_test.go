package workflow_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/ledger"
	"github.com/lumeodev/cra_backend/models"
	"github.com/lumeodev/cra_backend/utils"
	"github.com/lumeodev/cra_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

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
	t.Cleanup(func() {
		config.SetDB(nil)
		ledger.SetClient(nil)
	})

	ctx := context.Background()
	ctx = utils.SetCompanyIdInContext(ctx, "co_test")
	ctx = utils.SetUserIdInContext(ctx, 1)
	return ctx
}

// fakeLedger stands in for the GCS-backed audit store. When failing is set,
// every append errors; otherwise appends are captured for inspection.
type fakeLedger struct {
	failing  bool
	payloads [][]byte
	refs     []string
}

func (f *fakeLedger) AppendLockedSnapshot(_ context.Context, companyId string, reportId int, sequence int64, payload []byte) (string, error) {
	if f.failing {
		return "", ledger.ErrAppendFailed
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.payloads = append(f.payloads, cp)
	ref := fmt.Sprintf("fake://%s/reports/%d/%d", companyId, reportId, sequence)
	f.refs = append(f.refs, ref)
	return ref, nil
}

func buildSubmittedReport(t *testing.T, ctx context.Context) *models.Report {
	t.Helper()

	mission, err := models.CreateMission(ctx, &models.NewMission{Title: "Backend Dev", DailyRate: 50000})
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	report, err := models.CreateReport(ctx, &models.NewReport{Month: 3, Year: 2026, CurrencyCode: "EUR"})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	for d, qty := range map[int]string{3: "1.0", 4: "0.5"} {
		_, err := models.CreateEntry(ctx, &models.NewEntry{
			ReportId:  report.ID,
			MissionId: mission.ID,
			EntryDate: time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC),
			Quantity:  decimal.RequireFromString(qty),
			UnitPrice: 50000,
		})
		if err != nil {
			t.Fatalf("CreateEntry: %v", err)
		}
	}

	submitted, err := workflow.SubmitReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	return submitted
}

func reloadReport(t *testing.T, ctx context.Context, id int) *models.Report {
	t.Helper()
	report, err := models.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	return report
}
