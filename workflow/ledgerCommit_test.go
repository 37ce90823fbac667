package workflow_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/ledger"
	"github.com/lumeodev/cra_backend/models"
	"github.com/lumeodev/cra_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestLockReportLedgerFailureRollsBack(t *testing.T) {
	ctx := setupTest(t)

	report := buildSubmittedReport(t, ctx)
	ledger.SetClient(&fakeLedger{failing: true})

	_, err := workflow.LockReport(ctx, report.ID)
	var ledgerErr *models.LedgerCommitError
	if !errors.As(err, &ledgerErr) {
		t.Fatalf("expected LedgerCommitError, got %v", err)
	}
	if !errors.Is(err, ledger.ErrAppendFailed) {
		t.Fatalf("expected wrapped ErrAppendFailed, got %v", err)
	}

	// the relational side must be fully rolled back
	report = reloadReport(t, ctx, report.ID)
	if report.Status != models.ReportStatusSubmitted {
		t.Fatalf("status = %s, want Submitted after rollback", report.Status)
	}
	if report.LockSequence != 0 || report.LockedAt != nil || report.LedgerRef != "" {
		t.Fatal("lock metadata must not survive a failed ledger append")
	}

	var lockEvents int64
	if err := config.GetDB().Model(&models.OutboxMessageRecord{}).
		Where("reference_id = ? AND action = ?", report.ID, models.OutboxActionLock).
		Count(&lockEvents).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if lockEvents != 0 {
		t.Fatalf("lock outbox events = %d, want 0", lockEvents)
	}
}

func TestLockReportRetrySucceeds(t *testing.T) {
	ctx := setupTest(t)

	report := buildSubmittedReport(t, ctx)

	ledger.SetClient(&fakeLedger{failing: true})
	if _, err := workflow.LockReport(ctx, report.ID); err == nil {
		t.Fatal("expected first lock attempt to fail")
	}

	// a fresh attempt against a healthy ledger completes the transition
	fake := &fakeLedger{}
	ledger.SetClient(fake)
	locked, err := workflow.LockReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("LockReport retry: %v", err)
	}
	if locked.Status != models.ReportStatusLocked {
		t.Fatalf("status = %s, want Locked", locked.Status)
	}
	if locked.LockSequence != 1 {
		t.Fatalf("lock_sequence = %d, want 1", locked.LockSequence)
	}
	if locked.LockedAt == nil {
		t.Fatal("locked_at must be set")
	}
	if len(fake.refs) != 1 || locked.LedgerRef != fake.refs[0] {
		t.Fatalf("ledger_ref = %q, want %q", locked.LedgerRef, fake.refs)
	}

	// the appended snapshot mirrors the locked state
	if len(fake.payloads) != 1 {
		t.Fatalf("appended payloads = %d, want 1", len(fake.payloads))
	}
	var snapshot workflow.LockedReportSnapshot
	if err := json.Unmarshal(fake.payloads[0], &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapshot.ReportId != report.ID || snapshot.CompanyId != "co_test" {
		t.Fatalf("snapshot identity = %d/%s", snapshot.ReportId, snapshot.CompanyId)
	}
	if snapshot.Month != 3 || snapshot.Year != 2026 || snapshot.CurrencyCode != "EUR" {
		t.Fatalf("snapshot period = %d/%d %s", snapshot.Month, snapshot.Year, snapshot.CurrencyCode)
	}
	if !snapshot.TotalQuantity.Equal(decimal.RequireFromString("1.5")) || snapshot.TotalAmount != 75000 {
		t.Fatalf("snapshot totals = %s/%d", snapshot.TotalQuantity, snapshot.TotalAmount)
	}
	if snapshot.LockSequence != 1 {
		t.Fatalf("snapshot lock_sequence = %d, want 1", snapshot.LockSequence)
	}
	if len(snapshot.Entries) != 2 {
		t.Fatalf("snapshot entries = %d, want 2", len(snapshot.Entries))
	}
	if snapshot.Entries[0].EntryDate != "2026-03-03" || snapshot.Entries[1].EntryDate != "2026-03-04" {
		t.Fatalf("snapshot entry dates = %s, %s", snapshot.Entries[0].EntryDate, snapshot.Entries[1].EntryDate)
	}

	var record models.OutboxMessageRecord
	err = config.GetDB().
		Where("reference_type = ? AND reference_id = ? AND action = ?",
			models.OutboxReferenceTypeReport, report.ID, models.OutboxActionLock).
		First(&record).Error
	if err != nil {
		t.Fatalf("expected outbox record for lock: %v", err)
	}
}

// A failed lock attempt must leave nothing behind that blocks the company's
// next attempt: not the report row, not the posting serialization. Both the
// caller's retry and a lock of a sibling report must proceed immediately.
func TestLockFailureDoesNotBlockCompany(t *testing.T) {
	ctx := setupTest(t)

	first := buildSubmittedReport(t, ctx)
	ledger.SetClient(&fakeLedger{failing: true})
	if _, err := workflow.LockReport(ctx, first.ID); err == nil {
		t.Fatal("expected first lock attempt to fail")
	}

	ledger.SetClient(&fakeLedger{})

	second, err := models.CreateReport(ctx, &models.NewReport{Month: 4, Year: 2026, CurrencyCode: "EUR"})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if _, err := workflow.SubmitReport(ctx, second.ID); err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	if _, err := workflow.LockReport(ctx, second.ID); err != nil {
		t.Fatalf("lock of sibling report after failed attempt: %v", err)
	}

	locked, err := workflow.LockReport(ctx, first.ID)
	if err != nil {
		t.Fatalf("retry of failed attempt: %v", err)
	}
	if locked.Status != models.ReportStatusLocked {
		t.Fatalf("status = %s, want Locked", locked.Status)
	}
}

func TestLockReportWithoutLedgerClient(t *testing.T) {
	ctx := setupTest(t)

	report := buildSubmittedReport(t, ctx)
	ledger.SetClient(nil)

	_, err := workflow.LockReport(ctx, report.ID)
	var ledgerErr *models.LedgerCommitError
	if !errors.As(err, &ledgerErr) {
		t.Fatalf("expected LedgerCommitError, got %v", err)
	}

	report = reloadReport(t, ctx, report.ID)
	if report.Status != models.ReportStatusSubmitted {
		t.Fatalf("status = %s, want Submitted", report.Status)
	}
}

func TestLockedReportIsTerminal(t *testing.T) {
	ctx := setupTest(t)

	report := buildSubmittedReport(t, ctx)
	ledger.SetClient(&fakeLedger{})
	if _, err := workflow.LockReport(ctx, report.ID); err != nil {
		t.Fatalf("LockReport: %v", err)
	}

	// no further transitions
	if _, err := workflow.LockReport(ctx, report.ID); err == nil {
		t.Fatal("expected second lock to fail")
	}
	var transitionErr *models.InvalidTransitionError
	if _, err := workflow.SubmitReport(ctx, report.ID); !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError on submit, got %v", err)
	}

	// no further mutations
	var mission models.Mission
	if err := config.GetDB().First(&mission).Error; err != nil {
		t.Fatalf("fetch mission: %v", err)
	}
	_, err := models.CreateEntry(ctx, &models.NewEntry{
		ReportId:  report.ID,
		MissionId: mission.ID,
		EntryDate: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		Quantity:  decimal.RequireFromString("1"),
		UnitPrice: 50000,
	})
	if !errors.Is(err, models.ErrReportLocked) {
		t.Fatalf("expected ErrReportLocked on entry create, got %v", err)
	}
	if _, err := models.DeleteReport(ctx, report.ID); !errors.Is(err, models.ErrReportLocked) {
		t.Fatalf("expected ErrReportLocked on delete, got %v", err)
	}
}

func TestLockSequenceIncrementsPerCompany(t *testing.T) {
	ctx := setupTest(t)

	ledger.SetClient(&fakeLedger{})

	first := buildSubmittedReport(t, ctx)
	locked1, err := workflow.LockReport(ctx, first.ID)
	if err != nil {
		t.Fatalf("lock first: %v", err)
	}

	second, err := models.CreateReport(ctx, &models.NewReport{Month: 4, Year: 2026, CurrencyCode: "EUR"})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if _, err := workflow.SubmitReport(ctx, second.ID); err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	locked2, err := workflow.LockReport(ctx, second.ID)
	if err != nil {
		t.Fatalf("lock second: %v", err)
	}

	if locked1.LockSequence != 1 || locked2.LockSequence != 2 {
		t.Fatalf("lock sequences = %d, %d, want 1, 2", locked1.LockSequence, locked2.LockSequence)
	}
}
