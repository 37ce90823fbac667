package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/ledger"
	"github.com/lumeodev/cra_backend/models"
	"github.com/lumeodev/cra_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LockedReportSnapshot is the immutable payload appended to the audit ledger
// for a successfully locked report.
type LockedReportSnapshot struct {
	ReportId      int                   `json:"report_id"`
	CompanyId     string                `json:"company_id"`
	UserId        int                   `json:"user_id"`
	Month         int                   `json:"month"`
	Year          int                   `json:"year"`
	CurrencyCode  string                `json:"currency_code"`
	TotalQuantity decimal.Decimal       `json:"total_quantity"`
	TotalAmount   int64                 `json:"total_amount"`
	LockSequence  int64                 `json:"lock_sequence"`
	LockedAt      time.Time             `json:"locked_at"`
	Entries       []LockedSnapshotEntry `json:"entries"`
}

type LockedSnapshotEntry struct {
	EntryId     int             `json:"entry_id"`
	MissionId   int             `json:"mission_id"`
	EntryDate   string          `json:"entry_date"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	Description string          `json:"description"`
}

// LockReport executes the Submitted -> Locked transition as one atomic unit
// spanning the relational store and the external ledger:
//
//  1. open a relational transaction (plus advisory/redis serialization)
//  2. recalculate totals inside it
//  3. set status, lock timestamp and lock sequence inside it
//  4. append the snapshot to the ledger while the transaction is still open
//  5. commit only if the append succeeded
//
// The relational mutation is cheap and reversible; the ledger append is the
// externally visible, non-reversible side effect, so it is the last decisive
// step. Any append failure (including timeout) rolls the whole transaction
// back and surfaces a LedgerCommitError; the report stays Submitted and the
// caller may retry with a fresh LockReport call. There is no automatic retry.
func LockReport(ctx context.Context, id int) (*models.Report, error) {
	logger := config.GetLogger()

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	// Redis lock is a best-effort optimization across instances.
	// Correctness must not depend on Redis: the advisory lock and the report
	// row lock below are the real gates.
	if locker := config.GetRedisLock(); locker != nil {
		lockKey := fmt.Sprintf("report-lock:%s:%d", companyId, id)
		l, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
		if err == nil {
			defer l.Release(context.WithoutCancel(ctx))
		} else if errors.Is(err, redislock.ErrNotObtained) {
			return nil, errors.New("another lock attempt is already in progress")
		}
	}

	// The sequence is drawn before the transaction opens (its own reads must
	// not interleave with the open write transaction).
	seq, err := utils.NextSequence[models.Report](ctx, companyId, "lock_sequence")
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireReportPostingLock(tx, companyId); err != nil {
		tx.Rollback()
		return nil, err
	}
	// GET_LOCK survives a rollback and is freed only by RELEASE_LOCK or
	// connection close, so every abort must release it before the connection
	// goes back to the pool. Otherwise the caller's fresh retry lands on a
	// different connection and stalls against its own company's lock.
	rollback := func() {
		ReleaseReportPostingLock(tx, companyId)
		tx.Rollback()
	}

	report, err := models.FetchReportForUpdate(ctx, tx, companyId, id)
	if err != nil {
		rollback()
		return nil, err
	}
	if !report.Status.CanTransitionTo(models.ReportStatusLocked) {
		rollback()
		return nil, &models.InvalidTransitionError{From: report.Status, To: models.ReportStatusLocked}
	}

	if _, err := models.RecalculateReportTotals(ctx, tx, report); err != nil {
		rollback()
		return nil, err
	}

	now := time.Now().UTC()
	if err := tx.WithContext(ctx).Model(report).Updates(map[string]interface{}{
		"Status":       models.ReportStatusLocked,
		"LockedAt":     now,
		"LockSequence": seq,
	}).Error; err != nil {
		rollback()
		return nil, err
	}
	report.Status = models.ReportStatusLocked
	report.LockedAt = &now
	report.LockSequence = seq

	payload, err := buildLockedSnapshot(ctx, tx, report)
	if err != nil {
		rollback()
		return nil, err
	}

	client := ledger.GetClient()
	if client == nil {
		rollback()
		return nil, &models.LedgerCommitError{Err: errors.New("ledger client not configured")}
	}

	// Decisive step: the append runs while the transaction is still open.
	ref, err := client.AppendLockedSnapshot(ctx, companyId, report.ID, seq, payload)
	if err != nil {
		rollback()
		config.LogError(logger, "ledgerCommit.go", "LockReport", "AppendLockedSnapshot", report.ID, err)
		return nil, &models.LedgerCommitError{Err: err}
	}

	if err := tx.WithContext(ctx).Model(report).Update("LedgerRef", ref).Error; err != nil {
		rollback()
		return nil, err
	}
	report.LedgerRef = ref

	if err := models.PublishReportEvent(ctx, tx, companyId, report.ID, models.OutboxReferenceTypeReport, report, nil, models.OutboxActionLock); err != nil {
		rollback()
		return nil, err
	}

	ReleaseReportPostingLock(tx, companyId)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return report, nil
}

func buildLockedSnapshot(ctx context.Context, tx *gorm.DB, report *models.Report) ([]byte, error) {
	var entries []*models.Entry
	err := tx.WithContext(ctx).Model(&models.Entry{}).
		Joins("JOIN report_entry_links ON report_entry_links.entry_id = entries.id").
		Where("report_entry_links.report_id = ?", report.ID).
		Order("entries.entry_date ASC, entries.id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	snapshot := LockedReportSnapshot{
		ReportId:      report.ID,
		CompanyId:     report.CompanyId,
		UserId:        report.UserId,
		Month:         report.Month,
		Year:          report.Year,
		CurrencyCode:  report.CurrencyCode,
		TotalQuantity: report.TotalQuantity,
		TotalAmount:   report.TotalAmount,
		LockSequence:  report.LockSequence,
		LockedAt:      *report.LockedAt,
		Entries:       make([]LockedSnapshotEntry, 0, len(entries)),
	}
	for _, e := range entries {
		snapshot.Entries = append(snapshot.Entries, LockedSnapshotEntry{
			EntryId:     e.ID,
			MissionId:   e.MissionId,
			EntryDate:   e.EntryDate.Format("2006-01-02"),
			Quantity:    e.Quantity,
			UnitPrice:   e.UnitPrice,
			Description: e.Description,
		})
	}
	return json.Marshal(snapshot)
}
