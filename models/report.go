package models

import (
	"context"
	"errors"
	"time"

	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/soft_delete"
)

// Report is a monthly activity report (CRA). Totals are server-computed
// only; no input struct carries them. At most one active report exists per
// (creator, month, year), enforced here and by idx_active_report_period.
type Report struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	CompanyId     string                `gorm:"not null;uniqueIndex:idx_active_report_period,priority:1" json:"company_id"`
	UserId        int                   `gorm:"not null;uniqueIndex:idx_active_report_period,priority:2" json:"user_id"`
	Month         int                   `gorm:"not null;uniqueIndex:idx_active_report_period,priority:3" json:"month"`
	Year          int                   `gorm:"not null;uniqueIndex:idx_active_report_period,priority:4" json:"year"`
	CurrencyCode  string                `gorm:"size:3;not null" json:"currency_code"`
	Status        ReportStatus          `gorm:"size:16;not null;default:Draft" json:"status"`
	TotalQuantity decimal.Decimal       `gorm:"type:decimal(20,6);default:0" json:"total_quantity"`
	TotalAmount   int64                 `gorm:"default:0" json:"total_amount"`
	LockSequence  int64                 `gorm:"default:0" json:"lock_sequence"`
	LockedAt      *time.Time            `json:"locked_at"`
	LedgerRef     string                `gorm:"size:512" json:"ledger_ref"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     soft_delete.DeletedAt `gorm:"softDelete:milli;default:0;uniqueIndex:idx_active_report_period,priority:5" json:"-"`
}

func (r *Report) GetId() int {
	return r.ID
}

// guardEntryMutation gates every entry create/update/delete on the report's
// lifecycle state. Only Draft permits mutation.
func (r *Report) guardEntryMutation() error {
	switch r.Status {
	case ReportStatusLocked:
		return ErrReportLocked
	case ReportStatusSubmitted:
		return ErrReportSubmitted
	}
	return nil
}

type NewReport struct {
	Month        int    `json:"month" binding:"required,min=1,max=12"`
	Year         int    `json:"year" binding:"required,min=2000,max=2100"`
	CurrencyCode string `json:"currency_code" binding:"required,currencycode"`
}

func (input *NewReport) validate(ctx context.Context, companyId string, userId int) error {
	if input.Month < 1 || input.Month > 12 {
		return errors.New("month must be between 1 and 12")
	}
	if input.Year < 2000 || input.Year > 2100 {
		return errors.New("year is out of range")
	}
	count, err := utils.ResourceCountWhere[Report](ctx, companyId,
		"user_id = ? AND month = ? AND year = ?", userId, input.Month, input.Year)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateReportPeriod
	}
	return nil
}

func CreateReport(ctx context.Context, input *NewReport) (*Report, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(ctx, companyId, userId); err != nil {
		return nil, err
	}

	report := Report{
		CompanyId:     companyId,
		UserId:        userId,
		Month:         input.Month,
		Year:          input.Year,
		CurrencyCode:  input.CurrencyCode,
		Status:        ReportStatusDraft,
		TotalQuantity: decimal.Zero,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&report).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateReportPeriod
		}
		return nil, err
	}
	if err := PublishReportEvent(ctx, tx, companyId, report.ID, OutboxReferenceTypeReport, report, nil, OutboxActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func GetReport(ctx context.Context, id int) (*Report, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	report, err := utils.FetchModel[Report](ctx, companyId, id)
	if err != nil {
		return nil, ErrReportNotFound
	}
	return report, nil
}

// DeleteReport soft-deletes a report. Locked reports are immutable and
// reject deletion.
func DeleteReport(ctx context.Context, id int) (*Report, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	report, err := FetchReportForUpdate(ctx, tx, companyId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if report.Status == ReportStatusLocked {
		tx.Rollback()
		return nil, ErrReportLocked
	}

	if err := tx.WithContext(ctx).Delete(&report).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishReportEvent(ctx, tx, companyId, report.ID, OutboxReferenceTypeReport, nil, report, OutboxActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return report, nil
}

type ReportFilter struct {
	Status *ReportStatus
	Year   *int
	UserId *int
}

func ListReports(ctx context.Context, filter *ReportFilter, limit int, offset int) ([]*Report, int64, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, 0, errors.New("company id is required")
	}
	if limit <= 0 {
		limit = config.SearchLimit
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Report{}).Where("company_id = ?", companyId)
	if filter != nil {
		if filter.Status != nil {
			dbCtx = dbCtx.Where("status = ?", *filter.Status)
		}
		if filter.Year != nil {
			dbCtx = dbCtx.Where("year = ?", *filter.Year)
		}
		if filter.UserId != nil {
			dbCtx = dbCtx.Where("user_id = ?", *filter.UserId)
		}
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*Report
	err := dbCtx.Order("year DESC, month DESC").Limit(limit).Offset(offset).Find(&results).Error
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// FetchReportForUpdate reads the report inside the caller's transaction,
// taking a row lock on MySQL so concurrent mutations and lifecycle
// transitions serialize on the report row. SQLite (tests) serializes writers
// at the database level and does not support FOR UPDATE.
func FetchReportForUpdate(ctx context.Context, tx *gorm.DB, companyId string, id int) (*Report, error) {
	dbCtx := tx.WithContext(ctx).Where("company_id = ?", companyId)
	if tx.Dialector.Name() == "mysql" {
		dbCtx = dbCtx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var report Report
	if err := dbCtx.First(&report, id).Error; err != nil {
		return nil, ErrReportNotFound
	}
	return &report, nil
}
