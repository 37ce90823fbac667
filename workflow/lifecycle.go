package workflow

import (
	"context"
	"errors"

	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/models"
	"github.com/lumeodev/cra_backend/utils"
)

// SubmitReport moves a report from Draft to Submitted. Totals are
// recalculated first, inside the same transaction, as a defense against any
// code path that bypassed the normal entry flow. Pure relational transaction;
// the ledger is not involved.
func SubmitReport(ctx context.Context, id int) (*models.Report, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	report, err := models.FetchReportForUpdate(ctx, tx, companyId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !report.Status.CanTransitionTo(models.ReportStatusSubmitted) {
		tx.Rollback()
		return nil, &models.InvalidTransitionError{From: report.Status, To: models.ReportStatusSubmitted}
	}

	if _, err := models.RecalculateReportTotals(ctx, tx, report); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(report).
		Update("Status", models.ReportStatusSubmitted).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	report.Status = models.ReportStatusSubmitted

	if err := models.PublishReportEvent(ctx, tx, companyId, report.ID, models.OutboxReferenceTypeReport, report, nil, models.OutboxActionSubmit); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return report, nil
}
