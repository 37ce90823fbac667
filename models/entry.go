package models

import (
	"context"
	"errors"
	"time"

	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/plugin/soft_delete"
)

// Entry is a single dated line item of quantity and price. Its owning report
// and mission are resolved through the relation rows in link.go; the
// report_id/mission_id columns here exist so the storage layer can enforce
// idx_active_entry, the last line of defense against concurrent duplicate
// creates (see the guard in createEntryRow).
type Entry struct {
	ID          int                   `gorm:"primary_key" json:"id"`
	CompanyId   string                `gorm:"index;not null" json:"company_id"`
	ReportId    int                   `gorm:"index;not null;uniqueIndex:idx_active_entry,priority:1" json:"report_id"`
	MissionId   int                   `gorm:"index;not null;uniqueIndex:idx_active_entry,priority:2" json:"mission_id"`
	EntryDate   time.Time             `gorm:"not null;uniqueIndex:idx_active_entry,priority:3" json:"entry_date"`
	Quantity    decimal.Decimal       `gorm:"type:decimal(20,6);not null" json:"quantity"`
	UnitPrice   int64                 `gorm:"not null" json:"unit_price"`
	Description string                `gorm:"type:text" json:"description"`
	CreatedAt   time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   soft_delete.DeletedAt `gorm:"softDelete:milli;default:0;uniqueIndex:idx_active_entry,priority:4" json:"-"`
}

func (e *Entry) GetId() int {
	return e.ID
}

type NewEntry struct {
	ReportId    int             `json:"report_id" binding:"required"`
	MissionId   int             `json:"mission_id" binding:"required"`
	EntryDate   time.Time       `json:"entry_date" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   int64           `json:"unit_price"`
	Description string          `json:"description"`
}

// EntryChanges carries the mutable fields of an update; nil means unchanged.
type EntryChanges struct {
	MissionId   *int             `json:"mission_id"`
	EntryDate   *time.Time       `json:"entry_date"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *int64           `json:"unit_price"`
	Description *string          `json:"description"`
}

func (input *NewEntry) validate(ctx context.Context, companyId string) error {
	if input.Quantity.LessThanOrEqual(decimal.Zero) {
		return errors.New("quantity must be positive")
	}
	if input.UnitPrice < 0 {
		return errors.New("unit price cannot be negative")
	}
	if err := validateMissionUsable(ctx, companyId, input.MissionId); err != nil {
		return err
	}
	return nil
}

// checkEntryUnique fails with ErrDuplicateEntry when another active entry
// shares the (report, mission, date) triple. exceptId excludes the entry
// being updated. This in-transaction check gives the friendly error; the
// unique index catches whatever races past it.
func checkEntryUnique(ctx context.Context, tx *gorm.DB, reportId int, missionId int, date time.Time, exceptId int) error {
	dbCtx := tx.WithContext(ctx).Model(&Entry{}).
		Where("report_id = ? AND mission_id = ? AND entry_date = ?", reportId, missionId, date)
	if exceptId > 0 {
		dbCtx = dbCtx.Where("NOT id = ?", exceptId)
	}
	var count int64
	if err := dbCtx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateEntry
	}
	return nil
}

func CreateEntry(ctx context.Context, input *NewEntry) (*Entry, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}
	entryDate := utils.DateOnlyUTC(input.EntryDate)

	db := config.GetDB()
	tx := db.Begin()

	report, err := FetchReportForUpdate(ctx, tx, companyId, input.ReportId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := report.guardEntryMutation(); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := checkEntryUnique(ctx, tx, report.ID, input.MissionId, entryDate, 0); err != nil {
		tx.Rollback()
		return nil, err
	}

	entry := Entry{
		CompanyId:   companyId,
		ReportId:    report.ID,
		MissionId:   input.MissionId,
		EntryDate:   entryDate,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		Description: input.Description,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEntry
		}
		return nil, err
	}

	if err := attachEntryLink(ctx, tx, companyId, report.ID, entry.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := linkMission(ctx, tx, companyId, report.ID, entry.MissionId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if _, err := RecalculateReportTotals(ctx, tx, report); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishReportEvent(ctx, tx, companyId, entry.ID, OutboxReferenceTypeEntry, entry, nil, OutboxActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func UpdateEntry(ctx context.Context, id int, changes *EntryChanges) (*Entry, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	entry, link, err := fetchEntryWithLink(ctx, tx, companyId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	oldEntry := *entry

	report, err := FetchReportForUpdate(ctx, tx, companyId, link.ReportId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := report.guardEntryMutation(); err != nil {
		tx.Rollback()
		return nil, err
	}

	missionId := entry.MissionId
	if changes.MissionId != nil {
		missionId = *changes.MissionId
	}
	entryDate := entry.EntryDate
	if changes.EntryDate != nil {
		entryDate = utils.DateOnlyUTC(*changes.EntryDate)
	}

	missionChanged := missionId != entry.MissionId
	dateChanged := !entryDate.Equal(entry.EntryDate)

	if missionChanged {
		if err := validateMissionUsable(ctx, companyId, missionId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	// the uniqueness re-check is only needed when the identifying fields move
	if missionChanged || dateChanged {
		if err := checkEntryUnique(ctx, tx, report.ID, missionId, entryDate, entry.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	updates := map[string]interface{}{
		"MissionId": missionId,
		"EntryDate": entryDate,
	}
	if changes.Quantity != nil {
		if changes.Quantity.LessThanOrEqual(decimal.Zero) {
			tx.Rollback()
			return nil, errors.New("quantity must be positive")
		}
		updates["Quantity"] = *changes.Quantity
	}
	if changes.UnitPrice != nil {
		if *changes.UnitPrice < 0 {
			tx.Rollback()
			return nil, errors.New("unit price cannot be negative")
		}
		updates["UnitPrice"] = *changes.UnitPrice
	}
	if changes.Description != nil {
		updates["Description"] = *changes.Description
	}

	if err := tx.WithContext(ctx).Model(entry).Updates(updates).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEntry
		}
		return nil, err
	}

	if missionChanged {
		if err := linkMission(ctx, tx, companyId, report.ID, missionId); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := unlinkMissionIfOrphaned(ctx, tx, report.ID, oldEntry.MissionId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if _, err := RecalculateReportTotals(ctx, tx, report); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishReportEvent(ctx, tx, companyId, entry.ID, OutboxReferenceTypeEntry, entry, oldEntry, OutboxActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteEntry soft-deletes the entry. The row is retained for audit.
func DeleteEntry(ctx context.Context, id int) error {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return errors.New("company id is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	entry, link, err := fetchEntryWithLink(ctx, tx, companyId, id)
	if err != nil {
		tx.Rollback()
		return err
	}

	report, err := FetchReportForUpdate(ctx, tx, companyId, link.ReportId)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := report.guardEntryMutation(); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.WithContext(ctx).Delete(entry).Error; err != nil {
		tx.Rollback()
		return err
	}
	// unlink runs after the delete is persisted so the orphan count sees the
	// final entry set of this transaction
	if err := unlinkMissionIfOrphaned(ctx, tx, report.ID, entry.MissionId); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := RecalculateReportTotals(ctx, tx, report); err != nil {
		tx.Rollback()
		return err
	}
	if err := PublishReportEvent(ctx, tx, companyId, entry.ID, OutboxReferenceTypeEntry, nil, entry, OutboxActionDelete); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// fetchEntryWithLink loads the entry and resolves its owning report through
// the report<->entry relation row.
func fetchEntryWithLink(ctx context.Context, tx *gorm.DB, companyId string, id int) (*Entry, *ReportEntryLink, error) {
	var entry Entry
	err := tx.WithContext(ctx).Where("company_id = ?", companyId).First(&entry, id).Error
	if err != nil {
		return nil, nil, ErrEntryNotFound
	}
	var link ReportEntryLink
	err = tx.WithContext(ctx).Where("entry_id = ?", entry.ID).First(&link).Error
	if err != nil {
		return nil, nil, ErrEntryNotFound
	}
	return &entry, &link, nil
}

type EntryFilter struct {
	MissionId *int
	FromDate  *time.Time
	ToDate    *time.Time
}

type EntrySort string

const (
	EntrySortDateAsc  EntrySort = "date_asc"
	EntrySortDateDesc EntrySort = "date_desc"
)

// PaginateEntries lists the active entries of a report with a total count.
// Membership is resolved through report_entry_links.
func PaginateEntries(ctx context.Context, reportId int, filter *EntryFilter, sort EntrySort, limit int, offset int) ([]*Entry, int64, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, 0, errors.New("company id is required")
	}
	if _, err := utils.FetchModel[Report](ctx, companyId, reportId); err != nil {
		return nil, 0, ErrReportNotFound
	}
	if limit <= 0 {
		limit = config.SearchLimit
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Entry{}).
		Joins("JOIN report_entry_links ON report_entry_links.entry_id = entries.id").
		Where("report_entry_links.report_id = ?", reportId).
		Where("entries.company_id = ?", companyId)
	if filter != nil {
		if filter.MissionId != nil {
			dbCtx = dbCtx.Where("entries.mission_id = ?", *filter.MissionId)
		}
		if filter.FromDate != nil {
			dbCtx = dbCtx.Where("entries.entry_date >= ?", utils.DateOnlyUTC(*filter.FromDate))
		}
		if filter.ToDate != nil {
			dbCtx = dbCtx.Where("entries.entry_date <= ?", utils.DateOnlyUTC(*filter.ToDate))
		}
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "entries.entry_date ASC, entries.id ASC"
	if sort == EntrySortDateDesc {
		order = "entries.entry_date DESC, entries.id DESC"
	}

	var results []*Entry
	err := dbCtx.Order(order).Limit(limit).Offset(offset).Find(&results).Error
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}
