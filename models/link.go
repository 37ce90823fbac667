package models

import (
	"context"
	"errors"
	"time"

	"github.com/lumeodev/cra_backend/config"
	"github.com/lumeodev/cra_backend/utils"
	"gorm.io/gorm"
)

// Relation rows. Entry ownership is expressed through these explicit link
// tables rather than bare foreign keys so that associations stay auditable.
// Link rows are created and deleted by the linker functions below and by
// nothing else.

// ReportEntryLink pairs a report with one of its entries. 1:1 per entry.
type ReportEntryLink struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	ReportId  int       `gorm:"index;not null;uniqueIndex:idx_report_entry,priority:1" json:"report_id"`
	EntryId   int       `gorm:"not null;uniqueIndex:idx_report_entry,priority:2;uniqueIndex:idx_entry_once" json:"entry_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ReportMissionLink pairs a report with a mission referenced by at least one
// of its active entries. Unique per pair.
type ReportMissionLink struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	ReportId  int       `gorm:"not null;uniqueIndex:idx_report_mission,priority:1" json:"report_id"`
	MissionId int       `gorm:"not null;uniqueIndex:idx_report_mission,priority:2" json:"mission_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// attachEntryLink records which report an entry belongs to. Called once at
// entry creation; the pair never changes afterwards.
func attachEntryLink(ctx context.Context, tx *gorm.DB, companyId string, reportId int, entryId int) error {
	link := ReportEntryLink{
		CompanyId: companyId,
		ReportId:  reportId,
		EntryId:   entryId,
	}
	return tx.WithContext(ctx).Create(&link).Error
}

// linkMission creates the report<->mission link if absent. Idempotent: an
// existing link is left untouched.
func linkMission(ctx context.Context, tx *gorm.DB, companyId string, reportId int, missionId int) error {
	var existing ReportMissionLink
	err := tx.WithContext(ctx).
		Where("report_id = ? AND mission_id = ?", reportId, missionId).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	link := ReportMissionLink{
		CompanyId: companyId,
		ReportId:  reportId,
		MissionId: missionId,
	}
	if err := tx.WithContext(ctx).Create(&link).Error; err != nil {
		// a concurrent creator may have inserted the pair first; that is the
		// desired end state
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}
	return nil
}

// unlinkMissionIfOrphaned removes the report<->mission link when no active
// entry remains for the pair. The count runs inside the caller's transaction,
// after the triggering mutation has been persisted, so a concurrently
// committed entry for the same mission is either counted (keeping the link)
// or will re-link on its own create path. A missing link is a no-op.
func unlinkMissionIfOrphaned(ctx context.Context, tx *gorm.DB, reportId int, missionId int) error {
	var remaining int64
	err := tx.WithContext(ctx).Model(&Entry{}).
		Where("report_id = ? AND mission_id = ?", reportId, missionId).
		Count(&remaining).Error
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Where("report_id = ? AND mission_id = ?", reportId, missionId).
		Delete(&ReportMissionLink{}).Error
}

// RemoveMissionLink is the administrative variant: it asserts the link exists
// and that no active entry still references the pair. Unlike the lifecycle
// path, a missing link here is a hard error.
func RemoveMissionLink(ctx context.Context, reportId int, missionId int) error {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return errors.New("company id is required")
	}
	if err := utils.ValidateResourceId[Mission](ctx, companyId, missionId); err != nil {
		return ErrMissionNotFound
	}

	db := config.GetDB()
	tx := db.Begin()

	var link ReportMissionLink
	err := tx.WithContext(ctx).
		Where("company_id = ? AND report_id = ? AND mission_id = ?", companyId, reportId, missionId).
		First(&link).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMissionLinkNotFound
		}
		return err
	}

	var remaining int64
	if err := tx.WithContext(ctx).Model(&Entry{}).
		Where("report_id = ? AND mission_id = ?", reportId, missionId).
		Count(&remaining).Error; err != nil {
		tx.Rollback()
		return err
	}
	if remaining > 0 {
		tx.Rollback()
		return errors.New("mission still has active entries in this report")
	}

	if err := tx.WithContext(ctx).Delete(&link).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// ListReportMissionLinks returns the current link set of a report.
func ListReportMissionLinks(ctx context.Context, reportId int) ([]*ReportMissionLink, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var links []*ReportMissionLink
	err := db.WithContext(ctx).
		Where("company_id = ? AND report_id = ?", companyId, reportId).
		Order("mission_id").
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}
