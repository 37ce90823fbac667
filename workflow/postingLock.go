package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireReportPostingLock serializes lock transitions per company across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB transaction that performs the lock. Other dialects (SQLite in
// tests) serialize writers at the database level and skip the advisory lock.
func AcquireReportPostingLock(tx *gorm.DB, companyId string) error {
	if tx.Dialector.Name() != "mysql" {
		return nil
	}
	lockName := fmt.Sprintf("report-posting:%s", companyId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for company_id=%s", companyId)
	}
	return nil
}

func ReleaseReportPostingLock(tx *gorm.DB, companyId string) {
	if tx.Dialector.Name() != "mysql" {
		return
	}
	lockName := fmt.Sprintf("report-posting:%s", companyId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
