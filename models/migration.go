package models

import (
	"log"

	"github.com/lumeodev/cra_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Mission{},
		&Report{}, &Entry{},
		&ReportEntryLink{}, &ReportMissionLink{},
		&OutboxMessageRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
