package models

import (
	"log"

	"github.com/wavehaus/bookings_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Payment{},
		&AuditLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
