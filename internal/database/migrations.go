package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

// indexes that AutoMigrate cannot express.
var indexes = []string{
	// At most one open offer per trip.
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_offer_per_trip
		ON trip_assignments (trip_id) WHERE status = 'offered'`,
	`CREATE INDEX IF NOT EXISTS idx_trip_assignments_open_ttl
		ON trip_assignments (ttl_expires_at) WHERE status = 'offered'`,
}

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Trip{},
		&models.Assignment{},
		&models.OutboxEntry{},
		&models.DriverLocation{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
