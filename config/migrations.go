package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"p9e.in/recup/models"
)

func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "20240310_create_recovery_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.User{}, &models.ServiceType{}, &models.Sector{},
					&models.Cycle{}, &models.CycleService{}, &models.SectorService{}, &models.SectorPhoto{})
			},
		},
		{
			// The unique pair backs the cycle-count collision detection on
			// concurrent intakes for the same tag.
			ID: "20240415_sector_tag_cycle_unique",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_sectors_tag_cycle ON sectors (tag_number, cycle_count)").Error
			},
		},
		{
			ID: "20240502_cycle_created_at_index",
			Migrate: func(tx *gorm.DB) error {
				// Active-cycle lookup is "most recent by creation time, limit 1".
				return tx.Exec("CREATE INDEX IF NOT EXISTS idx_cycles_sector_created ON cycles (sector_id, created_at DESC)").Error
			},
		},
	})

	return m.Migrate()
}
