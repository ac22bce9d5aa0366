package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&TicketRow{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&EmbeddingRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("tickets", "embeddings")
			},
		},
		{
			ID: "002_analysis_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&AnalysisRun{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("analysis_runs")
			},
		},
	})
	return m.Migrate()
}
