package models

import (
	"fmt"

	"gorm.io/gorm"
)

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_header_output_run_date ON header_output(model_run_date)",
	"CREATE INDEX IF NOT EXISTS idx_detail_output_year ON detail_output(year)",
}

// Migrate creates or updates the run tables and their secondary indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}
	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Drop removes the run tables, details first.
func Drop(db *gorm.DB) error {
	all := AllModels()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}
