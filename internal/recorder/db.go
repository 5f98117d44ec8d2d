package recorder

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/stitts-dev/market-value-forecast/internal/models"
	"github.com/stitts-dev/market-value-forecast/pkg/database"
)

const detailBatchSize = 500

// DBRecorder writes runs to the header_output and detail_output tables.
type DBRecorder struct {
	db *database.DB
}

func NewDBRecorder(db *database.DB) *DBRecorder {
	return &DBRecorder{db: db}
}

func (r *DBRecorder) Name() string {
	return "database"
}

// Record stores the header and every detail row in one transaction.
func (r *DBRecorder) Record(ctx context.Context, header models.RunHeader, details []models.RunDetail) error {
	header.Details = nil
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&header).Error; err != nil {
			return fmt.Errorf("failed to insert run header: %w", err)
		}
		if len(details) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(details, detailBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert run details: %w", err)
		}
		return nil
	})
}

// GetRun loads a run header with its details ordered by player and year.
func (r *DBRecorder) GetRun(ctx context.Context, runID string) (*models.RunHeader, error) {
	var header models.RunHeader
	err := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB {
			return db.Order("player_id, year")
		}).
		Where("model_output_id = ?", runID).
		First(&header).Error
	if err != nil {
		return nil, err
	}
	return &header, nil
}

// ListRuns returns the most recent run headers.
func (r *DBRecorder) ListRuns(ctx context.Context, limit int) ([]models.RunHeader, error) {
	var headers []models.RunHeader
	err := r.db.WithContext(ctx).
		Order("model_run_date DESC").
		Limit(limit).
		Find(&headers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return headers, nil
}
