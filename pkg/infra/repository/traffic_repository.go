package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sentinelsec/sentinel-core/pkg/domain/traffic"
)

type trafficRepository struct {
	db *gorm.DB
}

func NewTrafficRepository(db *gorm.DB) traffic.Repository {
	return &trafficRepository{
		db: db,
	}
}

func (r *trafficRepository) InsertRecord(ctx context.Context, record *traffic.Record) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to insert traffic record: %w", err)
	}
	return nil
}
