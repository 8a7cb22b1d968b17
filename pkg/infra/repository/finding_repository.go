package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/domain/finding"
)

type findingRepository struct {
	db *gorm.DB
}

func NewFindingRepository(db *gorm.DB) finding.Repository {
	return &findingRepository{
		db: db,
	}
}

func (r *findingRepository) SignatureExists(ctx context.Context, signature string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&finding.Finding{}).
		Where("signature = ?", signature).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check finding signature: %w", err)
	}
	return count > 0, nil
}

func (r *findingRepository) Insert(ctx context.Context, entity *finding.Finding) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSignature
		}
		return fmt.Errorf("failed to insert finding: %w", err)
	}
	return nil
}

func (r *findingRepository) IncrementHitCount(ctx context.Context, signature string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&finding.Finding{}).
		Where("signature = ?", signature).
		Updates(map[string]interface{}{
			"hit_count":    gorm.Expr("hit_count + 1"),
			"last_seen_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment hit count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("finding", signature)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
