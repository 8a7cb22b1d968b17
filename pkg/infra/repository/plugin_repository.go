package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/domain/plugin"
)

type pluginRepository struct {
	db *gorm.DB
}

func NewPluginRepository(db *gorm.DB) plugin.Repository {
	return &pluginRepository{
		db: db,
	}
}

func (r *pluginRepository) GetByID(ctx context.Context, id string) (*plugin.Plugin, error) {
	entity := new(plugin.Plugin)
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("plugin", id)
		}
		return nil, fmt.Errorf("failed to fetch plugin: %w", err)
	}
	return entity, nil
}

func (r *pluginRepository) ListEnabled(ctx context.Context, mainCategory string) ([]*plugin.Plugin, error) {
	var entities []*plugin.Plugin
	query := r.db.WithContext(ctx).Where("enabled = ?", true)
	if mainCategory != "" {
		query = query.Where("main_category = ?", mainCategory)
	}
	if err := query.Order("id").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled plugins: %w", err)
	}
	return entities, nil
}
