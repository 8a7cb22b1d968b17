package plugin

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

// Plugin is a stored detection script together with its metadata. The code
// column holds the raw source (plain script or the typed dialect); the
// runtime transpiles it at load time.
type Plugin struct {
	ID              string          `json:"id" gorm:"primaryKey"`
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Author          string          `json:"author,omitempty"`
	MainCategory    string          `json:"main_category" gorm:"index"`
	Category        string          `json:"category"`
	Description     string          `json:"description,omitempty"`
	DefaultSeverity types.Severity  `json:"default_severity"`
	Tags            domain.TagsJSON `json:"tags" gorm:"type:jsonb"`
	Code            string          `json:"code" gorm:"type:text"`
	Enabled         bool            `json:"enabled" gorm:"default:true"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p *Plugin) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return p.Validate()
}

func (p *Plugin) BeforeUpdate(tx *gorm.DB) error {
	p.UpdatedAt = time.Now()
	return p.Validate()
}

func (p *Plugin) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}

	if p.Name == "" {
		return fmt.Errorf("name is required")
	}

	if p.Code == "" {
		return fmt.Errorf("code is required")
	}

	if p.DefaultSeverity == "" {
		p.DefaultSeverity = types.SeverityMedium
	}

	return nil
}

func (p *Plugin) TableName() string {
	return "public.plugin_registry"
}

// Metadata returns the immutable metadata handed to a runtime at load time.
func (p *Plugin) Metadata() types.PluginMetadata {
	return types.PluginMetadata{
		ID:              p.ID,
		Name:            p.Name,
		Version:         p.Version,
		Author:          p.Author,
		MainCategory:    p.MainCategory,
		Category:        p.Category,
		Description:     p.Description,
		DefaultSeverity: p.DefaultSeverity,
		Tags:            p.Tags,
	}
}
