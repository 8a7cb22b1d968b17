package mocks

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/sentinelsec/sentinel-core/pkg/domain/plugin"
)

type Repository struct {
	mock.Mock
}

func (m *Repository) GetByID(ctx context.Context, id string) (*plugin.Plugin, error) {
	args := m.Called(ctx, id)
	entity, ok := args.Get(0).(*plugin.Plugin)
	if !ok && args.Get(0) != nil {
		return nil, fmt.Errorf("expected *plugin.Plugin, got %T", args.Get(0))
	}
	return entity, args.Error(1)
}

func (m *Repository) ListEnabled(ctx context.Context, mainCategory string) ([]*plugin.Plugin, error) {
	args := m.Called(ctx, mainCategory)
	entities, ok := args.Get(0).([]*plugin.Plugin)
	if !ok && args.Get(0) != nil {
		return nil, fmt.Errorf("expected []*plugin.Plugin, got %T", args.Get(0))
	}
	return entities, args.Error(1)
}
