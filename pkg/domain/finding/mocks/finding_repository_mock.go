package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sentinelsec/sentinel-core/pkg/domain/finding"
)

type Repository struct {
	mock.Mock
}

func (m *Repository) SignatureExists(ctx context.Context, signature string) (bool, error) {
	args := m.Called(ctx, signature)
	return args.Bool(0), args.Error(1)
}

func (m *Repository) Insert(ctx context.Context, f *finding.Finding) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *Repository) IncrementHitCount(ctx context.Context, signature string) error {
	args := m.Called(ctx, signature)
	return args.Error(0)
}
