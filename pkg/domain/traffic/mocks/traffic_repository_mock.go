package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sentinelsec/sentinel-core/pkg/domain/traffic"
)

type Repository struct {
	mock.Mock
}

func (m *Repository) InsertRecord(ctx context.Context, record *traffic.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}
