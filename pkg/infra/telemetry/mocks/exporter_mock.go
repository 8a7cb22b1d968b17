package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sentinelsec/sentinel-core/pkg/domain/finding"
)

type Exporter struct {
	mock.Mock
}

func (m *Exporter) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *Exporter) Export(ctx context.Context, entity *finding.Finding) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *Exporter) Close() {
	m.Called()
}
