package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/sentinelsec/sentinel-core/pkg/infra/pluginiface"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

type MockRuntimeFactory struct {
	mock.Mock
}

func (m *MockRuntimeFactory) Build(meta types.PluginMetadata, source string) (pluginiface.ScanPlugin, error) {
	args := m.Called(meta, source)
	plugin, _ := args.Get(0).(pluginiface.ScanPlugin) //nolint:errcheck
	return plugin, args.Error(1)
}

func (m *MockRuntimeFactory) Discard(pluginID string) {
	m.Called(pluginID)
}
