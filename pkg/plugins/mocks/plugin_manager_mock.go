package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sentinelsec/sentinel-core/pkg/infra/pluginiface"
)

type MockManager struct {
	mock.Mock
}

func (m *MockManager) AddPlugin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockManager) RemovePlugin(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockManager) ReloadPlugin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockManager) GetPlugin(id string) (pluginiface.ScanPlugin, bool) {
	args := m.Called(id)
	plugin, _ := args.Get(0).(pluginiface.ScanPlugin) //nolint:errcheck
	return plugin, args.Bool(1)
}

func (m *MockManager) Plugins() []pluginiface.ScanPlugin {
	args := m.Called()
	plugins, _ := args.Get(0).([]pluginiface.ScanPlugin) //nolint:errcheck
	return plugins
}

func (m *MockManager) PluginCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockManager) LoadEnabledPlugins(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockManager) Close() {
	m.Called()
}
