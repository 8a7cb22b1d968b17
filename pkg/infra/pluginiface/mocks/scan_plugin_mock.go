package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sentinelsec/sentinel-core/pkg/types"
)

type MockScanPlugin struct {
	mock.Mock
}

func (m *MockScanPlugin) Metadata() types.PluginMetadata {
	args := m.Called()
	meta, _ := args.Get(0).(types.PluginMetadata) //nolint:errcheck
	return meta
}

func (m *MockScanPlugin) State() types.PluginState {
	args := m.Called()
	state, _ := args.Get(0).(types.PluginState) //nolint:errcheck
	return state
}

func (m *MockScanPlugin) HandlesRequests() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockScanPlugin) HandlesResponses() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockScanPlugin) ScanRequest(ctx context.Context, req *types.RequestContext) ([]*types.Finding, error) {
	args := m.Called(ctx, req)
	findings, _ := args.Get(0).([]*types.Finding) //nolint:errcheck
	return findings, args.Error(1)
}

func (m *MockScanPlugin) ScanResponse(ctx context.Context, req *types.RequestContext, resp *types.ResponseContext) ([]*types.Finding, error) {
	args := m.Called(ctx, req, resp)
	findings, _ := args.Get(0).([]*types.Finding) //nolint:errcheck
	return findings, args.Error(1)
}

func (m *MockScanPlugin) Close() {
	m.Called()
}
