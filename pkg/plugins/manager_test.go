package plugins

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/domain/plugin"
	pluginmocks "github.com/sentinelsec/sentinel-core/pkg/domain/plugin/mocks"
	ifacemocks "github.com/sentinelsec/sentinel-core/pkg/infra/pluginiface/mocks"
	"github.com/sentinelsec/sentinel-core/pkg/plugins/mocks"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

func testEntity(id string) *plugin.Plugin {
	return &plugin.Plugin{
		ID:           id,
		Name:         id,
		MainCategory: "passive",
		Code:         "export function scan_request(req) {}",
		Enabled:      true,
	}
}

func newTestManager(t *testing.T) (Manager, *pluginmocks.Repository, *mocks.MockRuntimeFactory) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	repo := new(pluginmocks.Repository)
	factory := new(mocks.MockRuntimeFactory)
	return NewManager(repo, factory, "passive", logger), repo, factory
}

func readyInstance(id string) *ifacemocks.MockScanPlugin {
	instance := new(ifacemocks.MockScanPlugin)
	instance.On("Metadata").Return(types.PluginMetadata{ID: id, Name: id, Version: "1.0.0"}).Maybe()
	instance.On("Close").Return().Maybe()
	return instance
}

func TestManager_AddPlugin_LoadsFromRegistry(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	entity := testEntity("sqli-detector")
	instance := readyInstance("sqli-detector")

	repo.On("GetByID", mock.Anything, "sqli-detector").Return(entity, nil)
	factory.On("Build", entity.Metadata(), entity.Code).Return(instance, nil)

	err := manager.AddPlugin(context.Background(), "sqli-detector")

	require.NoError(t, err)
	assert.Equal(t, 1, manager.PluginCount())
	got, ok := manager.GetPlugin("sqli-detector")
	assert.True(t, ok)
	assert.Same(t, instance, got)
	factory.AssertExpectations(t)
}

func TestManager_AddPlugin_RejectsDisabled(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	entity := testEntity("off")
	entity.Enabled = false

	repo.On("GetByID", mock.Anything, "off").Return(entity, nil)

	err := manager.AddPlugin(context.Background(), "off")

	assert.ErrorIs(t, err, domain.ErrPluginDisabled)
	assert.Equal(t, 0, manager.PluginCount())
	factory.AssertNotCalled(t, "Build", mock.Anything, mock.Anything)
}

func TestManager_AddPlugin_RejectsWrongCategory(t *testing.T) {
	manager, repo, _ := newTestManager(t)
	entity := testEntity("active-only")
	entity.MainCategory = "active"

	repo.On("GetByID", mock.Anything, "active-only").Return(entity, nil)

	err := manager.AddPlugin(context.Background(), "active-only")

	assert.ErrorIs(t, err, domain.ErrPluginWrongCategory)
	assert.Equal(t, 0, manager.PluginCount())
}

func TestManager_AddPlugin_UnknownID(t *testing.T) {
	manager, repo, _ := newTestManager(t)

	repo.On("GetByID", mock.Anything, "ghost").Return(nil, domain.NewNotFoundError("plugin", "ghost"))

	err := manager.AddPlugin(context.Background(), "ghost")

	require.Error(t, err)
	assert.True(t, domain.IsNotFoundError(err))
}

func TestManager_AddPlugin_BuildFailure(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	entity := testEntity("broken")

	repo.On("GetByID", mock.Anything, "broken").Return(entity, nil)
	factory.On("Build", entity.Metadata(), entity.Code).Return(nil, assert.AnError)

	err := manager.AddPlugin(context.Background(), "broken")

	require.Error(t, err)
	assert.Equal(t, 0, manager.PluginCount())
}

func TestManager_ReloadPlugin_SwapsInstance(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	entity := testEntity("swap")
	first := readyInstance("swap")
	second := readyInstance("swap")

	repo.On("GetByID", mock.Anything, "swap").Return(entity, nil)
	factory.On("Build", entity.Metadata(), entity.Code).Return(first, nil).Once()
	factory.On("Build", entity.Metadata(), entity.Code).Return(second, nil).Once()

	require.NoError(t, manager.AddPlugin(context.Background(), "swap"))
	require.NoError(t, manager.ReloadPlugin(context.Background(), "swap"))

	got, ok := manager.GetPlugin("swap")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, manager.PluginCount())
	first.AssertCalled(t, "Close")
}

func TestManager_ReloadPlugin_BuildFailureKeepsOldInstance(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	entity := testEntity("sticky")
	first := readyInstance("sticky")

	repo.On("GetByID", mock.Anything, "sticky").Return(entity, nil)
	factory.On("Build", entity.Metadata(), entity.Code).Return(first, nil).Once()
	factory.On("Build", entity.Metadata(), entity.Code).Return(nil, assert.AnError).Once()

	require.NoError(t, manager.AddPlugin(context.Background(), "sticky"))
	err := manager.ReloadPlugin(context.Background(), "sticky")

	require.Error(t, err)
	got, ok := manager.GetPlugin("sticky")
	require.True(t, ok)
	assert.Same(t, first, got)
	first.AssertNotCalled(t, "Close")
}

func TestManager_ReloadPlugin_DisabledKeepsOldInstance(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	enabled := testEntity("togglable")
	disabled := testEntity("togglable")
	disabled.Enabled = false
	instance := readyInstance("togglable")

	repo.On("GetByID", mock.Anything, "togglable").Return(enabled, nil).Once()
	repo.On("GetByID", mock.Anything, "togglable").Return(disabled, nil).Once()
	factory.On("Build", enabled.Metadata(), enabled.Code).Return(instance, nil).Once()

	require.NoError(t, manager.AddPlugin(context.Background(), "togglable"))
	err := manager.ReloadPlugin(context.Background(), "togglable")

	assert.ErrorIs(t, err, domain.ErrPluginDisabled)
	assert.Equal(t, 1, manager.PluginCount())
	got, ok := manager.GetPlugin("togglable")
	require.True(t, ok)
	assert.Same(t, instance, got)
	instance.AssertNotCalled(t, "Close")
}

func TestManager_ReloadPlugin_WrongCategoryKeepsOldInstance(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	passive := testEntity("moved")
	active := testEntity("moved")
	active.MainCategory = "active"
	instance := readyInstance("moved")

	repo.On("GetByID", mock.Anything, "moved").Return(passive, nil).Once()
	repo.On("GetByID", mock.Anything, "moved").Return(active, nil).Once()
	factory.On("Build", passive.Metadata(), passive.Code).Return(instance, nil).Once()

	require.NoError(t, manager.AddPlugin(context.Background(), "moved"))
	err := manager.ReloadPlugin(context.Background(), "moved")

	assert.ErrorIs(t, err, domain.ErrPluginWrongCategory)
	got, ok := manager.GetPlugin("moved")
	require.True(t, ok)
	assert.Same(t, instance, got)
	instance.AssertNotCalled(t, "Close")
}

func TestManager_RemovePlugin(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	entity := testEntity("removable")
	instance := readyInstance("removable")

	repo.On("GetByID", mock.Anything, "removable").Return(entity, nil)
	factory.On("Build", entity.Metadata(), entity.Code).Return(instance, nil)
	factory.On("Discard", "removable").Return()

	require.NoError(t, manager.AddPlugin(context.Background(), "removable"))
	require.NoError(t, manager.RemovePlugin("removable"))

	assert.Equal(t, 0, manager.PluginCount())
	_, ok := manager.GetPlugin("removable")
	assert.False(t, ok)
	instance.AssertCalled(t, "Close")

	err := manager.RemovePlugin("removable")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestManager_LoadEnabledPlugins_SkipsFailures(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	good := testEntity("good")
	bad := testEntity("bad")
	alsoGood := testEntity("also-good")

	repo.On("ListEnabled", mock.Anything, "passive").Return([]*plugin.Plugin{good, bad, alsoGood}, nil)
	factory.On("Build", good.Metadata(), good.Code).Return(readyInstance("good"), nil)
	factory.On("Build", bad.Metadata(), bad.Code).Return(nil, assert.AnError)
	factory.On("Build", alsoGood.Metadata(), alsoGood.Code).Return(readyInstance("also-good"), nil)

	err := manager.LoadEnabledPlugins(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, manager.PluginCount())
	_, ok := manager.GetPlugin("bad")
	assert.False(t, ok)
}

func TestManager_Plugins_PreservesLoadOrder(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	for _, id := range []string{"alpha", "beta", "gamma"} {
		entity := testEntity(id)
		repo.On("GetByID", mock.Anything, id).Return(entity, nil)
		factory.On("Build", entity.Metadata(), entity.Code).Return(readyInstance(id), nil)
		require.NoError(t, manager.AddPlugin(context.Background(), id))
	}

	var ids []string
	for _, p := range manager.Plugins() {
		ids = append(ids, p.Metadata().ID)
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, ids)
}

func TestManager_Close(t *testing.T) {
	manager, repo, factory := newTestManager(t)
	entity := testEntity("closeme")
	instance := readyInstance("closeme")

	repo.On("GetByID", mock.Anything, "closeme").Return(entity, nil)
	factory.On("Build", entity.Metadata(), entity.Code).Return(instance, nil)

	require.NoError(t, manager.AddPlugin(context.Background(), "closeme"))
	manager.Close()

	assert.Equal(t, 0, manager.PluginCount())
	instance.AssertCalled(t, "Close")
}
