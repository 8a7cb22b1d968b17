package plugins

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/domain/plugin"
	"github.com/sentinelsec/sentinel-core/pkg/infra/pluginiface"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

//go:generate mockery --name=Manager --dir=. --output=./mocks --filename=plugin_manager_mock.go --case=underscore --with-expecter

// Manager owns the set of loaded plugins for one scan pipeline. Plugin code
// lives in the persistent registry; the manager decides which entries are
// eligible (enabled, matching the pipeline's main category), builds runtimes
// for them and swaps instances atomically on reload.
type Manager interface {
	// AddPlugin loads a plugin from the registry. An already-loaded plugin
	// is replaced.
	AddPlugin(ctx context.Context, id string) error

	// RemovePlugin unloads a plugin and discards its module source.
	RemovePlugin(id string) error

	// ReloadPlugin rebuilds a plugin from its current registry entry. Any
	// failure, including an entry that is gone, disabled or moved to
	// another category, leaves the running instance untouched.
	ReloadPlugin(ctx context.Context, id string) error

	// GetPlugin returns a loaded plugin by ID.
	GetPlugin(id string) (pluginiface.ScanPlugin, bool)

	// Plugins returns the loaded plugins in load order. The slice is a
	// snapshot; instances may be closed by concurrent reloads.
	Plugins() []pluginiface.ScanPlugin

	// PluginCount returns the number of loaded plugins.
	PluginCount() int

	// LoadEnabledPlugins loads every eligible registry entry. Individual
	// load failures are logged and skipped.
	LoadEnabledPlugins(ctx context.Context) error

	// Close unloads all plugins.
	Close()
}

//go:generate mockery --name=RuntimeFactory --dir=. --output=./mocks --filename=runtime_factory_mock.go --case=underscore --with-expecter

// RuntimeFactory turns plugin source into a ready ScanPlugin instance. The
// metadata seed comes from the plugin's registry row.
type RuntimeFactory interface {
	Build(meta types.PluginMetadata, source string) (pluginiface.ScanPlugin, error)
	Discard(pluginID string)
}

type manager struct {
	logger       *logrus.Logger
	repository   plugin.Repository
	factory      RuntimeFactory
	mainCategory string

	mu      sync.RWMutex
	plugins map[string]pluginiface.ScanPlugin
	order   []string
}

func NewManager(repository plugin.Repository, factory RuntimeFactory, mainCategory string, logger *logrus.Logger) Manager {
	return &manager{
		logger:       logger,
		repository:   repository,
		factory:      factory,
		mainCategory: mainCategory,
		plugins:      make(map[string]pluginiface.ScanPlugin),
	}
}

func (m *manager) AddPlugin(ctx context.Context, id string) error {
	entity, err := m.eligibleEntity(ctx, id)
	if err != nil {
		return err
	}
	return m.buildAndSwap(entity)
}

func (m *manager) ReloadPlugin(ctx context.Context, id string) error {
	entity, err := m.eligibleEntity(ctx, id)
	if err != nil {
		return err
	}
	return m.buildAndSwap(entity)
}

func (m *manager) eligibleEntity(ctx context.Context, id string) (*plugin.Plugin, error) {
	entity, err := m.repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entity.Enabled {
		return nil, domain.ErrPluginDisabled
	}
	if m.mainCategory != "" && entity.MainCategory != m.mainCategory {
		return nil, domain.ErrPluginWrongCategory
	}
	return entity, nil
}

func (m *manager) buildAndSwap(entity *plugin.Plugin) error {
	instance, err := m.factory.Build(entity.Metadata(), entity.Code)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old, existed := m.plugins[entity.ID]
	m.plugins[entity.ID] = instance
	if !existed {
		m.order = append(m.order, entity.ID)
	}
	m.mu.Unlock()

	if existed {
		old.Close()
	}

	meta := instance.Metadata()
	m.logger.WithFields(logrus.Fields{
		"plugin_id":      entity.ID,
		"plugin_name":    meta.Name,
		"plugin_version": meta.Version,
		"replaced":       existed,
	}).Info("Plugin registered")
	return nil
}

func (m *manager) RemovePlugin(id string) error {
	if !m.unload(id) {
		return domain.NewNotFoundError("plugin", id)
	}
	m.logger.WithField("plugin_id", id).Info("Plugin removed")
	return nil
}

// unload drops a plugin instance if present and reports whether it did.
func (m *manager) unload(id string) bool {
	m.mu.Lock()
	instance, ok := m.plugins[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.plugins, id)
	for i, pid := range m.order {
		if pid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	instance.Close()
	m.factory.Discard(id)
	return true
}

func (m *manager) GetPlugin(id string) (pluginiface.ScanPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	instance, ok := m.plugins[id]
	return instance, ok
}

func (m *manager) Plugins() []pluginiface.ScanPlugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make([]pluginiface.ScanPlugin, 0, len(m.order))
	for _, id := range m.order {
		snapshot = append(snapshot, m.plugins[id])
	}
	return snapshot
}

func (m *manager) PluginCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

func (m *manager) LoadEnabledPlugins(ctx context.Context) error {
	entities, err := m.repository.ListEnabled(ctx, m.mainCategory)
	if err != nil {
		return err
	}

	loaded := 0
	for _, entity := range entities {
		if err := m.buildAndSwap(entity); err != nil {
			m.logger.WithError(err).WithField("plugin_id", entity.ID).Error("Failed to load plugin")
			continue
		}
		loaded++
	}

	m.logger.WithFields(logrus.Fields{
		"loaded": loaded,
		"total":  len(entities),
	}).Info("Enabled plugins loaded")
	return nil
}

func (m *manager) Close() {
	m.mu.Lock()
	instances := make([]pluginiface.ScanPlugin, 0, len(m.plugins))
	for _, instance := range m.plugins {
		instances = append(instances, instance)
	}
	m.plugins = make(map[string]pluginiface.ScanPlugin)
	m.order = nil
	m.mu.Unlock()

	for _, instance := range instances {
		instance.Close()
	}
}
