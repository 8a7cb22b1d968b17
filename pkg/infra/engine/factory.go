package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/infra/httpx"
	"github.com/sentinelsec/sentinel-core/pkg/infra/pluginiface"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

// PluginFactory builds ready-to-scan plugin instances from source code. It
// owns the shared loader, so every plugin it builds resolves imports against
// the same module registry and compiled-bundle cache.
type PluginFactory struct {
	loader     *Loader
	httpClient httpx.Client
	logger     *logrus.Logger
	opts       []RuntimeOption
}

func NewPluginFactory(loader *Loader, httpClient httpx.Client, logger *logrus.Logger, opts ...RuntimeOption) *PluginFactory {
	return &PluginFactory{
		loader:     loader,
		httpClient: httpClient,
		logger:     logger,
		opts:       opts,
	}
}

// Build registers the plugin source, spins up a fresh runtime and loads the
// module with the given registry metadata as the seed. A failed load tears
// the new runtime down and reports the error; the caller decides what
// happens to any instance it may already hold.
func (f *PluginFactory) Build(meta types.PluginMetadata, source string) (pluginiface.ScanPlugin, error) {
	specifier := f.loader.RegisterPlugin(meta.ID, source)
	runtime := NewRuntime(meta.ID, f.loader, f.httpClient, f.logger, f.opts...)
	if err := runtime.Load(specifier, meta); err != nil {
		runtime.Close()
		return nil, err
	}
	return runtime, nil
}

// Discard drops the plugin's module source from the registry.
func (f *PluginFactory) Discard(pluginID string) {
	f.loader.UnregisterPlugin(pluginID)
}

// Loader exposes the shared loader for stats snapshots.
func (f *PluginFactory) Loader() *Loader {
	return f.loader
}
