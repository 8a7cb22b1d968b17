package types

// PluginState tracks a plugin runtime through its lifecycle. A runtime is
// created empty, loads its module, and becomes ready once the exported scan
// hooks have been validated. Load failures are terminal for that instance;
// reloads swap in a fresh runtime instead of reviving a failed one.
type PluginState string

const (
	PluginStateCreated PluginState = "created"
	PluginStateLoaded  PluginState = "loaded"
	PluginStateReady   PluginState = "ready"
	PluginStateFailed  PluginState = "failed"
	PluginStateClosed  PluginState = "closed"
)

// PluginMetadata describes a loaded plugin. It is immutable for the
// lifetime of a runtime instance and replaced wholesale on reload.
type PluginMetadata struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	Author          string   `json:"author,omitempty"`
	MainCategory    string   `json:"main_category"`
	Category        string   `json:"category"`
	Description     string   `json:"description,omitempty"`
	DefaultSeverity Severity `json:"default_severity"`
	Tags            []string `json:"tags"`
}
