package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	esbuild "github.com/evanw/esbuild/pkg/api"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
)

const (
	// SpecifierScheme prefixes every module specifier served from the
	// in-memory registry.
	SpecifierScheme = "sentinel"

	// exportsGlobal is the global the compiled bundle assigns its module
	// exports to. The runtime reads it back after evaluation.
	exportsGlobal = "__sentinel_exports__"

	moduleNamespace = "sentinel-modules"

	// DefaultTranspileCacheSize bounds the compiled-bundle cache when no size
	// is configured.
	DefaultTranspileCacheSize = 256
)

// SafeModuleID sanitizes a plugin ID for use inside a module specifier.
// Alphanumerics, underscores and hyphens pass through; everything else
// becomes an underscore.
func SafeModuleID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// PluginSpecifier returns the canonical module specifier for a plugin ID.
func PluginSpecifier(pluginID string) string {
	return fmt.Sprintf("%s://plugin_%s.ts", SpecifierScheme, SafeModuleID(pluginID))
}

// Loader keeps plugin module sources in an in-memory registry and compiles
// them into self-contained script bundles. TypeScript is lowered and imports
// between registered modules are resolved at compile time, so the runtime
// only ever evaluates plain JavaScript.
//
// Compiled bundles are cached in an LRU keyed by the content hash of the
// entry source. Re-registering a plugin with changed source therefore always
// recompiles, while reloading unchanged source is a cache hit.
type Loader struct {
	mu      sync.RWMutex
	modules map[string]string
	cache   *lru.LRU[string, string]
	logger  *logrus.Logger
}

func NewLoader(cacheSize int, logger *logrus.Logger) *Loader {
	if cacheSize <= 0 {
		cacheSize = DefaultTranspileCacheSize
	}
	return &Loader{
		modules: make(map[string]string),
		cache:   lru.NewLRU[string, string](cacheSize, nil, 0),
		logger:  logger,
	}
}

// Register stores a module source under a specifier, replacing any previous
// source.
func (l *Loader) Register(specifier, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules[specifier] = source
}

// Unregister removes a module source. Compiled bundles already handed out
// keep working; only future compiles are affected.
func (l *Loader) Unregister(specifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.modules, specifier)
}

// RegisterPlugin registers plugin source under its canonical specifier and
// returns that specifier.
func (l *Loader) RegisterPlugin(pluginID, source string) string {
	specifier := PluginSpecifier(pluginID)
	l.Register(specifier, source)
	return specifier
}

// UnregisterPlugin removes a plugin's source from the registry.
func (l *Loader) UnregisterPlugin(pluginID string) {
	l.Unregister(PluginSpecifier(pluginID))
}

// ModuleCount returns the number of registered module sources.
func (l *Loader) ModuleCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.modules)
}

// CacheLen returns the number of cached compiled bundles.
func (l *Loader) CacheLen() int {
	return l.cache.Len()
}

// Resolve maps an import specifier to a canonical registry key.
//
//   - "./x" and "../x" resolve against the referrer's directory within the
//     referrer's scheme
//   - specifiers that already carry a scheme pass through unchanged
//   - bare names resolve into the sentinel scheme, so plugins can import
//     helper modules registered by the host as "sentinel://<name>"
func (l *Loader) Resolve(specifier, referrer string) (string, error) {
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		idx := strings.Index(referrer, "://")
		if idx < 0 {
			return "", domain.NewLoadError(specifier, fmt.Errorf("relative import from invalid referrer %q", referrer))
		}
		scheme, rest := referrer[:idx], referrer[idx+3:]
		joined := path.Join(path.Dir(rest), specifier)
		return scheme + "://" + joined, nil
	}
	if strings.Contains(specifier, "://") {
		return specifier, nil
	}
	return SpecifierScheme + "://" + specifier, nil
}

// Load returns the registered source for a specifier.
func (l *Loader) Load(specifier string) (string, error) {
	l.mu.RLock()
	source, ok := l.modules[specifier]
	l.mu.RUnlock()
	if !ok {
		return "", domain.NewLoadError(specifier, errors.New("module not registered"))
	}
	return source, nil
}

// Compile bundles the module graph rooted at the given specifier into a
// single script that assigns the entry module's exports to a well-known
// global. The result is cached by entry-source hash.
func (l *Loader) Compile(specifier string) (string, error) {
	source, err := l.Load(specifier)
	if err != nil {
		return "", err
	}

	key := hashSource(source)
	if bundle, ok := l.cache.Get(key); ok {
		return bundle, nil
	}

	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints: []string{specifier},
		Bundle:      true,
		Write:       false,
		Format:      esbuild.FormatIIFE,
		GlobalName:  exportsGlobal,
		Platform:    esbuild.PlatformNeutral,
		Target:      esbuild.ES2020,
		LogLevel:    esbuild.LogLevelSilent,
		Plugins:     []esbuild.Plugin{l.esbuildPlugin()},
	})
	if len(result.Errors) > 0 {
		return "", domain.NewTranspileError(specifier, errors.New(buildErrorText(result.Errors)))
	}
	if len(result.OutputFiles) == 0 {
		return "", domain.NewTranspileError(specifier, errors.New("build produced no output"))
	}

	bundle := string(result.OutputFiles[0].Contents)
	l.cache.Add(key, bundle)
	return bundle, nil
}

// esbuildPlugin routes every import through the registry: Resolve picks the
// canonical specifier and Load supplies the source.
func (l *Loader) esbuildPlugin() esbuild.Plugin {
	return esbuild.Plugin{
		Name: moduleNamespace,
		Setup: func(build esbuild.PluginBuild) {
			build.OnResolve(esbuild.OnResolveOptions{Filter: ".*"}, func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
				if args.Kind == esbuild.ResolveEntryPoint {
					return esbuild.OnResolveResult{Path: args.Path, Namespace: moduleNamespace}, nil
				}
				resolved, err := l.Resolve(args.Path, args.Importer)
				if err != nil {
					return esbuild.OnResolveResult{}, err
				}
				return esbuild.OnResolveResult{Path: resolved, Namespace: moduleNamespace}, nil
			})
			build.OnLoad(esbuild.OnLoadOptions{Filter: ".*", Namespace: moduleNamespace}, func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
				source, err := l.Load(args.Path)
				if err != nil {
					return esbuild.OnLoadResult{}, err
				}
				loader := esbuild.LoaderTS
				if strings.HasSuffix(args.Path, ".js") {
					loader = esbuild.LoaderJS
				}
				return esbuild.OnLoadResult{Contents: &source, Loader: loader}, nil
			})
		},
	}
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func buildErrorText(msgs []esbuild.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
		} else {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "; ")
}
