package pluginiface

import (
	"context"

	"github.com/sentinelsec/sentinel-core/pkg/types"
)

//go:generate mockery --name=ScanPlugin --dir=. --output=./mocks --filename=scan_plugin_mock.go --case=underscore --with-expecter

// ScanPlugin is a loaded passive-scan plugin. Implementations run untrusted
// plugin code, so every scan call is bounded by the context deadline plus the
// runtime's own invocation timeout.
//
// Scan calls return the findings the plugin emitted during the invocation.
// When the invocation fails partway through, findings emitted before the
// failure are still returned alongside the error.
type ScanPlugin interface {
	// Metadata returns the descriptor parsed from the plugin module.
	Metadata() types.PluginMetadata

	// State reports where the plugin is in its lifecycle.
	State() types.PluginState

	// HandlesRequests reports whether the module exports a scan_request hook.
	HandlesRequests() bool

	// HandlesResponses reports whether the module exports a scan_response hook.
	HandlesResponses() bool

	// ScanRequest invokes the scan_request hook with an intercepted request.
	ScanRequest(ctx context.Context, req *types.RequestContext) ([]*types.Finding, error)

	// ScanResponse invokes the scan_response hook with a response and the
	// request that produced it. The request may be nil when correlation
	// failed.
	ScanResponse(ctx context.Context, req *types.RequestContext, resp *types.ResponseContext) ([]*types.Finding, error)

	// Close releases the plugin runtime. The plugin must not be invoked
	// afterwards.
	Close()
}
