package scanner_test

import (
	"context"
	"testing"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sentinelsec/sentinel-core/pkg/domain/finding"
	findingmocks "github.com/sentinelsec/sentinel-core/pkg/domain/finding/mocks"
	"github.com/sentinelsec/sentinel-core/pkg/domain/plugin"
	pluginmocks "github.com/sentinelsec/sentinel-core/pkg/domain/plugin/mocks"
	"github.com/sentinelsec/sentinel-core/pkg/infra/engine"
	httpxmocks "github.com/sentinelsec/sentinel-core/pkg/infra/httpx/mocks"
	"github.com/sentinelsec/sentinel-core/pkg/plugins"
	"github.com/sentinelsec/sentinel-core/pkg/scanner"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

const sqlErrorDetectorSource = `
export const metadata = {
	id: "sql-error-detector",
	name: "SQL Error Detector",
	version: "1.0.0",
	category: "injection",
	severity: "high",
};

export function scan_response(req, resp) {
	const body = String.fromCharCode(...resp.body);
	if (body.includes("ORA-")) {
		Sentinel.emitFinding({
			vuln_type: "sql_error_disclosure",
			title: "Database error message in response",
			evidence: "ORA-01756",
			location: req.url,
			severity: "high",
			confidence: "high",
		});
	}
}
`

// Feeds two correlated exchanges through a real script runtime and checks
// that the pair of identical findings collapses into a single stored row
// plus one hit.
func TestScanPipeline_EndToEnd(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	ctx := context.Background()

	registry := new(pluginmocks.Repository)
	registry.On("GetByID", mock.Anything, "sql-error-detector").Return(&plugin.Plugin{
		ID:           "sql-error-detector",
		Name:         "SQL Error Detector",
		Version:      "1.0.0",
		MainCategory: "passive",
		Category:     "injection",
		Code:         sqlErrorDetectorSource,
		Enabled:      true,
	}, nil).Once()

	factory := engine.NewPluginFactory(engine.NewLoader(16, logger), new(httpxmocks.MockHTTPClient), logger)
	manager := plugins.NewManager(registry, factory, "passive", logger)
	defer manager.Close()
	require.NoError(t, manager.AddPlugin(ctx, "sql-error-detector"))

	tasks, findings := newQueues()

	var inserted *finding.Finding
	store := new(findingmocks.Repository)
	store.On("SignatureExists", mock.Anything, mock.Anything).Return(false, nil).Once()
	store.On("Insert", mock.Anything, mock.AnythingOfType("*finding.Finding")).
		Run(func(args mock.Arguments) {
			inserted = args.Get(1).(*finding.Finding)
		}).Return(nil).Once()
	store.On("IncrementHitCount", mock.Anything, mock.Anything).Return(nil).Once()

	p := scanner.NewPipeline(manager, tasks, findings, logger)
	d := scanner.NewDeduplicator(findings, store, logger)

	first := sampleRequest()
	second := sampleRequest()
	second.ID = "req-2"
	secondResp := sampleResponse()
	secondResp.RequestID = "req-2"

	require.NoError(t, tasks.Push(types.NewRequestTask(first)))
	require.NoError(t, tasks.Push(types.NewResponseTask(sampleResponse())))
	require.NoError(t, tasks.Push(types.NewRequestTask(second)))
	require.NoError(t, tasks.Push(types.NewResponseTask(secondResp)))
	runToCompletion(t, p, tasks)

	assert.Equal(t, uint64(4), p.TasksProcessed())
	assert.Equal(t, uint64(2), p.FindingsEmitted())
	assert.Equal(t, 0, p.CorrelationEntries())

	runDedupToCompletion(t, d, findings)

	require.NotNil(t, inserted)
	assert.Equal(t, "sql-error-detector", inserted.PluginID)
	assert.Equal(t, "sql_error_disclosure", inserted.VulnType)
	assert.Equal(t, types.SeverityHigh, inserted.Severity)
	assert.Equal(t, "https://target.example.com/login?next=%2Fadmin", inserted.URL)
	assert.Equal(t, "POST", inserted.Method)
	assert.Equal(t, 500, inserted.ResponseStatus)
	assert.NotEmpty(t, inserted.Signature)

	assert.Equal(t, uint64(1), d.FindingsPersisted())
	assert.Equal(t, uint64(1), d.DedupHits())
	store.AssertExpectations(t)
	registry.AssertExpectations(t)
}
