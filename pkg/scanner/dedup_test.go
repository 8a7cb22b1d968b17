package scanner_test

import (
	"context"
	"testing"
	"time"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	findingmocks "github.com/sentinelsec/sentinel-core/pkg/domain/finding/mocks"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/channel"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/event"
	cachemocks "github.com/sentinelsec/sentinel-core/pkg/infra/cache/mocks"
	telemetrymocks "github.com/sentinelsec/sentinel-core/pkg/infra/telemetry/mocks"
	"github.com/sentinelsec/sentinel-core/pkg/queue"
	"github.com/sentinelsec/sentinel-core/pkg/scanner"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

func scanFinding() *types.Finding {
	return &types.Finding{
		PluginID:   "sqli-detector",
		VulnType:   "sqli",
		Title:      "SQL error disclosure",
		Evidence:   "ORA-01756",
		Location:   "https://target.example.com/login",
		Severity:   types.SeverityHigh,
		Confidence: types.ConfidenceHigh,
		Timestamp:  baseTime,
	}
}

func newFindingQueue() *queue.Queue[*types.Finding] {
	return queue.New[*types.Finding](16, queue.Block)
}

func runDedupToCompletion(t *testing.T, d *scanner.Deduplicator, q *queue.Queue[*types.Finding]) {
	t.Helper()
	q.Close()
	require.NoError(t, d.Run(context.Background()))
}

func TestSignature_DependsOnIdentityFieldsOnly(t *testing.T) {
	a := scanFinding()

	b := scanFinding()
	b.Title = "different title"
	b.Severity = types.SeverityInfo
	b.Timestamp = baseTime.Add(time.Hour)

	c := scanFinding()
	c.Evidence = "ORA-00933"

	assert.Equal(t, scanner.Signature(a), scanner.Signature(b))
	assert.NotEqual(t, scanner.Signature(a), scanner.Signature(c))
	assert.Len(t, scanner.Signature(a), 64)
}

func TestDeduplicator_PersistsNewFindingOnce(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	q := newFindingQueue()
	sig := scanner.Signature(scanFinding())

	repo := new(findingmocks.Repository)
	repo.On("SignatureExists", mock.Anything, sig).Return(false, nil).Once()
	repo.On("Insert", mock.Anything, mock.AnythingOfType("*finding.Finding")).Return(nil).Once()
	repo.On("IncrementHitCount", mock.Anything, sig).Return(nil).Twice()

	var published event.FindingCreatedEvent
	publisher := new(cachemocks.EventPublisher)
	publisher.On("Publish", mock.Anything, channel.FindingEventsChannel, mock.AnythingOfType("event.FindingCreatedEvent")).
		Run(func(args mock.Arguments) {
			published = args.Get(2).(event.FindingCreatedEvent)
		}).Return(nil).Once()

	d := scanner.NewDeduplicator(q, repo, logger).WithPublisher(publisher)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(scanFinding()))
	}
	runDedupToCompletion(t, d, q)

	assert.Equal(t, uint64(1), d.FindingsPersisted())
	assert.Equal(t, uint64(2), d.DedupHits())
	assert.Equal(t, 1, d.KnownSignatures())
	assert.Equal(t, sig, published.Finding.Signature)
	assert.Equal(t, "sqli", published.Finding.VulnType)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestDeduplicator_WarmStartFromStore(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	q := newFindingQueue()
	sig := scanner.Signature(scanFinding())

	repo := new(findingmocks.Repository)
	repo.On("SignatureExists", mock.Anything, sig).Return(true, nil).Once()
	repo.On("IncrementHitCount", mock.Anything, sig).Return(nil).Twice()

	d := scanner.NewDeduplicator(q, repo, logger)
	require.NoError(t, q.Push(scanFinding()))
	require.NoError(t, q.Push(scanFinding()))
	runDedupToCompletion(t, d, q)

	// The second sighting is resolved from memory, not the store.
	repo.AssertNumberOfCalls(t, "SignatureExists", 1)
	repo.AssertNotCalled(t, "Insert")
	assert.Equal(t, uint64(0), d.FindingsPersisted())
	assert.Equal(t, uint64(2), d.DedupHits())
	repo.AssertExpectations(t)
}

func TestDeduplicator_InsertRaceCountsAsHit(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	q := newFindingQueue()
	sig := scanner.Signature(scanFinding())

	repo := new(findingmocks.Repository)
	repo.On("SignatureExists", mock.Anything, sig).Return(false, nil).Once()
	repo.On("Insert", mock.Anything, mock.Anything).Return(domain.ErrDuplicateSignature).Once()
	repo.On("IncrementHitCount", mock.Anything, sig).Return(nil).Twice()

	publisher := new(cachemocks.EventPublisher)

	d := scanner.NewDeduplicator(q, repo, logger).WithPublisher(publisher)
	require.NoError(t, q.Push(scanFinding()))
	require.NoError(t, q.Push(scanFinding()))
	runDedupToCompletion(t, d, q)

	publisher.AssertNotCalled(t, "Publish")
	assert.Equal(t, uint64(0), d.FindingsPersisted())
	assert.Equal(t, uint64(2), d.DedupHits())
	assert.Equal(t, 1, d.KnownSignatures())
	repo.AssertExpectations(t)
}

func TestDeduplicator_StoreErrorDoesNotStopLoop(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	q := newFindingQueue()
	sig := scanner.Signature(scanFinding())

	repo := new(findingmocks.Repository)
	repo.On("SignatureExists", mock.Anything, sig).Return(false, assert.AnError).Once()
	repo.On("SignatureExists", mock.Anything, sig).Return(false, nil).Once()
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()

	d := scanner.NewDeduplicator(q, repo, logger)
	require.NoError(t, q.Push(scanFinding()))
	require.NoError(t, q.Push(scanFinding()))
	runDedupToCompletion(t, d, q)

	assert.Equal(t, uint64(1), d.FindingsPersisted())
	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Failed to check finding signature" {
			warned = true
		}
	}
	assert.True(t, warned)
	repo.AssertExpectations(t)
}

func TestDeduplicator_PublishAndExportFailuresAreWarnings(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	q := newFindingQueue()
	sig := scanner.Signature(scanFinding())

	repo := new(findingmocks.Repository)
	repo.On("SignatureExists", mock.Anything, sig).Return(false, nil).Once()
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()

	publisher := new(cachemocks.EventPublisher)
	publisher.On("Publish", mock.Anything, channel.FindingEventsChannel, mock.Anything).Return(assert.AnError).Once()

	exporter := new(telemetrymocks.Exporter)
	exporter.On("Name").Return("kafka").Maybe()
	exporter.On("Export", mock.Anything, mock.AnythingOfType("*finding.Finding")).Return(assert.AnError).Once()

	d := scanner.NewDeduplicator(q, repo, logger).WithPublisher(publisher).WithExporter(exporter)
	require.NoError(t, q.Push(scanFinding()))
	runDedupToCompletion(t, d, q)

	assert.Equal(t, uint64(1), d.FindingsPersisted())
	messages := make(map[string]bool)
	for _, entry := range hook.AllEntries() {
		messages[entry.Message] = true
	}
	assert.True(t, messages["Failed to publish finding event"])
	assert.True(t, messages["Failed to export finding"])
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
	exporter.AssertExpectations(t)
}

func TestDeduplicator_Run_ReturnsOnContextCancel(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	q := newFindingQueue()

	d := scanner.NewDeduplicator(q, new(findingmocks.Repository), logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
}
