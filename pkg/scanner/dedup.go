package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/domain/finding"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/channel"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/event"
	"github.com/sentinelsec/sentinel-core/pkg/infra/prometheus"
	"github.com/sentinelsec/sentinel-core/pkg/infra/telemetry"
	"github.com/sentinelsec/sentinel-core/pkg/queue"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

// Signature derives the content address of a finding. Audit context,
// severity and timestamps deliberately stay out of the hash, so the same
// vulnerability sighted twice maps onto one record.
func Signature(f *types.Finding) string {
	sum := sha256.Sum256([]byte(f.VulnType + f.Location + f.Evidence))
	return hex.EncodeToString(sum[:])
}

// Deduplicator is the single consumer of the finding queue. It collapses
// repeated findings onto one persisted record per signature, bumps hit
// counters for the rest, and republishes only the genuinely new ones.
//
// The in-memory signature set is the availability fallback: repository
// errors are logged and the loop keeps consuming.
type Deduplicator struct {
	logger     *logrus.Logger
	findings   *queue.Queue[*types.Finding]
	repository finding.Repository
	publisher  cache.EventPublisher
	exporters  []telemetry.Exporter

	mu    sync.RWMutex
	known map[string]struct{}

	hits      atomic.Uint64
	persisted atomic.Uint64
}

func NewDeduplicator(
	findings *queue.Queue[*types.Finding],
	repository finding.Repository,
	logger *logrus.Logger,
) *Deduplicator {
	return &Deduplicator{
		logger:     logger,
		findings:   findings,
		repository: repository,
		known:      make(map[string]struct{}),
	}
}

// WithPublisher announces genuinely new findings on the egress channel.
func (d *Deduplicator) WithPublisher(publisher cache.EventPublisher) *Deduplicator {
	d.publisher = publisher
	return d
}

// WithExporter ships genuinely new findings to an external telemetry sink.
// Call it once per configured exporter.
func (d *Deduplicator) WithExporter(exporter telemetry.Exporter) *Deduplicator {
	d.exporters = append(d.exporters, exporter)
	return d
}

// Run consumes findings until the queue closes or the context is canceled.
// Queue close is the clean shutdown path and returns nil.
func (d *Deduplicator) Run(ctx context.Context) error {
	d.logger.Info("Finding deduplicator started")

	for {
		f, err := d.findings.Pop(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrQueueClosed) {
				d.logger.Info("Finding deduplicator stopped, finding queue closed")
				return nil
			}
			return err
		}
		d.process(ctx, f)
	}
}

func (d *Deduplicator) process(ctx context.Context, f *types.Finding) {
	sig := Signature(f)
	log := d.logger.WithFields(logrus.Fields{
		"plugin_id": f.PluginID,
		"signature": sig[:8],
	})

	if d.seen(sig) {
		d.recordHit(ctx, sig, log)
		return
	}

	exists, err := d.repository.SignatureExists(ctx, sig)
	if err != nil {
		log.WithError(err).Warn("Failed to check finding signature")
		return
	}
	if exists {
		// Persisted by an earlier run; warm the memory set from the store.
		d.recordHit(ctx, sig, log)
		d.remember(sig)
		return
	}

	entity := finding.FromScan(f, sig)
	if err := d.repository.Insert(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrDuplicateSignature) {
			// Another pipeline instance won the insert race; count this
			// sighting against its record.
			d.recordHit(ctx, sig, log)
			d.remember(sig)
			return
		}
		log.WithError(err).Warn("Failed to insert finding")
		return
	}

	d.remember(sig)
	d.persisted.Add(1)
	prometheus.FindingsPersistedTotal.Inc()
	log.WithFields(logrus.Fields{
		"title":    f.Title,
		"severity": string(f.Severity),
	}).Info("New finding persisted")

	if d.publisher != nil {
		evt := event.FindingCreatedEvent{Finding: *entity}
		if err := d.publisher.Publish(ctx, channel.FindingEventsChannel, evt); err != nil {
			log.WithError(err).Warn("Failed to publish finding event")
		}
	}
	for _, exporter := range d.exporters {
		if err := exporter.Export(ctx, entity); err != nil {
			log.WithError(err).WithField("exporter", exporter.Name()).Warn("Failed to export finding")
		}
	}
}

func (d *Deduplicator) recordHit(ctx context.Context, sig string, log *logrus.Entry) {
	d.hits.Add(1)
	prometheus.DedupHitsTotal.Inc()
	if err := d.repository.IncrementHitCount(ctx, sig); err != nil {
		log.WithError(err).Warn("Failed to update finding hit count")
	}
}

func (d *Deduplicator) seen(sig string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.known[sig]
	return ok
}

func (d *Deduplicator) remember(sig string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.known[sig] = struct{}{}
}

func (d *Deduplicator) DedupHits() uint64 {
	return d.hits.Load()
}

func (d *Deduplicator) FindingsPersisted() uint64 {
	return d.persisted.Load()
}

func (d *Deduplicator) KnownSignatures() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.known)
}
