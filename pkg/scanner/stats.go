package scanner

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sentinelsec/sentinel-core/pkg/infra/prometheus"
	"github.com/sentinelsec/sentinel-core/pkg/plugins"
	"github.com/sentinelsec/sentinel-core/pkg/queue"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

// Stats is a point-in-time snapshot of pipeline health.
type Stats struct {
	TasksProcessed     uint64 `json:"tasks_processed"`
	TasksDropped       uint64 `json:"tasks_dropped"`
	TaskQueueDepth     int    `json:"task_queue_depth"`
	FindingsEmitted    uint64 `json:"findings_emitted"`
	FindingsDropped    uint64 `json:"findings_dropped"`
	FindingQueueDepth  int    `json:"finding_queue_depth"`
	FindingsPersisted  uint64 `json:"findings_persisted"`
	DedupHits          uint64 `json:"dedup_hits"`
	KnownSignatures    int    `json:"known_signatures"`
	CorrelationEntries int    `json:"correlation_entries"`
	PluginsLoaded      int    `json:"plugins_loaded"`
}

// StatsReporter logs a pipeline snapshot on a cron schedule and refreshes
// the gauges that cannot be updated inline, such as queue depths and cache
// sizes.
type StatsReporter struct {
	logger   *logrus.Logger
	pipeline *Pipeline
	dedup    *Deduplicator
	manager  plugins.Manager
	tasks    *queue.Queue[types.ScanTask]
	findings *queue.Queue[*types.Finding]

	cron             *cron.Cron
	lastTaskDrops    uint64
	lastFindingDrops uint64
}

func NewStatsReporter(
	pipeline *Pipeline,
	dedup *Deduplicator,
	manager plugins.Manager,
	tasks *queue.Queue[types.ScanTask],
	findings *queue.Queue[*types.Finding],
	logger *logrus.Logger,
) *StatsReporter {
	return &StatsReporter{
		logger:   logger,
		pipeline: pipeline,
		dedup:    dedup,
		manager:  manager,
		tasks:    tasks,
		findings: findings,
		cron:     cron.New(),
	}
}

// Collect assembles the current snapshot.
func (r *StatsReporter) Collect() Stats {
	return Stats{
		TasksProcessed:     r.pipeline.TasksProcessed(),
		TasksDropped:       r.tasks.Dropped(),
		TaskQueueDepth:     r.tasks.Len(),
		FindingsEmitted:    r.pipeline.FindingsEmitted(),
		FindingsDropped:    r.findings.Dropped(),
		FindingQueueDepth:  r.findings.Len(),
		FindingsPersisted:  r.dedup.FindingsPersisted(),
		DedupHits:          r.dedup.DedupHits(),
		KnownSignatures:    r.dedup.KnownSignatures(),
		CorrelationEntries: r.pipeline.CorrelationEntries(),
		PluginsLoaded:      r.manager.PluginCount(),
	}
}

// Start schedules the periodic report. The schedule accepts cron syntax,
// including descriptors like "@every 1m".
func (r *StatsReporter) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.report); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for an in-flight report to finish.
func (r *StatsReporter) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *StatsReporter) report() {
	stats := r.Collect()
	r.refreshGauges(stats)

	r.logger.WithFields(logrus.Fields{
		"tasks_processed":     stats.TasksProcessed,
		"tasks_dropped":       stats.TasksDropped,
		"task_queue_depth":    stats.TaskQueueDepth,
		"findings_emitted":    stats.FindingsEmitted,
		"finding_queue_depth": stats.FindingQueueDepth,
		"findings_persisted":  stats.FindingsPersisted,
		"dedup_hits":          stats.DedupHits,
		"known_signatures":    stats.KnownSignatures,
		"correlation_entries": stats.CorrelationEntries,
		"plugins_loaded":      stats.PluginsLoaded,
	}).Info("Pipeline stats")
}

func (r *StatsReporter) refreshGauges(stats Stats) {
	prometheus.CorrelationCacheEntries.Set(float64(stats.CorrelationEntries))
	prometheus.DedupCacheEntries.Set(float64(stats.KnownSignatures))
	prometheus.PluginsLoaded.Set(float64(stats.PluginsLoaded))

	if !prometheus.Config.EnableQueueMetrics {
		return
	}
	prometheus.QueueDepth.WithLabelValues("tasks").Set(float64(stats.TaskQueueDepth))
	prometheus.QueueDepth.WithLabelValues("findings").Set(float64(stats.FindingQueueDepth))

	if delta := stats.TasksDropped - r.lastTaskDrops; delta > 0 {
		prometheus.QueueDroppedTotal.WithLabelValues("tasks").Add(float64(delta))
		r.lastTaskDrops = stats.TasksDropped
	}
	if delta := stats.FindingsDropped - r.lastFindingDrops; delta > 0 {
		prometheus.QueueDroppedTotal.WithLabelValues("findings").Add(float64(delta))
		r.lastFindingDrops = stats.FindingsDropped
	}
}
