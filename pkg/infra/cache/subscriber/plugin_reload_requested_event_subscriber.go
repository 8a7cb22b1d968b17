package subscriber

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	infraCache "github.com/sentinelsec/sentinel-core/pkg/infra/cache"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/event"
	"github.com/sentinelsec/sentinel-core/pkg/queue"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

type PluginReloadRequestedEventSubscriber struct {
	logger *logrus.Logger
	tasks  *queue.Queue[types.ScanTask]
}

func NewPluginReloadRequestedEventSubscriber(
	logger *logrus.Logger,
	tasks *queue.Queue[types.ScanTask],
) infraCache.EventSubscriber[event.PluginReloadRequestedEvent] {
	return &PluginReloadRequestedEventSubscriber{
		logger: logger,
		tasks:  tasks,
	}
}

func (s PluginReloadRequestedEventSubscriber) OnEvent(ctx context.Context, evt event.PluginReloadRequestedEvent) error {
	if evt.PluginID == "" {
		s.logger.Warn("dropping plugin reload event without plugin_id")
		return nil
	}

	if err := s.tasks.Push(types.NewReloadPluginTask(evt.PluginID)); err != nil {
		return fmt.Errorf("enqueue reload task: %w", err)
	}
	return nil
}
