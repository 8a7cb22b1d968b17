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

type TrafficRequestEventSubscriber struct {
	logger *logrus.Logger
	tasks  *queue.Queue[types.ScanTask]
}

func NewTrafficRequestEventSubscriber(
	logger *logrus.Logger,
	tasks *queue.Queue[types.ScanTask],
) infraCache.EventSubscriber[event.TrafficRequestEvent] {
	return &TrafficRequestEventSubscriber{
		logger: logger,
		tasks:  tasks,
	}
}

func (s TrafficRequestEventSubscriber) OnEvent(ctx context.Context, evt event.TrafficRequestEvent) error {
	if evt.ID == "" {
		s.logger.Warn("dropping traffic request event without request_id")
		return nil
	}

	req := evt.RequestContext
	if err := s.tasks.Push(types.NewRequestTask(&req)); err != nil {
		return fmt.Errorf("enqueue request task: %w", err)
	}
	return nil
}
