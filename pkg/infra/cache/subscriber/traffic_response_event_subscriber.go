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

type TrafficResponseEventSubscriber struct {
	logger *logrus.Logger
	tasks  *queue.Queue[types.ScanTask]
}

func NewTrafficResponseEventSubscriber(
	logger *logrus.Logger,
	tasks *queue.Queue[types.ScanTask],
) infraCache.EventSubscriber[event.TrafficResponseEvent] {
	return &TrafficResponseEventSubscriber{
		logger: logger,
		tasks:  tasks,
	}
}

func (s TrafficResponseEventSubscriber) OnEvent(ctx context.Context, evt event.TrafficResponseEvent) error {
	if evt.RequestID == "" {
		s.logger.Warn("dropping traffic response event without request_id")
		return nil
	}

	resp := evt.ResponseContext
	if err := s.tasks.Push(types.NewResponseTask(&resp)); err != nil {
		return fmt.Errorf("enqueue response task: %w", err)
	}
	return nil
}
