package cache

import (
	"context"
	"encoding/json"

	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/channel"
	"github.com/sentinelsec/sentinel-core/pkg/infra/cache/event"
)

type redisEventPublisher struct {
	cache Client
}

func NewRedisEventPublisher(cache Client) EventPublisher {
	return &redisEventPublisher{
		cache: cache,
	}
}

func (p *redisEventPublisher) Publish(ctx context.Context, ch channel.Channel, ev event.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	envelope := RedisMessage{
		Type:  ev.Type(),
		Event: b,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return p.cache.RedisClient().Publish(ctx, string(ch), data).Err()
}
