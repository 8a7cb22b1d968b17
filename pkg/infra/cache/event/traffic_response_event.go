package event

import "github.com/sentinelsec/sentinel-core/pkg/types"

type TrafficResponseEvent struct {
	types.ResponseContext
}

func (e TrafficResponseEvent) Type() string {
	return TrafficResponseEventType
}
