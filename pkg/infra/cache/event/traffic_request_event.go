package event

import "github.com/sentinelsec/sentinel-core/pkg/types"

// TrafficRequestEvent wraps one intercepted request published by the
// capture layer; the payload keeps the proxy wire shape.
type TrafficRequestEvent struct {
	types.RequestContext
}

func (e TrafficRequestEvent) Type() string {
	return TrafficRequestEventType
}
