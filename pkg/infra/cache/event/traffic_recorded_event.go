package event

import "github.com/sentinelsec/sentinel-core/pkg/domain/traffic"

// TrafficRecordedEvent republishes a persisted audit record with its
// database id attached.
type TrafficRecordedEvent struct {
	traffic.Record
}

func (e TrafficRecordedEvent) Type() string {
	return TrafficRecordedEventType
}
