package event

import "reflect"

type Event interface {
	Type() string
}

var (
	TrafficRequestEventType        = "TrafficRequestEvent"
	TrafficResponseEventType       = "TrafficResponseEvent"
	PluginReloadRequestedEventType = "PluginReloadRequestedEvent"
	FindingCreatedEventType        = "FindingCreatedEvent"
	TrafficRecordedEventType       = "TrafficRecordedEvent"
)

var Registry = map[string]reflect.Type{
	TrafficRequestEventType:        reflect.TypeOf(TrafficRequestEvent{}),
	TrafficResponseEventType:       reflect.TypeOf(TrafficResponseEvent{}),
	PluginReloadRequestedEventType: reflect.TypeOf(PluginReloadRequestedEvent{}),
	FindingCreatedEventType:        reflect.TypeOf(FindingCreatedEvent{}),
	TrafficRecordedEventType:       reflect.TypeOf(TrafficRecordedEvent{}),
}
