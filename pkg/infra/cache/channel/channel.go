package channel

// Channel is a redis pub/sub channel name.
type Channel string

const (
	// TrafficEventsChannel carries proxied traffic and reload requests
	// from the capture layer into the pipeline.
	TrafficEventsChannel Channel = "sentinel:events:traffic"

	// FindingEventsChannel carries confirmed new findings out to
	// interested consumers.
	FindingEventsChannel Channel = "sentinel:events:findings"

	// TrafficRecordEventsChannel carries persisted audit records out,
	// tagged with their database id.
	TrafficRecordEventsChannel Channel = "sentinel:events:traffic_records"
)
