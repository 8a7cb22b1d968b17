package event

import "github.com/sentinelsec/sentinel-core/pkg/domain/finding"

// FindingCreatedEvent is published once per unique signature, after the
// first durable insert. Repeat sightings only bump hit counts and are
// never republished.
type FindingCreatedEvent struct {
	finding.Finding
}

func (e FindingCreatedEvent) Type() string {
	return FindingCreatedEventType
}
