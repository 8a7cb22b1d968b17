package telemetry

import (
	"context"

	"github.com/sentinelsec/sentinel-core/pkg/domain/finding"
)

//go:generate mockery --name=Exporter --dir=. --output=./mocks --filename=exporter_mock.go --case=underscore --with-expecter

// Exporter ships confirmed findings to an external telemetry sink. Export is
// called once per genuinely-new finding, after its record has been persisted;
// duplicates never reach the exporter.
type Exporter interface {
	Name() string
	Export(ctx context.Context, entity *finding.Finding) error
	Close()
}
