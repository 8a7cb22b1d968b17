package plugin

import (
	"context"
)

//go:generate mockery --name=Repository --dir=. --output=./mocks --filename=plugin_repository_mock.go --case=underscore --with-expecter

type Repository interface {
	// GetByID returns the stored code and metadata for one plugin,
	// including its enabled flag and category, or a not-found error.
	GetByID(ctx context.Context, id string) (*Plugin, error)

	// ListEnabled returns every enabled plugin in the given main category.
	ListEnabled(ctx context.Context, mainCategory string) ([]*Plugin, error)
}
