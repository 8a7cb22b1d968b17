package finding

import (
	"context"
)

//go:generate mockery --name=Repository --dir=. --output=./mocks --filename=finding_repository_mock.go --case=underscore --with-expecter

type Repository interface {
	SignatureExists(ctx context.Context, signature string) (bool, error)
	Insert(ctx context.Context, finding *Finding) error
	IncrementHitCount(ctx context.Context, signature string) error
}
