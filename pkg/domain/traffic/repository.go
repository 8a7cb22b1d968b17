package traffic

import (
	"context"
)

//go:generate mockery --name=Repository --dir=. --output=./mocks --filename=traffic_repository_mock.go --case=underscore --with-expecter

type Repository interface {
	InsertRecord(ctx context.Context, record *Record) error
}
