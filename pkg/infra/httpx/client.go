package httpx

import "net/http"

//go:generate mockery --name=Client --dir=. --output=./mocks --filename=http_client_mock.go --case=underscore --with-expecter

// Client abstracts the HTTP transport used by plugin fetch calls so tests
// can substitute a mock and the engine stays independent of the underlying
// implementation.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}
