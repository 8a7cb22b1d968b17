package httpx

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreaker guards a repeatedly failing operation, such as database
// writes from the scan pipeline, so a dead backend fails fast instead of
// stalling every task.
type CircuitBreaker interface {
	Execute(fn func() error) error
	State() string
}

type circuitBreakerWrapper struct {
	breaker *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(name string, timeout time.Duration, maxFailures uint32) CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	return &circuitBreakerWrapper{
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *circuitBreakerWrapper) Execute(fn func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		err := fn()
		if err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", g.breaker.Name(), err)
	}
	return nil
}

// State reports the current breaker state ("closed", "half-open" or "open")
// for stats snapshots.
func (g *circuitBreakerWrapper) State() string {
	return g.breaker.State().String()
}
