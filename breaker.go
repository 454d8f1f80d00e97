package goodwe

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
)

// CircuitBreakerSession decorates a Session with a circuit breaker so
// that a device that stopped answering does not absorb the full
// timeout×(retries+1) budget on every call.
type CircuitBreakerSession struct {
	breaker *gobreaker.CircuitBreaker
	Session
}

// NewCircuitBreakerSession wraps session with the given breaker.
func NewCircuitBreakerSession(session Session, breaker *gobreaker.CircuitBreaker) *CircuitBreakerSession {
	return &CircuitBreakerSession{
		Session: session,
		breaker: breaker,
	}
}

func (s *CircuitBreakerSession) SendRequest(ctx context.Context, cmd Command) ([]byte, error) {
	reply, err := s.breaker.Execute(func() (interface{}, error) { return s.Session.SendRequest(ctx, cmd) })
	if err != nil {
		return nil, err
	}
	return reply.([]byte), nil
}

// NewDeviceBreaker returns a circuit breaker tuned for a single device
// endpoint. A protocol rejection counts as a successful exchange: the
// device answered, so it must not trip the breaker.
func NewDeviceBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		IsSuccessful: func(err error) bool {
			var rejected *RequestRejectedError
			return err == nil || errors.As(err, &rejected)
		},
	})
}
