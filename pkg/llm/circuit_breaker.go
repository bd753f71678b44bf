package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive transient failures before the circuit trips.
	Threshold int
	// ResetAfter is how long the circuit stays open before one probe request is let through.
	ResetAfter time.Duration
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker trips open after consecutive backend failures so concurrent
// invocations fail fast instead of each waiting out a dead backend's timeout.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a request may proceed. An open circuit moves to
// half-open once ResetAfter has elapsed and admits a single probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("circuit breaker open after %d consecutive failures", cb.consecutiveFails)
	default:
		return fmt.Errorf("circuit breaker half-open: probe request in flight")
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// guardedCompleter routes calls through a CircuitBreaker. Only transient
// failures count against the circuit; a terminal rejection proves the
// backend is up.
type guardedCompleter struct {
	next    Completer
	breaker *CircuitBreaker
}

// WithCircuitBreaker wraps next so that an open circuit fails immediately
// with BackendUnavailable.
func WithCircuitBreaker(next Completer, breaker *CircuitBreaker) Completer {
	return &guardedCompleter{next: next, breaker: breaker}
}

func (g *guardedCompleter) Model() string {
	return g.next.Model()
}

func (g *guardedCompleter) Complete(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error) {
	if err := g.breaker.Allow(); err != nil {
		return "", apperrors.BackendUnavailable("completion backend unavailable", err)
	}

	out, err := g.next.Complete(ctx, systemPrompt, messages, temperature)
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case apperrors.IsRetryable(err):
		g.breaker.RecordFailure()
	default:
		g.breaker.RecordSuccess()
	}
	return out, err
}
