// Package circuitbreaker implements the Circuit Breaker pattern.
// It protects the engine from cascading failures when the identity
// platform or the notification webhook become slow or unavailable.
// No external dependencies - uses only standard library.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed is the normal state, requests flow through.
	StateClosed State = iota
	// StateOpen blocks requests until the open timeout elapses.
	StateOpen
	// StateHalfOpen lets a few probe requests through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is spent.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds breaker tuning. Zero values fall back to the defaults
// noted per field.
type Config struct {
	// Name identifies the breaker in logs and state-change callbacks.
	Name string

	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default 5.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count in half-open
	// that closes it again. Default 2.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before probing.
	// Default 30s.
	OpenTimeout time.Duration

	// MaxHalfOpenRequests caps concurrent probes. Default 1.
	MaxHalfOpenRequests int

	// OnStateChange is invoked on every transition.
	OnStateChange func(name string, from, to State)
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.MaxHalfOpenRequests <= 0 {
		c.MaxHalfOpenRequests = 1
	}
	return c
}

// Counts accumulates request outcomes since the last Reset.
type Counts struct {
	Requests             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker tracks failures and short-circuits calls to a
// struggling dependency. Every non-nil error from the wrapped call
// counts as a failure.
type CircuitBreaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	counts      Counts
	openedAt    time.Time
	probeBudget int
}

// New creates a breaker from cfg, filling in defaults.
func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), state: StateClosed}
}

// Execute runs fn if the circuit allows it and records the outcome.
// When blocked it returns ErrCircuitOpen or ErrTooManyRequests without
// calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probeBudget = 1
		return nil
	case StateHalfOpen:
		if cb.probeBudget >= cb.cfg.MaxHalfOpenRequests {
			return ErrTooManyRequests
		}
		cb.probeBudget++
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++
	if err != nil {
		cb.counts.TotalFailures++
		cb.counts.ConsecutiveFailures++
		cb.counts.ConsecutiveSuccesses = 0
		cb.openedAt = time.Now()

		switch cb.state {
		case StateClosed:
			if cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold {
				cb.transition(StateOpen)
			}
		case StateHalfOpen:
			// A failed probe reopens immediately.
			cb.transition(StateOpen)
		}
		return
	}

	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0
	if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.cfg.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	cb.probeBudget = 0

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a snapshot of the accumulated counts.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the circuit and clears all counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.counts = Counts{}
	cb.probeBudget = 0
}
