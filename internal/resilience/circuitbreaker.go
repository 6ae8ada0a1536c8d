// Package resilience keeps speech recognition available when a provider
// misbehaves.
//
// [CircuitBreaker] is a closed/open/half-open breaker around one provider.
// [FallbackGroup] orders several providers of one type, each behind its own
// breaker, and [STTFallback] applies that to [stt.Provider] so a listening
// session opens on the first healthy engine.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values select the
// defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes that closes a half-open
	// breaker. Default: 3.
	HalfOpenMax int

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Now replaces the wall clock in tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probes      int
	probeSuccess int
}

// NewCircuitBreaker returns a closed [CircuitBreaker].
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = 3
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err == nil)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var changed func()
	defer func() {
		cb.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		changed = cb.transition(StateHalfOpen)
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}
	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe, ok bool) {
	cb.mu.Lock()
	var changed func()
	switch {
	case probe && !ok:
		cb.openedAt = cb.now()
		changed = cb.transition(StateOpen)
	case probe && ok:
		cb.probeSuccess++
		if cb.probeSuccess >= cb.halfOpenMax {
			changed = cb.transition(StateClosed)
		}
	case !ok:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			changed = cb.transition(StateOpen)
		}
	default:
		cb.failures = 0
	}
	cb.mu.Unlock()
	if changed != nil {
		changed()
	}
}

// transition switches state and resets the counters of the new state. It
// returns the notification to run once the lock is released. Must be called
// with cb.mu held.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	cb.failures = 0
	cb.probes = 0
	cb.probeSuccess = 0
	if from == to {
		return nil
	}
	cb.state = to

	log := slog.With("breaker", cb.name, "from", from.String(), "to", to.String())
	if to == StateOpen {
		log.Warn("resilience: circuit opened")
	} else {
		log.Info("resilience: circuit state changed")
	}
	if cb.onStateChange == nil {
		return nil
	}
	return func() { cb.onStateChange(cb.name, from, to) }
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.transition(StateClosed)
	cb.mu.Unlock()
	if changed != nil {
		changed()
	}
}
