package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/billtrack/bff/internal/config"
)

// ErrBreakerOpen is returned by Allow while the billing backend circuit is
// open. The client maps it to a backend-unavailable envelope so list views
// can show it as their inline error string.
var ErrBreakerOpen = errors.New("gateway: billing backend circuit open")

// BreakerState is the state of the billing backend circuit.
type BreakerState int

const (
	// BreakerClosed passes requests through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests until the open timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets probe requests through to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards the single billing backend connection. It opens on
// a run of consecutive failures or, when configured, on the failure rate
// inside a tumbling window; after the open timeout it half-opens and a
// short run of successful probes closes it again. Safe for concurrent use.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration

	mu             sync.Mutex
	state          BreakerState
	consecFailures int
	probeSuccesses int
	openedAt       time.Time
	window         errorWindow
	onChange       func(BreakerState)
}

// NewCircuitBreaker builds a breaker from the backend circuit breaker
// config, applying the same defaults config.Defaults carries.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.Timeout,
		window: errorWindow{
			threshold: cfg.ErrorRateThreshold,
			span:      cfg.ErrorRateWindow,
			start:     time.Now(),
		},
	}
}

// OnStateChange registers a hook fired on every state transition, with the
// new state. Used to publish the breaker-state gauge. The hook runs under
// the breaker lock and must not call back into the breaker.
func (cb *CircuitBreaker) OnStateChange(fn func(BreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// Allow reports whether a request may proceed. While open it returns
// ErrBreakerOpen until the open timeout elapses, at which point the breaker
// half-opens and the request goes through as a probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if time.Since(cb.openedAt) <= cb.openTimeout {
			return ErrBreakerOpen
		}
		cb.transition(BreakerHalfOpen)
	}
	return nil
}

// RecordSuccess notes a successful backend call. Enough successes in
// half-open close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.consecFailures = 0
		cb.window.observe(false)
	case BreakerHalfOpen:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.successThreshold {
			cb.transition(BreakerClosed)
		}
	}
}

// RecordFailure notes a failed backend call. A run of failures or an
// excessive windowed failure rate opens the circuit; any failure during a
// half-open probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.consecFailures++
		cb.window.observe(true)
		if cb.consecFailures >= cb.failureThreshold || cb.window.exceeded() {
			cb.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		cb.transition(BreakerOpen)
	}
}

// State returns the current state, promoting open to half-open once the
// open timeout has elapsed so readiness reflects that probes are allowed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && time.Since(cb.openedAt) > cb.openTimeout {
		cb.transition(BreakerHalfOpen)
	}
	return cb.state
}

// transition moves to the given state, resets the counters that belong to
// the old one, and fires the state-change hook. Must be called with the
// lock held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	cb.state = to
	cb.consecFailures = 0
	cb.probeSuccesses = 0
	cb.window.reset()
	if to == BreakerOpen {
		cb.openedAt = time.Now()
	}
	if cb.onChange != nil {
		cb.onChange(to)
	}
}

// minWindowSamples is the minimum number of calls in a window before the
// failure rate is considered meaningful; below it one failure out of one
// call would read as 100%.
const minWindowSamples = 10

// errorWindow tracks the failure rate of backend calls in a tumbling time
// window. A zero threshold or span disables rate-based tripping. All
// methods must be called with the breaker lock held.
type errorWindow struct {
	threshold float64
	span      time.Duration
	start     time.Time
	total     int
	failures  int
}

func (w *errorWindow) enabled() bool {
	return w.threshold > 0 && w.span > 0
}

func (w *errorWindow) observe(failed bool) {
	if !w.enabled() {
		return
	}
	if time.Since(w.start) > w.span {
		w.reset()
	}
	w.total++
	if failed {
		w.failures++
	}
}

func (w *errorWindow) exceeded() bool {
	if !w.enabled() || w.total < minWindowSamples {
		return false
	}
	return float64(w.failures)/float64(w.total) >= w.threshold
}

func (w *errorWindow) reset() {
	w.start = time.Now()
	w.total = 0
	w.failures = 0
}
