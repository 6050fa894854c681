package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/billtrack/bff/internal/config"
)

func testBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
	}
}

func TestBreaker_opensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v before threshold, want closed", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %v after threshold, want open", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Allow error = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_successResetsFailureRun(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != BreakerClosed {
		t.Errorf("state = %v, want closed; the run was interrupted", cb.State())
	}
}

func TestBreaker_halfOpenClosesAfterProbeSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow after timeout: %v", err)
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %v after one probe, want half-open", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Errorf("state = %v after two probes, want closed", cb.State())
	}
}

func TestBreaker_halfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow after timeout: %v", err)
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Errorf("state = %v after probe failure, want open", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Allow error = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_errorRateTripsWithEnoughSamples(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitBreakerConfig{
		FailureThreshold:   100, // rate path should trip first
		SuccessThreshold:   2,
		Timeout:            30 * time.Second,
		ErrorRateThreshold: 0.5,
		ErrorRateWindow:    time.Minute,
	})

	// Nine calls at 55% failure stay below the sample minimum.
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	for i := 0; i < 4; i++ {
		cb.RecordSuccess()
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v with too few samples, want closed", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Errorf("state = %v at 60%% over 10 samples, want open", cb.State())
	}
}

func TestBreaker_errorRateDisabledWithoutThreshold(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitBreakerConfig{
		FailureThreshold: 100,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	})

	for i := 0; i < 50; i++ {
		cb.RecordFailure()
		cb.RecordSuccess()
	}
	if cb.State() != BreakerClosed {
		t.Errorf("state = %v, want closed; no rate threshold configured", cb.State())
	}
}

func TestBreaker_notifiesOnStateChange(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	var seen []BreakerState
	cb.OnStateChange(func(s BreakerState) {
		seen = append(seen, s)
	})

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow after timeout: %v", err)
	}
	cb.RecordSuccess()
	cb.RecordSuccess()

	want := []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestBreaker_statePublishedThroughClientRecorder(t *testing.T) {
	cfg := testBackendConfig("http://unreachable.invalid")
	cfg.CircuitBreaker.FailureThreshold = 1
	c := NewClient(cfg)

	var published []float64
	c.SetMetrics(stateRecorder{states: &published})

	c.Breaker().RecordFailure()
	if len(published) != 1 || published[0] != float64(BreakerOpen) {
		t.Errorf("published = %v, want [%v]", published, float64(BreakerOpen))
	}
}

type stateRecorder struct {
	states *[]float64
}

func (r stateRecorder) RecordBackendRequest(method, resource string, status int, d time.Duration) {
}
func (r stateRecorder) RecordBackendRetry() {}
func (r stateRecorder) SetBackendCircuitBreakerState(v float64) {
	*r.states = append(*r.states, v)
}
