package errors

import (
	"fmt"
	"sync"
	"time"

	"aictl/internal/logging"
)

// CircuitState is the position of a circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // requests flow normally
	StateOpen                         // service considered down, requests rejected
	StateHalfOpen                     // probing whether the service recovered
)

func (s CircuitState) String() string {
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

// CircuitBreakerConfig tunes when a breaker trips and when it recovers.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the circuit
	SuccessThreshold int           // consecutive half-open successes that close it
	Timeout          time.Duration // open duration before the next probe
	OnStateChange    func(from, to CircuitState, name string)
}

// DefaultCircuitBreakerConfig fits services on localhost: a run of straight
// failures usually means the server process is gone, and half a minute covers
// a restart.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker tracks consecutive failures against one backing service and
// short-circuits calls while that service is considered down.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger

	mu          sync.RWMutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	lastChange  time.Time
}

// NewCircuitBreaker creates a closed breaker for the named service.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:       name,
		config:     config,
		logger:     logging.NewComponentLogger("circuit-breaker"),
		state:      StateClosed,
		lastChange: time.Now(),
	}
}

// Allow reports whether a request may proceed. While the circuit is open it
// returns a degraded error carrying the remaining cooldown, except that the
// first request after the cooldown is let through as a recovery probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	if time.Since(cb.lastFailure) >= cb.config.Timeout {
		cb.transition(StateHalfOpen)
		cb.successes = 0
		cb.logger.Info("[%s] Trying the service again after cooldown", cb.name)
		return nil
	}

	remaining := cb.config.Timeout - time.Since(cb.lastFailure)
	return NewDegradedError(
		fmt.Errorf("circuit breaker open for %s", cb.name),
		fmt.Sprintf("Service '%s' is temporarily unavailable due to repeated failures. Circuit breaker will retry in %v.",
			cb.name, remaining),
		"",
	)
}

// Mark records a request outcome: nil for success, non-nil for failure.
func (cb *CircuitBreaker) Mark(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.markFailure()
		return
	}
	cb.markSuccess()
}

func (cb *CircuitBreaker) markSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0

	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
			cb.failures = 0
			cb.successes = 0
			cb.logger.Info("[%s] Service recovered, circuit closed", cb.name)
		}

	case StateOpen:
		// A late success from a request that was in flight when the
		// circuit opened. The next Allow decides whether to probe.
		cb.logger.Debug("[%s] Success while circuit open", cb.name)
	}
}

func (cb *CircuitBreaker) markFailure() {
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
			cb.logger.Warn("[%s] %d consecutive failures, circuit opened", cb.name, cb.failures)
		}

	case StateHalfOpen:
		cb.transition(StateOpen)
		cb.successes = 0
		cb.logger.Warn("[%s] Recovery probe failed, circuit reopened", cb.name)

	case StateOpen:
		cb.logger.Debug("[%s] Failure while circuit open", cb.name)
	}
}

// transition moves to a new state. Caller must hold the lock.
func (cb *CircuitBreaker) transition(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.lastChange = time.Now()

	if cb.config.OnStateChange != nil {
		// Run the callback outside the lock.
		go cb.config.OnStateChange(prev, next, cb.name)
	}
}

// State returns the current breaker position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Metrics returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerMetrics{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    cb.failures,
		SuccessCount:    cb.successes,
		LastFailureTime: cb.lastFailure,
		LastStateChange: cb.lastChange,
	}
}

// Reset forces the breaker back to closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	prev := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.lastChange = time.Now()

	cb.logger.Info("[%s] Circuit breaker reset from %s to closed", cb.name, prev)
}

// CircuitBreakerMetrics is a point-in-time view of a breaker's counters.
type CircuitBreakerMetrics struct {
	Name            string
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
}
