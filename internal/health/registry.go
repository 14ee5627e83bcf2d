package health

import (
	"sort"
	"sync"
	"time"

	aierrors "aictl/internal/errors"
)

// State represents the health status of a backing service.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded" // circuit half-open or high error rate
	StateDown     State = "down"     // circuit open
)

// LatencyStats holds percentile and average latency measurements.
type LatencyStats struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	Avg time.Duration `json:"avg"`
}

// ServiceHealth is a point-in-time snapshot of a service's health.
type ServiceHealth struct {
	Service      string       `json:"service"`
	Endpoint     string       `json:"endpoint"`
	State        State        `json:"state"`
	LastError    string       `json:"last_error,omitempty"`
	FailureCount int          `json:"failure_count"`
	LastChecked  time.Time    `json:"last_checked"`
	Latency      LatencyStats `json:"latency"`
}

const (
	latencyWindowSize   = 100
	errorRateWindowSize = 100
	errorRateHealthy    = 0.05 // < 5%
	errorRateDegraded   = 0.20 // 5-20%
)

type serviceEntry struct {
	service  string
	endpoint string
	breaker  *aierrors.CircuitBreaker

	// Latency ring buffer (last latencyWindowSize measurements).
	latencies [latencyWindowSize]time.Duration
	latCount  int
	latIdx    int

	// Error rate tracking (rolling window of success/failure outcomes).
	outcomes     [errorRateWindowSize]bool // true = error
	outcomeCount int
	outcomeIdx   int

	lastError    string
	failureCount int
}

// Registry tracks per-service health via circuit breakers and latency/error metrics.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*serviceEntry
}

// NewRegistry creates a new Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*serviceEntry),
	}
}

// Register registers a circuit breaker for the given service.
// If breaker is nil the entry is still created and health will be derived from error rate.
func (r *Registry) Register(service, endpoint string, breaker *aierrors.CircuitBreaker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[service]; ok {
		e.breaker = breaker
		e.endpoint = endpoint
		return
	}
	r.entries[service] = &serviceEntry{
		service:  service,
		endpoint: endpoint,
		breaker:  breaker,
	}
}

// RecordLatency records a successful call latency for the given service.
func (r *Registry) RecordLatency(service string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.getOrCreate(service)
	e.latencies[e.latIdx] = d
	e.latIdx = (e.latIdx + 1) % latencyWindowSize
	if e.latCount < latencyWindowSize {
		e.latCount++
	}

	e.outcomes[e.outcomeIdx] = false
	e.outcomeIdx = (e.outcomeIdx + 1) % errorRateWindowSize
	if e.outcomeCount < errorRateWindowSize {
		e.outcomeCount++
	}
}

// RecordError records a failed call for the given service.
func (r *Registry) RecordError(service string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.getOrCreate(service)
	e.failureCount++
	if err != nil {
		e.lastError = err.Error()
	}

	e.outcomes[e.outcomeIdx] = true
	e.outcomeIdx = (e.outcomeIdx + 1) % errorRateWindowSize
	if e.outcomeCount < errorRateWindowSize {
		e.outcomeCount++
	}
}

// Get returns a health snapshot for the given service.
func (r *Registry) Get(service string) ServiceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[service]
	if !ok {
		return ServiceHealth{
			Service:     service,
			State:       StateHealthy,
			LastChecked: time.Now(),
		}
	}
	return r.buildHealth(e)
}

// All returns health snapshots for all registered services, sorted by name.
func (r *Registry) All() []ServiceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ServiceHealth, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, r.buildHealth(e))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Service < result[j].Service
	})
	return result
}

// buildHealth constructs a ServiceHealth from an entry. Caller must hold at least RLock.
func (r *Registry) buildHealth(e *serviceEntry) ServiceHealth {
	return ServiceHealth{
		Service:      e.service,
		Endpoint:     e.endpoint,
		State:        r.deriveState(e),
		LastError:    e.lastError,
		FailureCount: e.failureCount,
		LastChecked:  time.Now(),
		Latency:      r.computeLatency(e),
	}
}

// deriveState determines the State from circuit breaker state or error rate.
func (r *Registry) deriveState(e *serviceEntry) State {
	if e.breaker != nil {
		switch e.breaker.State() {
		case aierrors.StateClosed:
			return StateHealthy
		case aierrors.StateHalfOpen:
			return StateDegraded
		case aierrors.StateOpen:
			return StateDown
		}
	}

	// Fallback: derive from error rate in the rolling window.
	if e.outcomeCount == 0 {
		return StateHealthy
	}
	errors := 0
	for i := 0; i < e.outcomeCount; i++ {
		if e.outcomes[i] {
			errors++
		}
	}
	rate := float64(errors) / float64(e.outcomeCount)
	switch {
	case rate > errorRateDegraded:
		return StateDown
	case rate >= errorRateHealthy:
		return StateDegraded
	default:
		return StateHealthy
	}
}

// computeLatency calculates P50, P95, and Avg from the latency ring buffer.
func (r *Registry) computeLatency(e *serviceEntry) LatencyStats {
	if e.latCount == 0 {
		return LatencyStats{}
	}

	buf := make([]time.Duration, e.latCount)
	copy(buf, e.latencies[:e.latCount])
	sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })

	var sum time.Duration
	for _, d := range buf {
		sum += d
	}

	return LatencyStats{
		P50: percentile(buf, 0.50),
		P95: percentile(buf, 0.95),
		Avg: sum / time.Duration(len(buf)),
	}
}

// percentile returns the value at the given percentile (0-1) from a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// getOrCreate returns the entry for the service, creating it if necessary. Caller must hold Lock.
func (r *Registry) getOrCreate(service string) *serviceEntry {
	if e, ok := r.entries[service]; ok {
		return e
	}
	e := &serviceEntry{service: service}
	r.entries[service] = e
	return e
}
