package biz

import (
	"sort"
	"sync"
	"time"

	"OpsPulse/internal/model"
)

// Circuit breaker states.
const (
	BreakerClosed   = "CLOSED"
	BreakerOpen     = "OPEN"
	BreakerHalfOpen = "HALF_OPEN"
)

// CircuitBreaker is a per-service failure-isolation state machine.
//
// CLOSED admits every call. After threshold consecutive failures the breaker
// opens and rejects calls until the cooldown elapses, at which point it moves
// to HALF_OPEN and admits exactly one trial call: the transition and the
// admission happen in the same critical section, so concurrent callers that
// observe the expired cooldown together cannot all be admitted. A successful
// call from any state closes the breaker and resets its counters; a failed
// trial reopens it with a fresh cooldown.
type CircuitBreaker struct {
	mu sync.Mutex

	state        string
	failureCount int
	lastFailure  time.Time
	threshold    int
	cooldown     time.Duration
	// probing is set while the single half-open trial is in flight.
	probing bool

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker with the given consecutive
// failure threshold and open-state cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{
		state:     BreakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed, transitioning OPEN to HALF_OPEN
// once the cooldown has elapsed. When it performs that transition it admits
// only the calling goroutine; everyone else is rejected until the trial call
// reports back via OnSuccess or OnFailure.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.cooldown {
			b.state = BreakerHalfOpen
			b.probing = true
			return true
		}
		return false
	default: // BreakerHalfOpen
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// OnSuccess records a successful call: failure count drops to zero, the
// last-failure timestamp is cleared and the breaker closes.
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.lastFailure = time.Time{}
	b.state = BreakerClosed
	b.probing = false
}

// OnFailure records a failed call. A failed half-open trial reopens the
// breaker immediately; otherwise it opens once the consecutive failure count
// reaches the threshold.
func (b *CircuitBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.now()

	if b.state == BreakerHalfOpen || b.failureCount >= b.threshold {
		b.state = BreakerOpen
	}
	b.probing = false
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a point-in-time copy of the breaker for status reporting.
func (b *CircuitBreaker) Snapshot() model.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := model.BreakerSnapshot{
		State:        b.state,
		FailureCount: b.failureCount,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		snap.LastFailureTime = &t
	}
	return snap
}

// BreakerGroup holds one breaker per registered service. The group is built
// once at startup and passed by handle to the gateway; there is no global
// breaker table.
type BreakerGroup struct {
	breakers map[string]*CircuitBreaker
}

// NewBreakerGroup creates one breaker per descriptor with a shared cooldown.
func NewBreakerGroup(services []*model.ServiceDescriptor, cooldown time.Duration) *BreakerGroup {
	breakers := make(map[string]*CircuitBreaker, len(services))
	for _, svc := range services {
		breakers[svc.Name] = NewCircuitBreaker(svc.BreakerThreshold, cooldown)
	}
	return &BreakerGroup{breakers: breakers}
}

// Get returns the breaker for a service, or nil when the service is unknown.
func (g *BreakerGroup) Get(service string) *CircuitBreaker {
	return g.breakers[service]
}

// Snapshots returns the state of every breaker, ordered by service name.
func (g *BreakerGroup) Snapshots() []model.BreakerSnapshot {
	snaps := make([]model.BreakerSnapshot, 0, len(g.breakers))
	for name, b := range g.breakers {
		snap := b.Snapshot()
		snap.Service = name
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Service < snaps[j].Service })
	return snaps
}
