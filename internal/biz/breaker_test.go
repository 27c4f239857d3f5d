package biz

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"OpsPulse/internal/model"
)

// newTestBreaker returns a breaker with a controllable clock.
func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(threshold, cooldown)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()

	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	b.OnFailure()

	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()

	// The streak was interrupted, so two more failures do not open it.
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.OnFailure()
	assert.False(t, b.Allow())

	*now = now.Add(time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.OnFailure()
	*now = now.Add(time.Minute)

	var admitted int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.OnFailure()
	*now = now.Add(time.Minute)

	assert.True(t, b.Allow())
	b.OnSuccess()

	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestBreaker_TrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.OnFailure()
	*now = now.Add(time.Minute)

	assert.True(t, b.Allow())
	b.OnFailure()

	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	// A fresh cooldown starts from the trial failure.
	*now = now.Add(time.Minute)
	assert.True(t, b.Allow())
}

func TestBreaker_SnapshotReportsState(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	b.OnFailure()

	snap := b.Snapshot()
	assert.Equal(t, BreakerClosed, snap.State)
	assert.Equal(t, 1, snap.FailureCount)
	assert.NotNil(t, snap.LastFailureTime)

	b.OnSuccess()
	snap = b.Snapshot()
	assert.Equal(t, 0, snap.FailureCount)
	assert.Nil(t, snap.LastFailureTime)
}

func TestBreakerGroup_IsolatesServices(t *testing.T) {
	services := []*model.ServiceDescriptor{
		{Name: "file-service", BreakerThreshold: 1},
		{Name: "analytics-service", BreakerThreshold: 1},
	}
	g := NewBreakerGroup(services, time.Minute)

	g.Get("file-service").OnFailure()

	assert.Equal(t, BreakerOpen, g.Get("file-service").State())
	assert.Equal(t, BreakerClosed, g.Get("analytics-service").State())
	assert.Nil(t, g.Get("unknown-service"))
}

func TestBreakerGroup_SnapshotsSortedByService(t *testing.T) {
	services := []*model.ServiceDescriptor{
		{Name: "utility-service", BreakerThreshold: 5},
		{Name: "analytics-service", BreakerThreshold: 5},
	}
	g := NewBreakerGroup(services, time.Minute)

	snaps := g.Snapshots()
	assert.Len(t, snaps, 2)
	assert.Equal(t, "analytics-service", snaps[0].Service)
	assert.Equal(t, "utility-service", snaps[1].Service)
}
