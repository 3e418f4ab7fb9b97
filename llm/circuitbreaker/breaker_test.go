package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSet(t *testing.T) (*Set, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s := NewSet(DefaultConfig(), zap.NewNop())
	s.SetClock(clock.Now)
	return s, clock
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.Cooldown)
	assert.Nil(t, cfg.OnStateChange)
}

func TestConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantThresh   int
		wantCooldown time.Duration
	}{
		{"zero values corrected", Config{}, 3, 5 * time.Minute},
		{"negative values corrected", Config{Threshold: -1, Cooldown: -time.Second}, 3, 5 * time.Minute},
		{"custom values preserved", Config{Threshold: 5, Cooldown: time.Minute}, 5, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.withDefaults()
			assert.Equal(t, tt.wantThresh, got.Threshold)
			assert.Equal(t, tt.wantCooldown, got.Cooldown)
		})
	}
}

// ---------------------------------------------------------------------------
// State transitions
// ---------------------------------------------------------------------------

func TestBreaker_OpensAtThreshold(t *testing.T) {
	s, _ := newTestSet(t)

	assert.False(t, s.RecordFailure("a"))
	assert.False(t, s.RecordFailure("a"))
	assert.False(t, s.IsOpen("a"))

	assert.True(t, s.RecordFailure("a"))
	assert.True(t, s.IsOpen("a"))

	snap := s.Snapshot()["a"]
	assert.Equal(t, "open", snap.State)
	assert.Equal(t, 3, snap.ConsecutiveErrors)
	require.NotNil(t, snap.OpenUntil)
}

func TestBreaker_ClosesAfterCooldown(t *testing.T) {
	s, clock := newTestSet(t)
	for i := 0; i < 3; i++ {
		s.RecordFailure("a")
	}
	require.True(t, s.IsOpen("a"))

	clock.Advance(4 * time.Minute)
	assert.True(t, s.IsOpen("a"))

	clock.Advance(time.Minute)
	assert.False(t, s.IsOpen("a"))
	assert.Equal(t, StateHalfOpen, s.Get("a").State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	s, clock := newTestSet(t)
	for i := 0; i < 3; i++ {
		s.RecordFailure("a")
	}
	clock.Advance(5 * time.Minute)
	require.False(t, s.IsOpen("a"))

	assert.True(t, s.RecordFailure("a"))
	assert.True(t, s.IsOpen("a"))
}

func TestBreaker_SuccessClosesImmediately(t *testing.T) {
	s, _ := newTestSet(t)
	for i := 0; i < 3; i++ {
		s.RecordFailure("a")
	}
	require.True(t, s.IsOpen("a"))

	s.RecordSuccess("a")
	assert.False(t, s.IsOpen("a"))
	assert.Equal(t, 0, s.Get("a").ConsecutiveErrors())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	s, _ := newTestSet(t)
	s.RecordFailure("a")
	s.RecordFailure("a")
	s.RecordSuccess("a")
	s.RecordFailure("a")
	s.RecordFailure("a")
	assert.False(t, s.IsOpen("a"))
}

func TestBreaker_ProvidersIsolated(t *testing.T) {
	s, _ := newTestSet(t)
	for i := 0; i < 3; i++ {
		s.RecordFailure("a")
	}
	assert.True(t, s.IsOpen("a"))
	assert.False(t, s.IsOpen("b"))
}

func TestSet_ResetAll(t *testing.T) {
	s, _ := newTestSet(t)
	for i := 0; i < 3; i++ {
		s.RecordFailure("a")
		s.RecordFailure("b")
	}
	s.ResetAll()

	for name, snap := range s.Snapshot() {
		assert.Equal(t, "closed", snap.State, name)
		assert.Zero(t, snap.ConsecutiveErrors, name)
		assert.Nil(t, snap.OpenUntil, name)
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var changes [][2]State
	s := NewSet(Config{OnStateChange: func(provider string, from, to State) {
		changes = append(changes, [2]State{from, to})
	}}, zap.NewNop())

	for i := 0; i < 3; i++ {
		s.RecordFailure("a")
	}

	// 回调同步执行，返回时已可见
	require.Len(t, changes, 1)
	assert.Equal(t, [2]State{StateClosed, StateOpen}, changes[0])
}

func TestBreaker_OnStateChangeInOrder(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var changes []string
	s := NewSet(Config{Threshold: 1, Cooldown: time.Minute, OnStateChange: func(provider string, from, to State) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, from.String()+">"+to.String())
	}}, zap.NewNop())
	s.SetClock(clock.Now)

	s.RecordFailure("a")
	clock.Advance(2 * time.Minute)
	s.RecordFailure("a") // 半开后再次失败
	clock.Advance(2 * time.Minute)
	assert.False(t, s.IsOpen("a"))
	s.RecordSuccess("a")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"closed>open",
		"open>half_open",
		"half_open>open",
		"open>half_open",
		"half_open>closed",
	}, changes)
}

func TestBreaker_OnStateChangeMayReadBreaker(t *testing.T) {
	var s *Set
	seen := make(chan State, 1)
	s = NewSet(Config{Threshold: 1, OnStateChange: func(provider string, from, to State) {
		seen <- s.Get(provider).State()
	}}, zap.NewNop())

	s.RecordFailure("a")
	assert.Equal(t, StateOpen, <-seen)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestBreaker_ConcurrentFailuresNotLost(t *testing.T) {
	b := NewBreaker("a", Config{Threshold: 1000}, zap.NewNop())

	const workers = 50
	const perWorker = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				b.RecordFailure()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, b.ConsecutiveErrors())
}

func TestSet_ConcurrentGetReturnsSameBreaker(t *testing.T) {
	s := NewSet(DefaultConfig(), nil)
	var wg sync.WaitGroup
	got := make([]*Breaker, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = s.Get("shared")
		}(i)
	}
	wg.Wait()
	for _, b := range got {
		assert.Same(t, got[0], b)
	}
}
