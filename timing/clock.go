package timing

import (
	"sync"
	"time"
)

// DefaultSeed is the first frame delta, one 60 Hz frame
const DefaultSeed = time.Second / 60

// TimeProvider supplies monotonic time readings
type TimeProvider interface {
	Now() time.Time
}

// SystemClock reads the wall clock with its monotonic component
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// MockClock is a TimeProvider moved by hand, for tests
type MockClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMockClock creates a mock clock reading start
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set jumps to t, backwards jumps included
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Clock measures the time between frames
type Clock struct {
	provider TimeProvider
	seed     time.Duration
	last     time.Time
	started  bool
}

// NewClock creates a frame clock. The first Tick returns seed, a zero or
// negative seed means DefaultSeed.
func NewClock(provider TimeProvider, seed time.Duration) *Clock {
	if provider == nil {
		provider = SystemClock{}
	}
	if seed <= 0 {
		seed = DefaultSeed
	}
	return &Clock{provider: provider, seed: seed}
}

// Tick returns the time since the previous Tick, never negative
func (c *Clock) Tick() time.Duration {
	now := c.provider.Now()
	if !c.started {
		c.started = true
		c.last = now
		return c.seed
	}
	d := now.Sub(c.last)
	c.last = now
	if d < 0 {
		return 0
	}
	return d
}

// Since measures from start using the clock's provider
func (c *Clock) Since(start time.Time) time.Duration {
	return c.provider.Now().Sub(start)
}

// Now reads the clock's provider
func (c *Clock) Now() time.Time {
	return c.provider.Now()
}
