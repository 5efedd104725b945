package timing

import (
	"sort"
	"time"
)

// RingCapacity is the number of samples a rolling average covers
const RingCapacity = 8

// Frame phases
const (
	PhasePhysics = "physics"
	PhaseRender  = "render"
	PhaseFrame   = "frame"
)

// Ring keeps the last RingCapacity samples and their sum
type Ring struct {
	samples [RingCapacity]time.Duration
	next    int
	count   int
	total   time.Duration
}

// Add stores d, replacing the oldest sample once the ring is full
func (r *Ring) Add(d time.Duration) {
	if r.count == RingCapacity {
		r.total -= r.samples[r.next]
	} else {
		r.count++
	}
	r.samples[r.next] = d
	r.total += d
	r.next = (r.next + 1) % RingCapacity
}

// Average is the mean of the held samples, 0 when empty
func (r *Ring) Average() time.Duration {
	if r.count == 0 {
		return 0
	}
	return r.total / time.Duration(r.count)
}

func (r *Ring) Len() int { return r.count }

// Stats is an immutable copy of the counters
type Stats struct {
	Frames   uint64                   `json:"frames"`
	Averages map[string]time.Duration `json:"averages_ns"`
	FPS      float64                  `json:"fps"`
}

// Counters tracks a rolling average per frame phase
type Counters struct {
	rings  map[string]*Ring
	frames uint64
}

// NewCounters creates counters for the physics, render and frame phases
func NewCounters() *Counters {
	c := &Counters{rings: make(map[string]*Ring)}
	for _, phase := range []string{PhasePhysics, PhaseRender, PhaseFrame} {
		c.rings[phase] = &Ring{}
	}
	return c
}

// RecordSample adds d to phase, creating the phase on first use
func (c *Counters) RecordSample(phase string, d time.Duration) {
	r, ok := c.rings[phase]
	if !ok {
		r = &Ring{}
		c.rings[phase] = r
	}
	r.Add(d)
	if phase == PhaseFrame {
		c.frames++
	}
}

// RollingAverage is the mean of the last samples of phase, 0 if unknown
func (c *Counters) RollingAverage(phase string) time.Duration {
	r, ok := c.rings[phase]
	if !ok {
		return 0
	}
	return r.Average()
}

// Frames counts frame samples recorded so far
func (c *Counters) Frames() uint64 {
	return c.frames
}

// Phases lists the known phases in order
func (c *Counters) Phases() []string {
	phases := make([]string, 0, len(c.rings))
	for p := range c.rings {
		phases = append(phases, p)
	}
	sort.Strings(phases)
	return phases
}

// Snapshot copies the current averages
func (c *Counters) Snapshot() Stats {
	s := Stats{
		Frames:   c.frames,
		Averages: make(map[string]time.Duration, len(c.rings)),
	}
	for p, r := range c.rings {
		s.Averages[p] = r.Average()
	}
	if avg := s.Averages[PhaseFrame]; avg > 0 {
		s.FPS = float64(time.Second) / float64(avg)
	}
	return s
}
