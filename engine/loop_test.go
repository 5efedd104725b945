package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"particlesim/config"
	"particlesim/core"
	"particlesim/gpu"
	"particlesim/timing"
)

// steppingClock moves forward every time it is read
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func newLoop(t *testing.T, events ...Event) (*Loop, *harness) {
	t.Helper()
	h := newHarness(t, nil, nil)
	h.engine.clock = timing.NewClock(&steppingClock{now: time.Unix(0, 0), step: 4 * time.Millisecond}, 0)
	q := &EventQueue{}
	q.Push(events...)
	return &Loop{Engine: h.engine, Config: config.Defaults(), Events: q}, h
}

func TestLoopMaxFrames(t *testing.T) {
	l, h := newLoop(t)
	l.MaxFrames = 25

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 25, h.ctx.swaps)
	assert.Equal(t, 1, h.ctx.closes)
	assert.Equal(t, gpu.SoftStats{}, h.dev.Live())
	assert.ErrorIs(t, h.engine.RenderFrame(), core.ErrClosed)
}

func TestLoopQuitEvents(t *testing.T) {
	for name, ev := range map[string]Event{
		"quit":   Quit(),
		"escape": KeyDown(KeyEscape),
	} {
		t.Run(name, func(t *testing.T) {
			l, h := newLoop(t, ev)
			require.NoError(t, l.Run(context.Background()))
			assert.Zero(t, h.ctx.swaps)
			assert.Equal(t, 1, h.ctx.closes)
		})
	}
}

func TestLoopCancelled(t *testing.T) {
	l, h := newLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, l.Run(ctx))
	assert.Zero(t, h.ctx.swaps)
	assert.Equal(t, 1, h.ctx.closes)
}

func TestLoopIgnoresMinimizedResize(t *testing.T) {
	l, h := newLoop(t, Resize(0, 0), KeyDown(KeyUnknown))
	l.MaxFrames = 1

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1, h.ctx.swaps)
	assert.Equal(t, [4]int32{0, 0, 768, 768}, h.dev.State.Viewport)
}

func TestLoopResize(t *testing.T) {
	l, h := newLoop(t, Resize(640, 480))
	l.MaxFrames = 1

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, [4]int32{0, 0, 640, 480}, h.dev.State.Viewport)
}

func TestLoopReload(t *testing.T) {
	reload := make(chan struct{}, 1)
	reload <- struct{}{}
	l, h := newLoop(t, KeyDown(KeyReload))
	l.Reload = reload
	l.MaxFrames = 1

	require.NoError(t, l.Run(context.Background()))
	// initial programs plus one rebuild per trigger
	assert.Equal(t, 3*2, countPrefix(h.dev.Deletions, "program:"))
}

func TestLoopStats(t *testing.T) {
	l, _ := newLoop(t)
	l.MaxFrames = 50
	l.StatsInterval = 20 * time.Millisecond

	var got []timing.Stats
	l.OnStats = func(s timing.Stats) { got = append(got, s) }

	require.NoError(t, l.Run(context.Background()))
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.LessOrEqual(t, last.Frames, uint64(50))
	assert.Greater(t, last.FPS, 0.0)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Frames, got[i-1].Frames)
	}
}

func TestLoopInitFailureStillClosesContext(t *testing.T) {
	l, h := newLoop(t)
	h.ctx.makeErr = errors.New("no display")

	err := l.Run(context.Background())
	var envErr *core.EnvironmentError
	require.True(t, errors.As(err, &envErr), "got %v", err)
	assert.Equal(t, 1, h.ctx.closes)
}

func TestLoopCombinesErrors(t *testing.T) {
	l, h := newLoop(t)
	l.MaxFrames = 3
	h.ctx.swapErr = errors.New("surface lost")
	h.ctx.closeErr = errors.New("window already destroyed")

	err := l.Run(context.Background())
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "surface lost")
	assert.Contains(t, errs[1].Error(), "window already destroyed")
	assert.Equal(t, 1, h.ctx.swaps)
}

func countPrefix(list []string, prefix string) int {
	n := 0
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}
