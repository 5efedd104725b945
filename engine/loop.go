package engine

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"particlesim/config"
	"particlesim/core"
	"particlesim/timing"
)

// Loop drives an Engine until a quit event, escape, a cancelled context or
// a fatal error
type Loop struct {
	Engine *Engine
	Config *config.Settings
	Events EventSource

	// Reload, when set, triggers a shader rebuild each time it delivers
	Reload <-chan struct{}

	// OnStats receives a snapshot of the counters every StatsInterval
	OnStats       func(timing.Stats)
	StatsInterval time.Duration

	// MaxFrames stops the loop after that many frames, 0 runs until quit
	MaxFrames uint64
}

// Run initializes the engine, renders frames and always tears down before
// returning: engine first, then the context if it is an io.Closer. The
// returned error holds the failure that stopped the loop together with any
// teardown error.
func (l *Loop) Run(ctx context.Context) (err error) {
	e := l.Engine
	log := e.Logger()

	defer func() {
		err = multierr.Append(err, e.Deinit())
		if closer, ok := e.Context().(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}()

	if err := e.Init(l.Config); err != nil {
		return err
	}

	interval := l.StatsInterval
	if interval <= 0 && l.Config != nil {
		interval = time.Duration(l.Config.Telemetry.StatsIntervalMs) * time.Millisecond
	}
	if interval <= 0 {
		interval = time.Second
	}
	lastStats := e.Now()

	var frames uint64
	for {
		select {
		case <-ctx.Done():
			log.Info("frame loop cancelled")
			return nil
		default:
		}

		quit, err := l.handleEvents()
		if err != nil {
			return err
		}
		if quit {
			return nil
		}

		if l.Reload != nil {
			select {
			case <-l.Reload:
				// a failed reload keeps the old programs running
				_ = e.ReloadShaders()
			default:
			}
		}

		if err := e.RenderFrame(); err != nil {
			return err
		}
		frames++

		if now := e.Now(); now.Sub(lastStats) >= interval {
			lastStats = now
			stats := e.Stats()
			log.Debug("frame stats",
				zap.Uint64("frames", stats.Frames),
				zap.Float64("fps", stats.FPS),
				zap.Duration("physics", stats.Averages[timing.PhasePhysics]),
				zap.Duration("render", stats.Averages[timing.PhaseRender]))
			if l.OnStats != nil {
				l.OnStats(stats)
			}
		}

		if l.MaxFrames > 0 && frames >= l.MaxFrames {
			return nil
		}
	}
}

func (l *Loop) handleEvents() (quit bool, err error) {
	if l.Events == nil {
		return false, nil
	}
	e := l.Engine
	for _, ev := range l.Events.Poll() {
		switch ev.Kind {
		case EventQuit:
			return true, nil
		case EventKey:
			switch ev.Key {
			case KeyEscape:
				return true, nil
			case KeyReload:
				_ = e.ReloadShaders()
			}
		case EventResize:
			err := e.OnResize(ev.Width, ev.Height)
			if errors.Is(err, core.ErrInvalidViewport) {
				// minimized windows report 0x0
				e.Logger().Debug("ignoring resize", zap.Int("width", ev.Width), zap.Int("height", ev.Height))
				continue
			}
			if err != nil {
				return false, err
			}
		}
	}
	return false, nil
}
