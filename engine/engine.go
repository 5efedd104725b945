package engine

import (
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"particlesim/config"
	"particlesim/core"
	"particlesim/gpu"
	"particlesim/physics"
	"particlesim/rendering/opengl"
	"particlesim/rendering/opengl/shaders"
	"particlesim/timing"
)

// Options are the collaborators of an Engine. Device and Context are
// required, everything else has a default.
type Options struct {
	Device       gpu.Device
	Context      Context
	Loader       shaders.Loader
	TimeProvider timing.TimeProvider
	Rand         *rand.Rand
	Logger       *zap.Logger
}

// Engine runs the frame protocol: physics dispatch, barrier, camera upload,
// point draw, present
type Engine struct {
	dev    gpu.Device
	ctx    Context
	loader shaders.Loader
	rng    *rand.Rand
	log    *zap.Logger

	cfg      *config.Settings
	clock    *timing.Clock
	counters *timing.Counters

	pipeline   *shaders.Pipeline
	store      *core.Store
	camera     *opengl.Camera
	renderer   *opengl.PointRenderer
	dispatcher *physics.Dispatcher

	current     bool // the context was made current at least once
	initialized bool
	closed      bool
}

// New creates an engine. Nothing touches the device until Init.
func New(opts Options) *Engine {
	e := &Engine{
		dev:      opts.Device,
		ctx:      opts.Context,
		loader:   opts.Loader,
		rng:      opts.Rand,
		log:      opts.Logger,
		clock:    timing.NewClock(opts.TimeProvider, timing.DefaultSeed),
		counters: timing.NewCounters(),
	}
	if e.loader == nil {
		e.loader = shaders.EmbeddedLoader{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

func (e *Engine) ready() error {
	if e.closed {
		return core.ErrClosed
	}
	if !e.initialized {
		return core.ErrNotInitialized
	}
	return nil
}

// Init creates the particle state, the device buffers and the programs and
// sets the initial GL state. On failure everything created so far is torn
// down and the engine is closed.
func (e *Engine) Init(cfg *config.Settings) error {
	if e.closed {
		return core.ErrClosed
	}
	if e.initialized {
		return core.ErrAlreadyInitialized
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid settings")
	}
	e.cfg = cfg

	if err := e.init(); err != nil {
		e.closed = true
		if terr := e.teardown(); terr != nil {
			e.log.Warn("teardown after failed init", zap.Error(terr))
		}
		return err
	}
	e.initialized = true
	return nil
}

func (e *Engine) init() error {
	if err := e.ctx.MakeCurrent(); err != nil {
		return &core.EnvironmentError{Op: "make context current", Err: err}
	}
	e.current = true
	// context creation can leave error flags behind
	if stale := gpu.DrainErrors(e.dev); len(stale) > 0 {
		e.log.Debug("discarded stale device errors", zap.Int("count", len(stale)))
	}

	sim := e.cfg.Simulation
	win := e.cfg.Window

	e.dev.ClearColor(0, 0, 0, 1)
	e.dev.EnableDepthTest()
	e.dev.PointSize(float32(win.PointSize))
	e.dev.Viewport(0, 0, int32(win.Width), int32(win.Height))

	rng := e.rng
	if rng == nil {
		seed := sim.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	state, err := core.Initialize(sim.ParticleCount,
		core.Range{Min: float32(sim.DistanceMin), Max: float32(sim.DistanceMax)},
		core.Range{Min: float32(sim.MassMin), Max: float32(sim.MassMax)},
		rng)
	if err != nil {
		return err
	}
	e.store = core.NewStore(e.dev, state, sim.DoubleBuffered)
	if err := e.store.Upload(); err != nil {
		return err
	}

	e.pipeline = shaders.NewPipeline(e.dev, e.log)
	if err := e.pipeline.BuildAll(e.loader); err != nil {
		return err
	}

	cam := e.cfg.Camera
	e.camera, err = opengl.NewCamera(opengl.Lens{
		FovY: float32(cam.FovY),
		Near: float32(cam.Near),
		Far:  float32(cam.Far),
	}, win.Width, win.Height)
	if err != nil {
		return err
	}
	e.camera.SetView(
		mgl32.Vec3{float32(cam.EyeX), float32(cam.EyeY), float32(cam.EyeZ)},
		mgl32.Vec3{float32(cam.TargetX), float32(cam.TargetY), float32(cam.TargetZ)},
		mgl32.Vec3{float32(cam.UpX), float32(cam.UpY), float32(cam.UpZ)},
	)

	e.renderer = opengl.NewPointRenderer(e.dev, e.pipeline.Program(shaders.RolePoint))
	e.dispatcher, err = physics.NewDispatcher(e.dev, e.pipeline.Program(shaders.RolePhysics), e.store, e.params())
	if err != nil {
		return err
	}
	e.dispatcher.Log = e.log

	e.camera.Publish(e.dev, e.pipeline.Program(shaders.RolePoint))
	if err := core.CheckDevice(e.dev, "init"); err != nil {
		return err
	}

	e.log.Info("frame engine initialized",
		zap.Int("particles", sim.ParticleCount),
		zap.Bool("double_buffered", sim.DoubleBuffered),
		zap.Uint32("local_size", e.dispatcher.LocalSize()),
		zap.Int("width", win.Width),
		zap.Int("height", win.Height))
	return nil
}

func (e *Engine) params() physics.Params {
	return physics.Params{
		G:         float32(e.cfg.Simulation.GravitationalConstant),
		Softening: float32(e.cfg.Simulation.Softening),
	}
}

// timestep turns a measured frame time into the physics delta in seconds
func (e *Engine) timestep(frame time.Duration) float32 {
	sim := e.cfg.Simulation
	dt := sim.FixedTimestep
	if dt == 0 {
		dt = frame.Seconds()
		if dt > sim.MaxTimestep {
			dt = sim.MaxTimestep
		}
	}
	return float32(dt * sim.TimeScale)
}

// RenderFrame advances the simulation one step and draws it. A frame that
// fails on the device is not presented.
func (e *Engine) RenderFrame() error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.ctx.MakeCurrent(); err != nil {
		return &core.EnvironmentError{Op: "make context current", Err: err}
	}

	frame := e.clock.Tick()
	dt := e.timestep(frame)

	start := e.clock.Now()
	if err := e.dispatcher.Step(dt); err != nil {
		return err
	}
	e.counters.RecordSample(timing.PhasePhysics, e.clock.Since(start))

	start = e.clock.Now()
	e.dev.Clear()
	e.camera.Publish(e.dev, e.pipeline.Program(shaders.RolePoint))
	if err := e.renderer.Draw(e.store.Front().Position, e.store.Count()); err != nil {
		return err
	}
	e.counters.RecordSample(timing.PhaseRender, e.clock.Since(start))

	if err := e.ctx.SwapBuffers(); err != nil {
		return &core.EnvironmentError{Op: "swap buffers", Err: err}
	}
	e.counters.RecordSample(timing.PhaseFrame, frame)
	return nil
}

// OnResize updates the viewport and the projection. The view is unchanged.
func (e *Engine) OnResize(width, height int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.camera.OnResize(width, height); err != nil {
		return err
	}
	e.dev.Viewport(0, 0, int32(width), int32(height))
	e.camera.Publish(e.dev, e.pipeline.Program(shaders.RolePoint))
	e.log.Debug("viewport resized", zap.Int("width", width), zap.Int("height", height))
	return core.CheckDevice(e.dev, "resize")
}

// ReloadShaders rebuilds every program from the loader. When the rebuild
// fails the running programs stay in use.
func (e *Engine) ReloadShaders() error {
	if err := e.ready(); err != nil {
		return err
	}

	if stale := gpu.DrainErrors(e.dev); len(stale) > 0 {
		e.log.Debug("discarded stale device errors", zap.Int("count", len(stale)))
	}

	next := shaders.NewPipeline(e.dev, e.log)
	err := next.BuildAll(e.loader)
	if err == nil {
		err = core.CheckDevice(e.dev, "reload")
	}
	if err != nil {
		next.Release()
		e.log.Warn("shader reload failed, keeping previous programs", zap.Error(err))
		return errors.Wrap(err, "reloading shaders")
	}
	if err := e.dispatcher.SetProgram(next.Program(shaders.RolePhysics)); err != nil {
		next.Release()
		e.log.Warn("shader reload failed, keeping previous programs", zap.Error(err))
		return errors.Wrap(err, "reloading shaders")
	}

	e.renderer.SetProgram(next.Program(shaders.RolePoint))
	e.pipeline.Release()
	e.pipeline = next
	e.camera.Invalidate()
	e.camera.Publish(e.dev, next.Program(shaders.RolePoint))
	e.log.Info("shaders reloaded")
	return nil
}

// Deinit tears down in order: shader stages, programs, the vertex array and
// device buffers, then the host arrays. Calling it again does nothing.
func (e *Engine) Deinit() error {
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.teardown()
	e.log.Info("frame engine shut down", zap.Uint64("frames", e.counters.Frames()))
	return err
}

func (e *Engine) teardown() error {
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.renderer != nil {
		e.renderer.Release()
	}
	if e.store != nil {
		e.store.Release()
	}
	if !e.current {
		return nil
	}
	return core.CheckDevice(e.dev, "teardown")
}

// Positions reads the current positions back from the device
func (e *Engine) Positions() ([]mgl32.Vec3, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.store.ReadPositions()
}

// Stats copies the rolling frame counters
func (e *Engine) Stats() timing.Stats {
	return e.counters.Snapshot()
}

// Camera is nil before Init
func (e *Engine) Camera() *opengl.Camera {
	return e.camera
}

// Context returns the context the engine renders into
func (e *Engine) Context() Context {
	return e.ctx
}

func (e *Engine) Logger() *zap.Logger {
	return e.log
}

func (e *Engine) Now() time.Time {
	return e.clock.Now()
}
