package physics

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"particlesim/core"
	"particlesim/gpu"
	"particlesim/rendering/opengl/shaders"
)

// State is where a Dispatcher is in its step
type State int

const (
	Idle State = iota
	BuffersBound
	Dispatched
	BarrierInserted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BuffersBound:
		return "buffers-bound"
	case Dispatched:
		return "dispatched"
	case BarrierInserted:
		return "barrier-inserted"
	}
	return "unknown"
}

// Params are the force law constants passed to the kernel
type Params struct {
	G         float32
	Softening float32
}

// WorkGroups is the number of groups of size local needed to cover count
// invocations
func WorkGroups(count int, local uint32) uint32 {
	if count <= 0 || local == 0 {
		return 0
	}
	return (uint32(count) + local - 1) / local
}

// Dispatcher runs the physics program over a particle store. Every step ends
// with a memory barrier so the renderer never reads a half-written buffer.
type Dispatcher struct {
	dev       gpu.Device
	program   *shaders.Program
	store     *core.Store
	params    Params
	localSize uint32
	state     State
	steps     uint64

	// OnTransition, when set, is called on every state change
	OnTransition func(State)

	// Log receives the error codes discarded before a step, nil drops them
	Log *zap.Logger
}

// NewDispatcher reads the local size the kernel was compiled with
func NewDispatcher(dev gpu.Device, program *shaders.Program, store *core.Store, params Params) (*Dispatcher, error) {
	d := &Dispatcher{dev: dev, store: store, params: params}
	if err := d.SetProgram(program); err != nil {
		return nil, err
	}
	return d, nil
}

// SetProgram switches to a rebuilt physics program
func (d *Dispatcher) SetProgram(program *shaders.Program) error {
	size := d.dev.WorkGroupSize(program.Handle)
	if err := core.CheckDevice(d.dev, "compute"); err != nil {
		return errors.Wrapf(err, "querying work group size of %s program", program.Role)
	}
	if size[0] == 0 {
		return errors.Errorf("%s program declares no local size", program.Role)
	}
	count := d.store.Count()
	groups := WorkGroups(count, size[0])
	if limit := d.dev.Info().MaxComputeWorkGroupCount[0]; limit > 0 && groups > uint32(limit) {
		return &core.ResourceError{
			Resource: "compute dispatch",
			Bytes:    count * 12,
			Err: errors.Errorf("%d particles need %d work groups of %d, the device allows %d",
				count, groups, size[0], limit),
		}
	}
	d.program = program
	d.localSize = size[0]
	return nil
}

func (d *Dispatcher) LocalSize() uint32 { return d.localSize }

func (d *Dispatcher) State() State { return d.state }

// Steps counts completed steps
func (d *Dispatcher) Steps() uint64 { return d.steps }

func errorNames(codes []uint32) []string {
	names := make([]string, len(codes))
	for i, code := range codes {
		names[i] = gpu.ErrorString(code)
	}
	return names
}

func (d *Dispatcher) enter(s State) {
	d.state = s
	if d.OnTransition != nil {
		d.OnTransition(s)
	}
}

// Step advances the simulation by dt. In double-buffered mode the front slot
// is read, the back slot written, and the store swapped afterwards. In
// single-buffered mode the front slot is read and written in place.
func (d *Dispatcher) Step(dt float32) error {
	// codes raised outside a frame phase must not fail this step
	if stale := gpu.DrainErrors(d.dev); len(stale) > 0 && d.Log != nil {
		d.Log.Debug("discarded device errors before compute step",
			zap.Strings("codes", errorNames(stale)))
	}

	src := d.store.Front()
	dst := d.store.Back()
	count := d.store.Count()

	scope := gpu.NewScope(d.dev)
	scope.UseProgram(d.program.Handle)
	scope.BindStorageBuffer(BindingPositionOut, dst.Position)
	scope.BindStorageBuffer(BindingVelocityOut, dst.Velocity)
	scope.BindStorageBuffer(BindingMass, d.store.Mass())
	scope.BindStorageBuffer(BindingAcceleration, d.store.Acceleration())
	scope.BindStorageBuffer(BindingPositionIn, src.Position)
	scope.BindStorageBuffer(BindingVelocityIn, src.Velocity)
	d.enter(BuffersBound)

	d.dev.Uniform1f(d.program.UniformLocation(UniformDeltaT), dt)
	d.dev.Uniform1ui(d.program.UniformLocation(UniformParticleCount), uint32(count))
	d.dev.Uniform1f(d.program.UniformLocation(UniformG), d.params.G)
	d.dev.Uniform1f(d.program.UniformLocation(UniformSoftening), d.params.Softening)

	d.dev.DispatchCompute(WorkGroups(count, d.localSize), 1, 1)
	d.enter(Dispatched)

	d.dev.MemoryBarrier(gpu.BarrierAll)
	d.enter(BarrierInserted)
	scope.Close()

	if err := core.CheckDevice(d.dev, "compute"); err != nil {
		d.enter(Idle)
		return err
	}
	d.store.Swap()
	d.steps++
	d.enter(Idle)
	return nil
}
