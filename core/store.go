package core

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"particlesim/gpu"
)

// Slot is one position/velocity buffer pair on the device
type Slot struct {
	Position uint32
	Velocity uint32
}

// Store owns the device copy of a ParticleState: two position/velocity slots
// for ping-pong updates plus one acceleration and one mass buffer.
//
// Vectors are packed as float triples, 12 bytes per particle, which is why
// the compute kernel declares them as float[] rather than vec3[].
type Store struct {
	dev            gpu.Device
	state          *ParticleState
	doubleBuffered bool

	slots        [2]Slot
	acceleration uint32
	mass         uint32
	front        int

	uploaded bool
	released bool
}

// NewStore wraps state for upload to dev. With doubleBuffered false both Front
// and Back return slot A and Swap does nothing.
func NewStore(dev gpu.Device, state *ParticleState, doubleBuffered bool) *Store {
	return &Store{dev: dev, state: state, doubleBuffered: doubleBuffered}
}

// Upload allocates every device buffer and copies the host state into it.
// Both slots start with the same contents.
func (s *Store) Upload() error {
	if s.released {
		return ErrClosed
	}
	if s.uploaded {
		return errors.New("particle store already uploaded")
	}
	s.uploaded = true

	// stale codes would be blamed on the allocation
	gpu.DrainErrors(s.dev)

	positions := Flatten(s.state.Position)
	velocities := Flatten(s.state.Velocity)
	accelerations := Flatten(s.state.Acceleration)

	uploads := []struct {
		name   string
		handle *uint32
		data   []float32
	}{
		{"position buffer A", &s.slots[0].Position, positions},
		{"position buffer B", &s.slots[1].Position, positions},
		{"velocity buffer A", &s.slots[0].Velocity, velocities},
		{"velocity buffer B", &s.slots[1].Velocity, velocities},
		{"acceleration buffer", &s.acceleration, accelerations},
		{"mass buffer", &s.mass, s.state.Mass},
	}
	for _, u := range uploads {
		*u.handle = s.dev.CreateBuffer()
		s.dev.BufferData(*u.handle, u.data)
		if codes := gpu.DrainErrors(s.dev); len(codes) > 0 {
			return &ResourceError{
				Resource: u.name,
				Bytes:    len(u.data) * 4,
				Err:      errors.New(gpu.ErrorString(codes[0])),
			}
		}
	}
	return nil
}

// Count is the number of particles
func (s *Store) Count() int {
	return s.state.Count
}

// DoubleBuffered reports whether Swap alternates slots
func (s *Store) DoubleBuffered() bool {
	return s.doubleBuffered
}

// State returns the host arrays, nil after Release
func (s *Store) State() *ParticleState {
	if s.released {
		return nil
	}
	return s.state
}

// Front is the slot holding the latest positions
func (s *Store) Front() Slot {
	return s.slots[s.front]
}

// Back is the slot the next step writes into
func (s *Store) Back() Slot {
	if !s.doubleBuffered {
		return s.slots[s.front]
	}
	return s.slots[1-s.front]
}

func (s *Store) Acceleration() uint32 { return s.acceleration }

func (s *Store) Mass() uint32 { return s.mass }

// Swap makes the back slot the front one
func (s *Store) Swap() {
	if s.doubleBuffered {
		s.front = 1 - s.front
	}
}

// ReadPositions copies the front position buffer back to the host
func (s *Store) ReadPositions() ([]mgl32.Vec3, error) {
	if s.released {
		return nil, ErrClosed
	}
	if !s.uploaded {
		return nil, ErrNotInitialized
	}
	buf := make([]float32, s.state.Count*3)
	s.dev.ReadBuffer(s.Front().Position, buf)
	if err := CheckDevice(s.dev, "readback"); err != nil {
		return nil, err
	}
	return Unflatten(buf), nil
}

// Release deletes the device buffers, then drops the host arrays. Calling it
// again does nothing.
func (s *Store) Release() {
	if s.released {
		return
	}
	s.released = true

	handles := []*uint32{
		&s.slots[0].Position, &s.slots[1].Position,
		&s.slots[0].Velocity, &s.slots[1].Velocity,
		&s.acceleration, &s.mass,
	}
	for _, h := range handles {
		if *h != 0 {
			s.dev.DeleteBuffer(*h)
			*h = 0
		}
	}
	s.state.Release()
}
