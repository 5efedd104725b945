package core

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Range is a closed-open interval [Min, Max) for uniform sampling
type Range struct {
	Min, Max float32
}

// finite reports whether both bounds and the span fit in a float32
func (r Range) finite() bool {
	span := float64(r.Max - r.Min)
	return !math.IsNaN(span) && !math.IsInf(span, 0)
}

func (r Range) sample(rng *rand.Rand) float32 {
	return r.Min + rng.Float32()*(r.Max-r.Min)
}

// ParticleState is the host copy of the simulation, one entry per particle in
// each column. Count never changes after Initialize.
type ParticleState struct {
	Count        int
	Position     []mgl32.Vec3
	Velocity     []mgl32.Vec3
	Acceleration []mgl32.Vec3
	Mass         []float32
}

// Initialize samples count particles. Every position component is drawn from
// distance and every mass from mass. Velocity starts equal to position and
// acceleration at zero.
func Initialize(count int, distance, mass Range, rng *rand.Rand) (*ParticleState, error) {
	if count <= 0 || count > MaxParticles {
		return nil, &ResourceError{
			Resource: "particle state",
			Bytes:    count * hostBytesPerParticle,
			Err:      errors.Errorf("particle count %d outside 1..%d", count, MaxParticles),
		}
	}
	if !distance.finite() {
		return nil, errors.Errorf("distance range [%g, %g) does not fit in a float32", distance.Min, distance.Max)
	}
	if !mass.finite() {
		return nil, errors.Errorf("mass range [%g, %g) does not fit in a float32", mass.Min, mass.Max)
	}
	if distance.Max < distance.Min {
		return nil, errors.Errorf("distance range [%g, %g) is inverted", distance.Min, distance.Max)
	}
	if mass.Max < mass.Min {
		return nil, errors.Errorf("mass range [%g, %g) is inverted", mass.Min, mass.Max)
	}

	s := &ParticleState{
		Count:        count,
		Position:     make([]mgl32.Vec3, count),
		Velocity:     make([]mgl32.Vec3, count),
		Acceleration: make([]mgl32.Vec3, count),
		Mass:         make([]float32, count),
	}
	for i := 0; i < count; i++ {
		s.Mass[i] = mass.sample(rng)
		s.Position[i] = mgl32.Vec3{distance.sample(rng), distance.sample(rng), distance.sample(rng)}
		s.Velocity[i] = s.Position[i]
	}
	return s, nil
}

// Release drops the host arrays
func (s *ParticleState) Release() {
	s.Position = nil
	s.Velocity = nil
	s.Acceleration = nil
	s.Mass = nil
}

// three vectors and a mass
const hostBytesPerParticle = 3*vec3Bytes + 4

const vec3Bytes = 12

// Flatten packs vectors into consecutive float triples
func Flatten(v []mgl32.Vec3) []float32 {
	out := make([]float32, 0, len(v)*3)
	for _, p := range v {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

// Unflatten is the inverse of Flatten, trailing floats are ignored
func Unflatten(f []float32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(f)/3)
	for i := range out {
		out[i] = mgl32.Vec3{f[3*i], f[3*i+1], f[3*i+2]}
	}
	return out
}
