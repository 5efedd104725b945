package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"particlesim/gpu"
)

// Storage bindings declared by physics.comp
const (
	BindingPositionOut uint32 = iota
	BindingVelocityOut
	BindingMass
	BindingAcceleration
	BindingPositionIn
	BindingVelocityIn
)

// Uniforms declared by physics.comp
const (
	UniformDeltaT        = "delta_t"
	UniformParticleCount = "particle_count"
	UniformG             = "G"
	UniformSoftening     = "softening"
)

func load3(buf []float32, i uint32) mgl32.Vec3 {
	return mgl32.Vec3{buf[3*i], buf[3*i+1], buf[3*i+2]}
}

func store3(buf []float32, i uint32, v mgl32.Vec3) {
	buf[3*i], buf[3*i+1], buf[3*i+2] = v[0], v[1], v[2]
}

// ReferenceKernel is physics.comp for gpu.SoftDevice: softened pairwise
// gravity followed by a semi-implicit Euler step, one particle per invocation.
func ReferenceKernel(inv *gpu.Invocation, id uint32) {
	n := inv.Uint(UniformParticleCount)
	if id >= n {
		return
	}
	dt := inv.Float(UniformDeltaT)
	g := inv.Float(UniformG)
	eps := inv.Float(UniformSoftening)

	xIn := inv.Load(BindingPositionIn)
	vIn := inv.Load(BindingVelocityIn)
	mass := inv.Load(BindingMass)
	xOut := inv.Store(BindingPositionOut)
	vOut := inv.Store(BindingVelocityOut)
	aOut := inv.Store(BindingAcceleration)

	// an unbound or short buffer reads as empty, like an out of bounds access
	vecs := int(3 * n)
	for _, buf := range [][]float32{xIn, vIn, xOut, vOut, aOut} {
		if len(buf) < vecs {
			return
		}
	}
	if len(mass) < int(n) {
		return
	}

	xi := load3(xIn, id)
	var acc mgl32.Vec3
	for j := uint32(0); j < n; j++ {
		if j == id {
			continue
		}
		d := load3(xIn, j).Sub(xi)
		r2 := d.Dot(d) + eps*eps
		if r2 == 0 {
			// coincident particles exert no force on each other
			continue
		}
		acc = acc.Add(d.Mul(g * mass[j] / (r2 * float32(math.Sqrt(float64(r2))))))
	}

	v := load3(vIn, id).Add(acc.Mul(dt))
	x := xi.Add(v.Mul(dt))

	store3(aOut, id, acc)
	store3(vOut, id, v)
	store3(xOut, id, x)
}
