package opengl

import (
	"github.com/go-gl/mathgl/mgl32"

	"particlesim/core"
	"particlesim/gpu"
	"particlesim/rendering/opengl/shaders"
)

// MVPUniform is the name of the matrix uniform of the point program
const MVPUniform = "MVP"

// LookAt builds a view matrix
func LookAt(eye, target, up mgl32.Vec3) mgl32.Mat4 {
	return mgl32.LookAtV(eye, target, up)
}

// Perspective builds a projection matrix from a vertical field of view in degrees
func Perspective(fovYDeg, aspect, near, far float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(fovYDeg), aspect, near, far)
}

// Lens holds the projection parameters that do not depend on the viewport
type Lens struct {
	FovY float32
	Near float32
	Far  float32
}

// Camera keeps the model, view and projection matrices and the product the
// point program consumes. It owns no device resources.
type Camera struct {
	lens          Lens
	eye           mgl32.Vec3
	target        mgl32.Vec3
	up            mgl32.Vec3
	width, height int

	model      mgl32.Mat4
	view       mgl32.Mat4
	projection mgl32.Mat4
	mvp        mgl32.Mat4

	stale bool // mvp needs recomputing
	dirty bool // mvp not yet uploaded
}

// NewCamera creates a camera at (0, 0, 10) looking at the origin
func NewCamera(lens Lens, width, height int) (*Camera, error) {
	c := &Camera{lens: lens, model: mgl32.Ident4()}
	c.SetView(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	if err := c.OnResize(width, height); err != nil {
		return nil, err
	}
	return c, nil
}

// SetView moves the camera
func (c *Camera) SetView(eye, target, up mgl32.Vec3) {
	c.eye, c.target, c.up = eye, target, up
	c.view = LookAt(eye, target, up)
	c.invalidate()
}

// SetModel replaces the model transform
func (c *Camera) SetModel(m mgl32.Mat4) {
	c.model = m
	c.invalidate()
}

// OnResize recomputes the projection for a new viewport. The view matrix is
// left alone.
func (c *Camera) OnResize(width, height int) error {
	if width <= 0 || height <= 0 {
		return core.ErrInvalidViewport
	}
	c.width, c.height = width, height
	c.projection = Perspective(c.lens.FovY, float32(width)/float32(height), c.lens.Near, c.lens.Far)
	c.invalidate()
	return nil
}

func (c *Camera) invalidate() {
	c.stale = true
	c.dirty = true
}

// Invalidate forces the next Publish to upload, used after the program changed
func (c *Camera) Invalidate() {
	c.dirty = true
}

func (c *Camera) Eye() mgl32.Vec3 { return c.eye }
func (c *Camera) Viewport() (int, int) { return c.width, c.height }
func (c *Camera) View() mgl32.Mat4 { return c.view }
func (c *Camera) Projection() mgl32.Mat4 { return c.projection }
func (c *Camera) Model() mgl32.Mat4 { return c.model }
func (c *Camera) Dirty() bool { return c.dirty }
func (c *Camera) Aspect() float32 { return float32(c.width) / float32(c.height) }

// MVP returns projection * view * model
func (c *Camera) MVP() mgl32.Mat4 {
	if c.stale {
		c.mvp = c.projection.Mul4(c.view).Mul4(c.model)
		c.stale = false
	}
	return c.mvp
}

// Publish uploads MVP to program if it changed since the last upload and
// reports whether it did. The previous program binding is restored.
func (c *Camera) Publish(dev gpu.Device, program *shaders.Program) bool {
	if !c.dirty {
		return false
	}
	scope := gpu.NewScope(dev)
	defer scope.Close()

	scope.UseProgram(program.Handle)
	dev.UniformMatrix4f(program.UniformLocation(MVPUniform), c.MVP())
	c.dirty = false
	return true
}
