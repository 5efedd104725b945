package opengl

import (
	"particlesim/core"
	"particlesim/gpu"
	"particlesim/rendering/opengl/shaders"
)

const positionAttrib = 0

// PointRenderer draws a position buffer as GL points with the point program
type PointRenderer struct {
	dev     gpu.Device
	program *shaders.Program
	vao     uint32
}

// NewPointRenderer creates the vertex array the draws go through
func NewPointRenderer(dev gpu.Device, program *shaders.Program) *PointRenderer {
	return &PointRenderer{
		dev:     dev,
		program: program,
		vao:     dev.CreateVertexArray(),
	}
}

// SetProgram switches to a rebuilt point program
func (r *PointRenderer) SetProgram(program *shaders.Program) {
	r.program = program
}

func (r *PointRenderer) VertexArray() uint32 {
	return r.vao
}

// Draw renders count points from positionBuffer, three packed floats each.
// Bindings changed here are restored before it returns.
func (r *PointRenderer) Draw(positionBuffer uint32, count int) error {
	if r.vao == 0 {
		return core.ErrClosed
	}
	scope := gpu.NewScope(r.dev)
	scope.UseProgram(r.program.Handle)
	scope.BindVertexArray(r.vao)
	scope.BindArrayBuffer(positionBuffer)

	r.dev.VertexAttribPointer(positionAttrib, 3, 0)
	r.dev.EnableVertexAttrib(positionAttrib)
	r.dev.DrawPoints(0, int32(count))
	scope.Close()

	return core.CheckDevice(r.dev, "render")
}

// Release deletes the vertex array
func (r *PointRenderer) Release() {
	if r.vao != 0 {
		r.dev.DeleteVertexArray(r.vao)
		r.vao = 0
	}
}
