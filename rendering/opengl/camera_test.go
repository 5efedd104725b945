package opengl

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"particlesim/core"
	"particlesim/gpu"
	"particlesim/rendering/opengl/shaders"
)

var testLens = Lens{FovY: 65, Near: 0.01, Far: 40}

func TestProjectionMathIsPure(t *testing.T) {
	eye, target, up := mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}
	assert.Equal(t, LookAt(eye, target, up), LookAt(eye, target, up))
	assert.Equal(t, Perspective(65, 1, 0.01, 40), Perspective(65, 1, 0.01, 40))
}

func TestMVPRecomputeIsBitIdentical(t *testing.T) {
	a, err := NewCamera(testLens, 768, 768)
	require.NoError(t, err)
	b, err := NewCamera(testLens, 768, 768)
	require.NoError(t, err)

	first := a.MVP()
	a.SetModel(mgl32.Ident4())
	assert.Equal(t, first, a.MVP())
	assert.Equal(t, first, b.MVP())

	want := Perspective(65, 1, 0.01, 40).Mul4(LookAt(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}))
	assert.Equal(t, want, first)
}

func TestResizeChangesAspectOnly(t *testing.T) {
	c, err := NewCamera(testLens, 768, 768)
	require.NoError(t, err)
	view := c.View()
	before := c.MVP()

	require.NoError(t, c.OnResize(1600, 900))
	p := c.Projection()
	assert.InDelta(t, 1600.0/900.0, p[5]/p[0], 1e-5)
	assert.Equal(t, view, c.View())
	assert.NotEqual(t, before, c.MVP())
	assert.True(t, c.Dirty())
}

func TestResizeRejectsEmptyViewport(t *testing.T) {
	c, err := NewCamera(testLens, 800, 600)
	require.NoError(t, err)
	projection := c.Projection()

	for _, size := range [][2]int{{0, 600}, {800, 0}, {-1, -1}} {
		assert.ErrorIs(t, c.OnResize(size[0], size[1]), core.ErrInvalidViewport)
	}
	assert.Equal(t, projection, c.Projection())
	w, h := c.Viewport()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	_, err = NewCamera(testLens, 0, 10)
	assert.ErrorIs(t, err, core.ErrInvalidViewport)
}

func TestPublishOnlyWhenDirty(t *testing.T) {
	dev := gpu.NewSoftDevice(nil)
	pipeline := shaders.NewPipeline(dev, nil)
	prog, err := pipeline.Build(shaders.RolePoint, shaders.EmbeddedLoader{})
	require.NoError(t, err)

	c, err := NewCamera(testLens, 640, 480)
	require.NoError(t, err)

	assert.True(t, c.Publish(dev, prog))
	mvp := c.MVP()
	assert.Equal(t, mvp[:], dev.UniformValue(prog.Handle, MVPUniform))
	assert.Zero(t, dev.CurrentProgram(), "binding restored")

	assert.False(t, c.Publish(dev, prog))

	require.NoError(t, c.OnResize(480, 640))
	assert.True(t, c.Publish(dev, prog))
	mvp = c.MVP()
	assert.Equal(t, mvp[:], dev.UniformValue(prog.Handle, MVPUniform))

	c.Invalidate()
	assert.True(t, c.Publish(dev, prog))
	assert.Empty(t, gpu.DrainErrors(dev))
}
