package opengl

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"particlesim/core"
	"particlesim/gpu"
	"particlesim/rendering/opengl/shaders"
)

func newDrawFixture(t *testing.T, count int) (*gpu.SoftDevice, *PointRenderer, *core.Store) {
	t.Helper()
	dev := gpu.NewSoftDevice(nil)
	pipeline := shaders.NewPipeline(dev, nil)
	prog, err := pipeline.Build(shaders.RolePoint, shaders.EmbeddedLoader{})
	require.NoError(t, err)

	state, err := core.Initialize(count, core.Range{Min: -1, Max: 1}, core.Range{Min: 1, Max: 2}, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	store := core.NewStore(dev, state, true)
	require.NoError(t, store.Upload())

	return dev, NewPointRenderer(dev, prog), store
}

func TestPointRendererDraw(t *testing.T) {
	dev, r, store := newDrawFixture(t, 10)
	want := core.Flatten(store.State().Position)

	require.NoError(t, r.Draw(store.Front().Position, store.Count()))

	require.Len(t, dev.Draws, 1)
	call := dev.Draws[0]
	assert.Equal(t, int32(10), call.Count)
	assert.Equal(t, int32(3), call.Size)
	assert.Equal(t, int32(0), call.Stride)
	assert.Equal(t, store.Front().Position, call.Buffer)
	assert.Equal(t, want, call.Vertices)
	assert.False(t, call.Stale)

	assert.Zero(t, dev.CurrentProgram())
	assert.Zero(t, dev.CurrentVertexArray())
	assert.Zero(t, dev.CurrentArrayBuffer())
}

func TestPointRendererReportsDeviceErrors(t *testing.T) {
	_, r, store := newDrawFixture(t, 4)

	err := r.Draw(store.Front().Position, 5)
	var gpuErr *core.RuntimeGPUError
	require.True(t, errors.As(err, &gpuErr), "got %v", err)
	assert.Equal(t, "render", gpuErr.Phase)
	assert.Equal(t, []uint32{gpu.InvalidOperation}, gpuErr.Codes)
}

func TestPointRendererRelease(t *testing.T) {
	dev, r, store := newDrawFixture(t, 4)

	r.Release()
	r.Release()
	assert.Zero(t, dev.Live().VertexArrays)
	assert.ErrorIs(t, r.Draw(store.Front().Position, 4), core.ErrClosed)
}
