package gpu

import (
	"bytes"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCompute = `#version 430 core
layout(local_size_x = 4) in;
layout(std430, binding = 0) buffer Data { float data[]; };
uniform float scale;
void main() {
    data[gl_GlobalInvocationID.x] *= scale;
}
`

const testVertex = `#version 430 core
layout(location = 0) in vec3 vertex;
uniform mat4 MVP;
void main() { gl_Position = MVP * vec4(vertex, 1.0); }
`

const testFragment = `#version 430 core
out vec4 color;
void main() { color = vec4(1.0); }
`

// scaleKernel mirrors testCompute
func scaleKernel(inv *Invocation, id uint32) {
	in := inv.Load(0)
	if int(id) >= len(in) {
		return
	}
	inv.Store(0)[id] = in[id] * inv.Float("scale")
}

func buildProgram(t *testing.T, d *SoftDevice, sources map[Stage]string) uint32 {
	t.Helper()
	program := d.CreateProgram()
	for stage, src := range sources {
		shader := d.CreateShader(stage)
		ok, log := d.CompileShader(shader, src)
		require.True(t, ok, log)
		d.AttachShader(program, shader)
	}
	ok, log := d.LinkProgram(program)
	require.True(t, ok, log)
	return program
}

func TestSoftDeviceCompileFailures(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantLog string
	}{
		{"missing version", "void main() {}", "#version"},
		{"missing main", "#version 430 core\nvoid other() {}", "main()"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewSoftDevice(nil)
			shader := d.CreateShader(StageFragment)
			ok, log := d.CompileShader(shader, tc.source)
			assert.False(t, ok)
			assert.Contains(t, log, tc.wantLog)
		})
	}
}

func TestSoftDeviceLinkRules(t *testing.T) {
	d := NewSoftDevice(nil)

	vs := d.CreateShader(StageVertex)
	ok, _ := d.CompileShader(vs, testVertex)
	require.True(t, ok)

	program := d.CreateProgram()
	d.AttachShader(program, vs)
	ok, log := d.LinkProgram(program)
	assert.False(t, ok)
	assert.Contains(t, log, "fragment")

	cs := d.CreateShader(StageCompute)
	ok, _ = d.CompileShader(cs, testCompute)
	require.True(t, ok)
	d.AttachShader(program, cs)
	ok, log = d.LinkProgram(program)
	assert.False(t, ok)
	assert.Contains(t, log, "compute")
}

func TestSoftDeviceUniformsAndWorkGroupSize(t *testing.T) {
	d := NewSoftDevice(nil)
	program := buildProgram(t, d, map[Stage]string{StageCompute: testCompute})

	assert.Equal(t, [3]uint32{4, 1, 1}, d.WorkGroupSize(program))
	assert.Equal(t, int32(-1), d.UniformLocation(program, "missing"))

	loc := d.UniformLocation(program, "scale")
	require.GreaterOrEqual(t, loc, int32(0))

	d.UseProgram(program)
	d.Uniform1f(loc, 2.5)
	assert.Equal(t, []float32{2.5}, d.UniformValue(program, "scale"))
	assert.Equal(t, 2, d.UniformQueries)
	assert.Equal(t, NoError, d.Error())
}

func TestSoftDeviceComputeWritesNeedBarrier(t *testing.T) {
	d := NewSoftDevice(scaleKernel)
	program := buildProgram(t, d, map[Stage]string{StageCompute: testCompute})

	buffer := d.CreateBuffer()
	d.BufferData(buffer, []float32{1, 2, 3, 4, 5})
	d.BindStorageBuffer(0, buffer)

	d.UseProgram(program)
	d.Uniform1f(d.UniformLocation(program, "scale"), 2)
	d.DispatchCompute(2, 1, 1)

	assert.Equal(t, []float32{1, 2, 3, 4, 5}, d.Buffer(buffer), "writes hidden before barrier")

	d.MemoryBarrier(BarrierAll)
	assert.Equal(t, []float32{2, 4, 6, 8, 10}, d.Buffer(buffer))
	assert.Zero(t, d.Hazards)
	assert.Equal(t, [][3]uint32{{2, 1, 1}}, d.Dispatches)
}

func TestSoftDeviceDrawWithoutBarrierIsStale(t *testing.T) {
	d := NewSoftDevice(scaleKernel)
	compute := buildProgram(t, d, map[Stage]string{StageCompute: testCompute})
	points := buildProgram(t, d, map[Stage]string{StageVertex: testVertex, StageFragment: testFragment})

	buffer := d.CreateBuffer()
	d.BufferData(buffer, []float32{1, 1, 1, 2, 2, 2})
	d.BindStorageBuffer(0, buffer)

	d.UseProgram(compute)
	d.Uniform1f(d.UniformLocation(compute, "scale"), 3)
	d.DispatchCompute(2, 1, 1)

	vao := d.CreateVertexArray()
	d.BindVertexArray(vao)
	d.BindArrayBuffer(buffer)
	d.VertexAttribPointer(0, 3, 0)
	d.EnableVertexAttrib(0)
	d.UseProgram(points)
	d.DrawPoints(0, 2)

	require.Len(t, d.Draws, 1)
	assert.True(t, d.Draws[0].Stale)
	assert.Equal(t, 1, d.Hazards)
	assert.Equal(t, []float32{1, 1, 1, 2, 2, 2}, d.Draws[0].Vertices)

	d.MemoryBarrier(BarrierAll)
	d.DrawPoints(0, 2)
	require.Len(t, d.Draws, 2)
	assert.False(t, d.Draws[1].Stale)
	assert.Equal(t, []float32{3, 3, 3, 6, 6, 6}, d.Draws[1].Vertices)
}

func TestSoftDeviceDrawOutOfRange(t *testing.T) {
	d := NewSoftDevice(nil)
	points := buildProgram(t, d, map[Stage]string{StageVertex: testVertex, StageFragment: testFragment})

	buffer := d.CreateBuffer()
	d.BufferData(buffer, []float32{0, 0, 0})
	vao := d.CreateVertexArray()
	d.BindVertexArray(vao)
	d.BindArrayBuffer(buffer)
	d.VertexAttribPointer(0, 3, 0)
	d.EnableVertexAttrib(0)
	d.UseProgram(points)

	d.DrawPoints(0, 2)
	assert.Equal(t, []uint32{InvalidOperation}, DrainErrors(d))
	assert.Empty(t, d.Draws)
}

func TestSoftDeviceOutOfMemory(t *testing.T) {
	d := NewSoftDevice(nil)
	d.MaxBufferFloats = 4

	buffer := d.CreateBuffer()
	d.BufferData(buffer, make([]float32, 5))
	assert.Equal(t, OutOfMemory, d.Error())
	assert.Equal(t, NoError, d.Error())
}

func TestSoftDeviceMatrixUniform(t *testing.T) {
	d := NewSoftDevice(nil)
	points := buildProgram(t, d, map[Stage]string{StageVertex: testVertex, StageFragment: testFragment})

	d.UseProgram(points)
	m := mgl32.Translate3D(1, 2, 3)
	d.UniformMatrix4f(d.UniformLocation(points, "MVP"), m)
	assert.Equal(t, m[:], d.UniformValue(points, "MVP"))
}

func TestDrainErrors(t *testing.T) {
	d := NewSoftDevice(nil)
	assert.Empty(t, DrainErrors(d))

	d.InjectError(InvalidValue)
	d.InjectError(OutOfMemory)
	assert.Equal(t, []uint32{InvalidValue, OutOfMemory}, DrainErrors(d))
	assert.Equal(t, "out of memory", ErrorString(OutOfMemory))
	assert.Contains(t, ErrorString(0x1234), "unknown")
}

func TestDeviceInfoWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSoftDevice(nil).Info().WriteTable(&buf))
	assert.Contains(t, buf.String(), "GL_VENDOR")
	assert.Contains(t, buf.String(), "software")
	assert.Contains(t, buf.String(), "GL_MAX_VERTEX_UNIFORM_BLOCKS")
	assert.Contains(t, buf.String(), "GL_MAX_FRAGMENT_UNIFORM_BLOCKS")
	assert.Contains(t, buf.String(), "65535 x 65535 x 65535")
}

func TestMaxUniformMatrices(t *testing.T) {
	assert.Equal(t, int32(256), DeviceInfo{MaxUniformBlockSize: 16384}.MaxUniformMatrices())
}

func TestSoftDeviceDispatchLimit(t *testing.T) {
	d := NewSoftDevice(scaleKernel)
	d.MaxWorkGroupCount = 2
	assert.Equal(t, [3]int32{2, 2, 2}, d.Info().MaxComputeWorkGroupCount)

	compute := buildProgram(t, d, map[Stage]string{StageCompute: testCompute})
	d.UseProgram(compute)

	d.DispatchCompute(2, 1, 1)
	assert.Equal(t, NoError, d.Error())
	d.DispatchCompute(3, 1, 1)
	assert.Equal(t, InvalidValue, d.Error())
	assert.Len(t, d.Dispatches, 1)
}
