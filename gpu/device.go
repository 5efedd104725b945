package gpu

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Stage identifies a shader stage
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return "unknown"
}

// Extension returns the file extension used for sources of this stage
func (s Stage) Extension() string {
	switch s {
	case StageVertex:
		return ".vert"
	case StageFragment:
		return ".frag"
	case StageCompute:
		return ".comp"
	}
	return ""
}

// Memory barrier bits, same values as the GL enums
const (
	BarrierVertexAttribArray uint32 = 0x00000001
	BarrierBufferUpdate      uint32 = 0x00000200
	BarrierShaderStorage     uint32 = 0x00002000
	BarrierAll               uint32 = 0xFFFFFFFF
)

// Device is the slice of the graphics API the frame engine needs.
// GLDevice forwards to OpenGL 4.3, SoftDevice runs everything on the CPU.
//
// A Device is bound to the thread that owns its context and must not be
// shared across goroutines.
type Device interface {
	// Shaders and programs
	CreateShader(stage Stage) uint32
	CompileShader(shader uint32, source string) (ok bool, log string)
	DeleteShader(shader uint32)
	CreateProgram() uint32
	AttachShader(program, shader uint32)
	DetachShader(program, shader uint32)
	LinkProgram(program uint32) (ok bool, log string)
	DeleteProgram(program uint32)
	UseProgram(program uint32)
	CurrentProgram() uint32
	UniformLocation(program uint32, name string) int32
	Uniform1f(location int32, v float32)
	Uniform1ui(location int32, v uint32)
	UniformMatrix4f(location int32, m mgl32.Mat4)
	WorkGroupSize(program uint32) [3]uint32

	// Buffers
	CreateBuffer() uint32
	BufferData(buffer uint32, data []float32)
	ReadBuffer(buffer uint32, dst []float32)
	DeleteBuffer(buffer uint32)
	BindArrayBuffer(buffer uint32)
	CurrentArrayBuffer() uint32
	BindStorageBuffer(index, buffer uint32)
	StorageBinding(index uint32) uint32

	// Vertex arrays
	CreateVertexArray() uint32
	BindVertexArray(vao uint32)
	CurrentVertexArray() uint32
	DeleteVertexArray(vao uint32)
	EnableVertexAttrib(index uint32)
	DisableVertexAttrib(index uint32)
	VertexAttribPointer(index uint32, size, stride int32)

	// Work submission
	DispatchCompute(x, y, z uint32)
	MemoryBarrier(bits uint32)
	DrawPoints(first, count int32)

	// Fixed-function state
	Viewport(x, y, width, height int32)
	ClearColor(r, g, b, a float32)
	Clear()
	EnableDepthTest()
	PointSize(size float32)

	// Error returns the oldest pending error code, NoError when none
	Error() uint32
	Info() DeviceInfo
}
