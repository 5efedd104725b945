package gpu

import (
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// GLDevice forwards every Device call to the current OpenGL 4.3 core context.
// gl.Init must have succeeded on the calling thread before it is used.
type GLDevice struct{}

// NewGLDevice returns a device bound to the current context
func NewGLDevice() *GLDevice {
	return &GLDevice{}
}

func glStage(stage Stage) uint32 {
	switch stage {
	case StageVertex:
		return gl.VERTEX_SHADER
	case StageFragment:
		return gl.FRAGMENT_SHADER
	case StageCompute:
		return gl.COMPUTE_SHADER
	}
	return 0
}

func (d *GLDevice) CreateShader(stage Stage) uint32 {
	return gl.CreateShader(glStage(stage))
}

func (d *GLDevice) CompileShader(shader uint32, source string) (bool, string) {
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		if logLength <= 0 {
			return false, ""
		}
		log := make([]byte, logLength)
		gl.GetShaderInfoLog(shader, logLength, nil, &log[0])
		return false, strings.TrimRight(string(log), "\x00")
	}
	return true, ""
}

func (d *GLDevice) DeleteShader(shader uint32) {
	gl.DeleteShader(shader)
}

func (d *GLDevice) CreateProgram() uint32 {
	return gl.CreateProgram()
}

func (d *GLDevice) AttachShader(program, shader uint32) {
	gl.AttachShader(program, shader)
}

func (d *GLDevice) DetachShader(program, shader uint32) {
	gl.DetachShader(program, shader)
}

func (d *GLDevice) LinkProgram(program uint32) (bool, string) {
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		if logLength <= 0 {
			return false, ""
		}
		log := make([]byte, logLength)
		gl.GetProgramInfoLog(program, logLength, nil, &log[0])
		return false, strings.TrimRight(string(log), "\x00")
	}
	return true, ""
}

func (d *GLDevice) DeleteProgram(program uint32) {
	gl.DeleteProgram(program)
}

func (d *GLDevice) UseProgram(program uint32) {
	gl.UseProgram(program)
}

func (d *GLDevice) CurrentProgram() uint32 {
	var current int32
	gl.GetIntegerv(gl.CURRENT_PROGRAM, &current)
	return uint32(current)
}

func (d *GLDevice) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (d *GLDevice) Uniform1f(location int32, v float32) {
	gl.Uniform1f(location, v)
}

func (d *GLDevice) Uniform1ui(location int32, v uint32) {
	gl.Uniform1ui(location, v)
}

func (d *GLDevice) UniformMatrix4f(location int32, m mgl32.Mat4) {
	gl.UniformMatrix4fv(location, 1, false, &m[0])
}

func (d *GLDevice) WorkGroupSize(program uint32) [3]uint32 {
	var size [3]int32
	gl.GetProgramiv(program, gl.COMPUTE_WORK_GROUP_SIZE, &size[0])
	return [3]uint32{uint32(size[0]), uint32(size[1]), uint32(size[2])}
}

// BufferData uses the copy-write target so the array and storage bindings
// seen by the rest of the engine are left alone
func (d *GLDevice) BufferData(buffer uint32, data []float32) {
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, buffer)
	if len(data) > 0 {
		gl.BufferData(gl.COPY_WRITE_BUFFER, len(data)*4, gl.Ptr(data), gl.DYNAMIC_COPY)
	} else {
		gl.BufferData(gl.COPY_WRITE_BUFFER, 0, nil, gl.DYNAMIC_COPY)
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
}

func (d *GLDevice) ReadBuffer(buffer uint32, dst []float32) {
	if len(dst) == 0 {
		return
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, buffer)
	gl.GetBufferSubData(gl.COPY_READ_BUFFER, 0, len(dst)*4, unsafe.Pointer(&dst[0]))
	gl.BindBuffer(gl.COPY_READ_BUFFER, 0)
}

func (d *GLDevice) CreateBuffer() uint32 {
	var buffer uint32
	gl.GenBuffers(1, &buffer)
	return buffer
}

func (d *GLDevice) DeleteBuffer(buffer uint32) {
	gl.DeleteBuffers(1, &buffer)
}

func (d *GLDevice) BindArrayBuffer(buffer uint32) {
	gl.BindBuffer(gl.ARRAY_BUFFER, buffer)
}

func (d *GLDevice) CurrentArrayBuffer() uint32 {
	var current int32
	gl.GetIntegerv(gl.ARRAY_BUFFER_BINDING, &current)
	return uint32(current)
}

func (d *GLDevice) BindStorageBuffer(index, buffer uint32) {
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, index, buffer)
}

func (d *GLDevice) StorageBinding(index uint32) uint32 {
	var current int32
	gl.GetIntegeri_v(gl.SHADER_STORAGE_BUFFER_BINDING, index, &current)
	return uint32(current)
}

func (d *GLDevice) CreateVertexArray() uint32 {
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	return vao
}

func (d *GLDevice) BindVertexArray(vao uint32) {
	gl.BindVertexArray(vao)
}

func (d *GLDevice) CurrentVertexArray() uint32 {
	var current int32
	gl.GetIntegerv(gl.VERTEX_ARRAY_BINDING, &current)
	return uint32(current)
}

func (d *GLDevice) DeleteVertexArray(vao uint32) {
	gl.DeleteVertexArrays(1, &vao)
}

func (d *GLDevice) EnableVertexAttrib(index uint32) {
	gl.EnableVertexAttribArray(index)
}

func (d *GLDevice) DisableVertexAttrib(index uint32) {
	gl.DisableVertexAttribArray(index)
}

func (d *GLDevice) VertexAttribPointer(index uint32, size, stride int32) {
	gl.VertexAttribPointer(index, size, gl.FLOAT, false, stride, gl.PtrOffset(0))
}

func (d *GLDevice) DispatchCompute(x, y, z uint32) {
	gl.DispatchCompute(x, y, z)
}

func (d *GLDevice) MemoryBarrier(bits uint32) {
	gl.MemoryBarrier(bits)
}

func (d *GLDevice) DrawPoints(first, count int32) {
	gl.DrawArrays(gl.POINTS, first, count)
}

func (d *GLDevice) Viewport(x, y, width, height int32) {
	gl.Viewport(x, y, width, height)
}

func (d *GLDevice) ClearColor(r, g, b, a float32) {
	gl.ClearColor(r, g, b, a)
}

func (d *GLDevice) Clear() {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

func (d *GLDevice) EnableDepthTest() {
	gl.Enable(gl.DEPTH_TEST)
}

func (d *GLDevice) PointSize(size float32) {
	gl.PointSize(size)
}

func (d *GLDevice) Error() uint32 {
	return gl.GetError()
}

// Info queries strings and compute limits from the driver
func (d *GLDevice) Info() DeviceInfo {
	info := DeviceInfo{
		Vendor:          gl.GoStr(gl.GetString(gl.VENDOR)),
		Renderer:        gl.GoStr(gl.GetString(gl.RENDERER)),
		Version:         gl.GoStr(gl.GetString(gl.VERSION)),
		ShadingLanguage: gl.GoStr(gl.GetString(gl.SHADING_LANGUAGE_VERSION)),
	}
	gl.GetIntegerv(gl.MAX_UNIFORM_BLOCK_SIZE, &info.MaxUniformBlockSize)
	gl.GetIntegerv(gl.MAX_VERTEX_UNIFORM_BLOCKS, &info.MaxVertexUniformBlocks)
	gl.GetIntegerv(gl.MAX_FRAGMENT_UNIFORM_BLOCKS, &info.MaxFragmentUniformBlocks)
	gl.GetIntegerv(gl.MAX_SHADER_STORAGE_BLOCK_SIZE, &info.MaxStorageBlockSize)
	gl.GetIntegerv(gl.MAX_COMPUTE_WORK_GROUP_INVOCATIONS, &info.MaxComputeInvocations)
	for i := uint32(0); i < 3; i++ {
		gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_COUNT, i, &info.MaxComputeWorkGroupCount[i])
		gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_SIZE, i, &info.MaxComputeWorkGroupSize[i])
	}
	return info
}
