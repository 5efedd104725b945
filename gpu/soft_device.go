package gpu

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"
)

// Kernel is the CPU body of a compute program. It is called once for every
// global invocation id of a dispatch.
type Kernel func(inv *Invocation, id uint32)

var (
	versionDirective = regexp.MustCompile(`(?m)^\s*#version\s+\d+`)
	mainFunction     = regexp.MustCompile(`void\s+main\s*\(\s*\)`)
	uniformDecl      = regexp.MustCompile(`(?m)^\s*uniform\s+\w+\s+(\w+)\s*;`)
	localSizeDecl    = regexp.MustCompile(`local_size_([xyz])\s*=\s*(\d+)`)
)

type softShader struct {
	stage     Stage
	compiled  bool
	uniforms  []string
	localSize [3]uint32
}

type uniformValue struct {
	floats []float32
	uint   uint32
}

type softProgram struct {
	shaders   []uint32
	linked    bool
	compute   bool
	locations map[string]int32
	values    map[int32]uniformValue
	localSize [3]uint32
}

type softBuffer struct {
	data []float32
	// pending holds compute writes that are not visible until a barrier
	pending []float32
}

type vertexAttrib struct {
	enabled bool
	buffer  uint32
	size    int32
	stride  int32
}

type softVAO struct {
	attribs map[uint32]*vertexAttrib
}

// DrawCall records one DrawPoints call and the vertex data it fetched
type DrawCall struct {
	Program  uint32
	Buffer   uint32
	First    int32
	Count    int32
	Size     int32
	Stride   int32
	Vertices []float32
	Stale    bool
}

// SoftState is the fixed-function state of a SoftDevice
type SoftState struct {
	Viewport   [4]int32
	ClearColor [4]float32
	DepthTest  bool
	PointSize  float32
}

// SoftStats counts live objects on a SoftDevice
type SoftStats struct {
	Shaders      int
	Programs     int
	Buffers      int
	VertexArrays int
}

// SoftDevice implements Device on the CPU. Shader "compilation" checks the
// structure of the source and reads its uniforms and local size, compute
// programs run the Kernel given at construction.
//
// Writes made by a dispatch stay pending until MemoryBarrier, a draw or a
// readback that touches a pending buffer sees the old contents and is
// counted in Hazards, the same failure a missing barrier causes on hardware.
type SoftDevice struct {
	kernel Kernel

	// MaxBufferFloats limits the size of a single buffer, 0 means unlimited
	MaxBufferFloats int

	// MaxWorkGroupCount is the advertised dispatch limit per dimension, 0
	// means DefaultMaxWorkGroupCount
	MaxWorkGroupCount uint32

	nextID   uint32
	shaders  map[uint32]*softShader
	programs map[uint32]*softProgram
	buffers  map[uint32]*softBuffer
	vaos     map[uint32]*softVAO

	program     uint32
	arrayBuffer uint32
	vao         uint32
	storage     map[uint32]uint32

	errors []uint32

	State          SoftState
	UniformQueries int
	Dispatches     [][3]uint32
	Barriers       int
	Hazards        int
	Draws          []DrawCall
	Clears         int
	Deletions      []string
}

// DefaultMaxWorkGroupCount is the minimum GL 4.3 guarantees per dimension
const DefaultMaxWorkGroupCount = 65535

func (d *SoftDevice) maxWorkGroups() uint32 {
	if d.MaxWorkGroupCount == 0 {
		return DefaultMaxWorkGroupCount
	}
	return d.MaxWorkGroupCount
}

// NewSoftDevice creates a software device running kernel for compute dispatches
func NewSoftDevice(kernel Kernel) *SoftDevice {
	return &SoftDevice{
		kernel:   kernel,
		shaders:  make(map[uint32]*softShader),
		programs: make(map[uint32]*softProgram),
		buffers:  make(map[uint32]*softBuffer),
		vaos:     make(map[uint32]*softVAO),
		storage:  make(map[uint32]uint32),
		State:    SoftState{PointSize: 1},
	}
}

func (d *SoftDevice) newID() uint32 {
	d.nextID++
	return d.nextID
}

func (d *SoftDevice) raise(code uint32) {
	d.errors = append(d.errors, code)
}

// InjectError queues an error code as if the driver had raised it
func (d *SoftDevice) InjectError(code uint32) {
	d.raise(code)
}

func (d *SoftDevice) CreateShader(stage Stage) uint32 {
	if stage < StageVertex || stage > StageCompute {
		d.raise(InvalidEnum)
		return 0
	}
	id := d.newID()
	d.shaders[id] = &softShader{stage: stage}
	return id
}

func (d *SoftDevice) CompileShader(shader uint32, source string) (bool, string) {
	s, ok := d.shaders[shader]
	if !ok {
		d.raise(InvalidValue)
		return false, ""
	}
	s.compiled = false
	if !versionDirective.MatchString(source) {
		return false, "0:1(1): error: #version directive missing"
	}
	if !mainFunction.MatchString(source) {
		return false, fmt.Sprintf("0:1(1): error: %s shader does not define main()", s.stage)
	}

	s.uniforms = s.uniforms[:0]
	for _, m := range uniformDecl.FindAllStringSubmatch(source, -1) {
		s.uniforms = append(s.uniforms, m[1])
	}
	s.localSize = [3]uint32{}
	if s.stage == StageCompute {
		matches := localSizeDecl.FindAllStringSubmatch(source, -1)
		if len(matches) > 0 {
			s.localSize = [3]uint32{1, 1, 1}
		}
		for _, m := range matches {
			n, err := strconv.ParseUint(m[2], 10, 32)
			if err != nil || n == 0 {
				return false, fmt.Sprintf("0:1(1): error: invalid local_size_%s", m[1])
			}
			s.localSize[m[1][0]-'x'] = uint32(n)
		}
	}
	s.compiled = true
	return true, ""
}

func (d *SoftDevice) DeleteShader(shader uint32) {
	if _, ok := d.shaders[shader]; !ok {
		return
	}
	delete(d.shaders, shader)
	d.Deletions = append(d.Deletions, fmt.Sprintf("shader:%d", shader))
}

func (d *SoftDevice) CreateProgram() uint32 {
	id := d.newID()
	d.programs[id] = &softProgram{}
	return id
}

func (d *SoftDevice) AttachShader(program, shader uint32) {
	p, ok := d.programs[program]
	if !ok {
		d.raise(InvalidValue)
		return
	}
	if _, ok := d.shaders[shader]; !ok {
		d.raise(InvalidValue)
		return
	}
	for _, s := range p.shaders {
		if s == shader {
			d.raise(InvalidOperation)
			return
		}
	}
	p.shaders = append(p.shaders, shader)
}

func (d *SoftDevice) DetachShader(program, shader uint32) {
	p, ok := d.programs[program]
	if !ok {
		d.raise(InvalidValue)
		return
	}
	for i, s := range p.shaders {
		if s == shader {
			p.shaders = append(p.shaders[:i], p.shaders[i+1:]...)
			return
		}
	}
	d.raise(InvalidOperation)
}

func (d *SoftDevice) LinkProgram(program uint32) (bool, string) {
	p, ok := d.programs[program]
	if !ok {
		d.raise(InvalidValue)
		return false, ""
	}
	p.linked = false
	if len(p.shaders) == 0 {
		return false, "error: no shaders attached to the program"
	}

	var stages [3]int
	names := make(map[string]struct{})
	var localSize [3]uint32
	for _, id := range p.shaders {
		s, ok := d.shaders[id]
		if !ok || !s.compiled {
			return false, "error: linking with uncompiled/unspecialized shader"
		}
		stages[s.stage]++
		for _, u := range s.uniforms {
			names[u] = struct{}{}
		}
		if s.stage == StageCompute {
			localSize = s.localSize
		}
	}

	compute := stages[StageCompute] > 0
	switch {
	case compute && (stages[StageVertex] > 0 || stages[StageFragment] > 0):
		return false, "error: compute shaders may not be linked with other stages"
	case compute && localSize == [3]uint32{}:
		return false, "error: compute shader must contain a fixed local group size"
	case !compute && stages[StageVertex] == 0:
		return false, "error: program lacks a vertex shader"
	case !compute && stages[StageFragment] == 0:
		return false, "error: program lacks a fragment shader"
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	p.locations = make(map[string]int32, len(sorted))
	for i, n := range sorted {
		p.locations[n] = int32(i)
	}
	p.values = make(map[int32]uniformValue)
	p.compute = compute
	p.localSize = localSize
	p.linked = true
	return true, ""
}

func (d *SoftDevice) DeleteProgram(program uint32) {
	if _, ok := d.programs[program]; !ok {
		return
	}
	delete(d.programs, program)
	if d.program == program {
		d.program = 0
	}
	d.Deletions = append(d.Deletions, fmt.Sprintf("program:%d", program))
}

func (d *SoftDevice) UseProgram(program uint32) {
	if program != 0 {
		p, ok := d.programs[program]
		if !ok || !p.linked {
			d.raise(InvalidOperation)
			return
		}
	}
	d.program = program
}

func (d *SoftDevice) CurrentProgram() uint32 {
	return d.program
}

func (d *SoftDevice) UniformLocation(program uint32, name string) int32 {
	d.UniformQueries++
	p, ok := d.programs[program]
	if !ok || !p.linked {
		d.raise(InvalidOperation)
		return -1
	}
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	return -1
}

// current returns the bound program for a uniform upload, false when the
// upload must be dropped
func (d *SoftDevice) current(location int32) (*softProgram, bool) {
	if d.program == 0 {
		d.raise(InvalidOperation)
		return nil, false
	}
	if location == -1 {
		return nil, false
	}
	p := d.programs[d.program]
	if location < 0 || int(location) >= len(p.locations) {
		d.raise(InvalidOperation)
		return nil, false
	}
	return p, true
}

func (d *SoftDevice) Uniform1f(location int32, v float32) {
	if p, ok := d.current(location); ok {
		p.values[location] = uniformValue{floats: []float32{v}}
	}
}

func (d *SoftDevice) Uniform1ui(location int32, v uint32) {
	if p, ok := d.current(location); ok {
		p.values[location] = uniformValue{uint: v}
	}
}

func (d *SoftDevice) UniformMatrix4f(location int32, m mgl32.Mat4) {
	if p, ok := d.current(location); ok {
		values := make([]float32, 16)
		copy(values, m[:])
		p.values[location] = uniformValue{floats: values}
	}
}

// UniformValue returns the float data last uploaded to a uniform
func (d *SoftDevice) UniformValue(program uint32, name string) []float32 {
	p, ok := d.programs[program]
	if !ok {
		return nil
	}
	loc, ok := p.locations[name]
	if !ok {
		return nil
	}
	return p.values[loc].floats
}

func (d *SoftDevice) WorkGroupSize(program uint32) [3]uint32 {
	p, ok := d.programs[program]
	if !ok || !p.linked || !p.compute {
		d.raise(InvalidOperation)
		return [3]uint32{}
	}
	return p.localSize
}

func (d *SoftDevice) CreateBuffer() uint32 {
	id := d.newID()
	d.buffers[id] = &softBuffer{}
	return id
}

func (d *SoftDevice) BufferData(buffer uint32, data []float32) {
	b, ok := d.buffers[buffer]
	if !ok {
		d.raise(InvalidOperation)
		return
	}
	if d.MaxBufferFloats > 0 && len(data) > d.MaxBufferFloats {
		d.raise(OutOfMemory)
		return
	}
	b.data = append([]float32(nil), data...)
	b.pending = nil
}

func (d *SoftDevice) ReadBuffer(buffer uint32, dst []float32) {
	b, ok := d.buffers[buffer]
	if !ok {
		d.raise(InvalidOperation)
		return
	}
	if b.pending != nil {
		d.Hazards++
	}
	if len(dst) > len(b.data) {
		d.raise(InvalidValue)
		return
	}
	copy(dst, b.data)
}

// Buffer returns a copy of the visible contents of a buffer
func (d *SoftDevice) Buffer(buffer uint32) []float32 {
	b, ok := d.buffers[buffer]
	if !ok {
		return nil
	}
	return append([]float32(nil), b.data...)
}

func (d *SoftDevice) DeleteBuffer(buffer uint32) {
	if _, ok := d.buffers[buffer]; !ok {
		return
	}
	delete(d.buffers, buffer)
	if d.arrayBuffer == buffer {
		d.arrayBuffer = 0
	}
	for index, bound := range d.storage {
		if bound == buffer {
			delete(d.storage, index)
		}
	}
	d.Deletions = append(d.Deletions, fmt.Sprintf("buffer:%d", buffer))
}

func (d *SoftDevice) BindArrayBuffer(buffer uint32) {
	if _, ok := d.buffers[buffer]; buffer != 0 && !ok {
		d.raise(InvalidOperation)
		return
	}
	d.arrayBuffer = buffer
}

func (d *SoftDevice) CurrentArrayBuffer() uint32 {
	return d.arrayBuffer
}

func (d *SoftDevice) BindStorageBuffer(index, buffer uint32) {
	if buffer == 0 {
		delete(d.storage, index)
		return
	}
	if _, ok := d.buffers[buffer]; !ok {
		d.raise(InvalidOperation)
		return
	}
	d.storage[index] = buffer
}

func (d *SoftDevice) StorageBinding(index uint32) uint32 {
	return d.storage[index]
}

func (d *SoftDevice) CreateVertexArray() uint32 {
	id := d.newID()
	d.vaos[id] = &softVAO{attribs: make(map[uint32]*vertexAttrib)}
	return id
}

func (d *SoftDevice) BindVertexArray(vao uint32) {
	if _, ok := d.vaos[vao]; vao != 0 && !ok {
		d.raise(InvalidOperation)
		return
	}
	d.vao = vao
}

func (d *SoftDevice) CurrentVertexArray() uint32 {
	return d.vao
}

func (d *SoftDevice) DeleteVertexArray(vao uint32) {
	if _, ok := d.vaos[vao]; !ok {
		return
	}
	delete(d.vaos, vao)
	if d.vao == vao {
		d.vao = 0
	}
	d.Deletions = append(d.Deletions, fmt.Sprintf("vao:%d", vao))
}

func (d *SoftDevice) attrib(index uint32) *vertexAttrib {
	v, ok := d.vaos[d.vao]
	if !ok {
		d.raise(InvalidOperation)
		return nil
	}
	a, ok := v.attribs[index]
	if !ok {
		a = &vertexAttrib{}
		v.attribs[index] = a
	}
	return a
}

func (d *SoftDevice) EnableVertexAttrib(index uint32) {
	if a := d.attrib(index); a != nil {
		a.enabled = true
	}
}

func (d *SoftDevice) DisableVertexAttrib(index uint32) {
	if a := d.attrib(index); a != nil {
		a.enabled = false
	}
}

func (d *SoftDevice) VertexAttribPointer(index uint32, size, stride int32) {
	if size < 1 || size > 4 || stride < 0 {
		d.raise(InvalidValue)
		return
	}
	if d.arrayBuffer == 0 {
		d.raise(InvalidOperation)
		return
	}
	if a := d.attrib(index); a != nil {
		a.buffer = d.arrayBuffer
		a.size = size
		a.stride = stride
	}
}

func (d *SoftDevice) DispatchCompute(x, y, z uint32) {
	p, ok := d.programs[d.program]
	if !ok || !p.compute {
		d.raise(InvalidOperation)
		return
	}
	if limit := d.maxWorkGroups(); x > limit || y > limit || z > limit {
		d.raise(InvalidValue)
		return
	}
	d.Dispatches = append(d.Dispatches, [3]uint32{x, y, z})
	if d.kernel == nil || x == 0 || y == 0 || z == 0 {
		return
	}

	inv := &Invocation{
		dev:     d,
		program: p,
		writes:  make(map[uint32][]float32),
		stale:   make(map[uint32]bool),
	}
	for _, id := range d.storage {
		if b := d.buffers[id]; b != nil && b.pending != nil {
			inv.stale[id] = true
		}
	}

	total := x * p.localSize[0] * y * p.localSize[1] * z * p.localSize[2]
	for id := uint32(0); id < total; id++ {
		d.kernel(inv, id)
	}

	for id, written := range inv.writes {
		d.buffers[id].pending = written
	}
}

func (d *SoftDevice) MemoryBarrier(bits uint32) {
	d.Barriers++
	if bits&(BarrierVertexAttribArray|BarrierShaderStorage|BarrierBufferUpdate) == 0 {
		return
	}
	for _, b := range d.buffers {
		if b.pending != nil {
			b.data = b.pending
			b.pending = nil
		}
	}
}

func (d *SoftDevice) DrawPoints(first, count int32) {
	p, ok := d.programs[d.program]
	if !ok || p.compute {
		d.raise(InvalidOperation)
		return
	}
	v, ok := d.vaos[d.vao]
	if !ok {
		d.raise(InvalidOperation)
		return
	}
	if first < 0 || count < 0 {
		d.raise(InvalidValue)
		return
	}

	call := DrawCall{Program: d.program, First: first, Count: count}
	a := v.attribs[0]
	if a != nil && a.enabled {
		b, ok := d.buffers[a.buffer]
		if !ok {
			d.raise(InvalidOperation)
			return
		}
		step := a.size
		if a.stride != 0 {
			step = a.stride / 4
		}
		end := int((first+count-1)*step + a.size)
		if count > 0 && end > len(b.data) {
			d.raise(InvalidOperation)
			return
		}
		if b.pending != nil {
			d.Hazards++
			call.Stale = true
		}
		call.Buffer = a.buffer
		call.Size = a.size
		call.Stride = a.stride
		for i := int32(0); i < count; i++ {
			start := (first + i) * step
			call.Vertices = append(call.Vertices, b.data[start:start+a.size]...)
		}
	}
	d.Draws = append(d.Draws, call)
}

func (d *SoftDevice) Viewport(x, y, width, height int32) {
	if width < 0 || height < 0 {
		d.raise(InvalidValue)
		return
	}
	d.State.Viewport = [4]int32{x, y, width, height}
}

func (d *SoftDevice) ClearColor(r, g, b, a float32) {
	d.State.ClearColor = [4]float32{r, g, b, a}
}

func (d *SoftDevice) Clear() {
	d.Clears++
}

func (d *SoftDevice) EnableDepthTest() {
	d.State.DepthTest = true
}

func (d *SoftDevice) PointSize(size float32) {
	if size <= 0 {
		d.raise(InvalidValue)
		return
	}
	d.State.PointSize = size
}

func (d *SoftDevice) Error() uint32 {
	if len(d.errors) == 0 {
		return NoError
	}
	code := d.errors[0]
	d.errors = d.errors[1:]
	return code
}

func (d *SoftDevice) Info() DeviceInfo {
	groups := int32(d.maxWorkGroups())
	return DeviceInfo{
		Vendor:                   "particlesim",
		Renderer:                 "software",
		Version:                  "4.3 (software)",
		ShadingLanguage:          "4.30",
		MaxUniformBlockSize:      16384,
		MaxVertexUniformBlocks:   14,
		MaxFragmentUniformBlocks: 14,
		MaxStorageBlockSize:      1 << 27,
		MaxComputeWorkGroupCount: [3]int32{groups, groups, groups},
		MaxComputeWorkGroupSize:  [3]int32{1024, 1024, 64},
		MaxComputeInvocations:    1024,
	}
}

// Live counts the objects that have not been deleted
func (d *SoftDevice) Live() SoftStats {
	return SoftStats{
		Shaders:      len(d.shaders),
		Programs:     len(d.programs),
		Buffers:      len(d.buffers),
		VertexArrays: len(d.vaos),
	}
}

// Invocation gives a Kernel access to the storage buffers and uniforms of
// the dispatch it runs in
type Invocation struct {
	dev     *SoftDevice
	program *softProgram
	writes  map[uint32][]float32
	stale   map[uint32]bool
}

// Load returns the visible contents of the buffer at a storage binding
func (inv *Invocation) Load(binding uint32) []float32 {
	id, ok := inv.dev.storage[binding]
	if !ok {
		return nil
	}
	if inv.stale[id] {
		inv.dev.Hazards++
		delete(inv.stale, id)
	}
	return inv.dev.buffers[id].data
}

// Store returns the write view of the buffer at a storage binding. Values
// written here become visible after the next memory barrier.
func (inv *Invocation) Store(binding uint32) []float32 {
	id, ok := inv.dev.storage[binding]
	if !ok {
		return nil
	}
	if w, ok := inv.writes[id]; ok {
		return w
	}
	b := inv.dev.buffers[id]
	src := b.data
	if b.pending != nil {
		src = b.pending
	}
	w := append([]float32(nil), src...)
	inv.writes[id] = w
	return w
}

// Float returns a float uniform of the running program
func (inv *Invocation) Float(name string) float32 {
	loc, ok := inv.program.locations[name]
	if !ok {
		return 0
	}
	if v := inv.program.values[loc].floats; len(v) > 0 {
		return v[0]
	}
	return 0
}

// Uint returns an unsigned uniform of the running program
func (inv *Invocation) Uint(name string) uint32 {
	loc, ok := inv.program.locations[name]
	if !ok {
		return 0
	}
	return inv.program.values[loc].uint
}
