package gpu

// Scope changes bindings on a device and puts the previous ones back on
// Close, so callers never rely on what happened to be bound before them.
//
//	scope := gpu.NewScope(dev)
//	defer scope.Close()
//	scope.UseProgram(program)
type Scope struct {
	dev      Device
	restores []func()
}

// NewScope starts a binding scope on dev
func NewScope(dev Device) *Scope {
	return &Scope{dev: dev}
}

// UseProgram makes program current until Close
func (s *Scope) UseProgram(program uint32) {
	prev := s.dev.CurrentProgram()
	s.restores = append(s.restores, func() { s.dev.UseProgram(prev) })
	s.dev.UseProgram(program)
}

// BindArrayBuffer binds buffer to the array target until Close
func (s *Scope) BindArrayBuffer(buffer uint32) {
	prev := s.dev.CurrentArrayBuffer()
	s.restores = append(s.restores, func() { s.dev.BindArrayBuffer(prev) })
	s.dev.BindArrayBuffer(buffer)
}

// BindVertexArray binds vao until Close
func (s *Scope) BindVertexArray(vao uint32) {
	prev := s.dev.CurrentVertexArray()
	s.restores = append(s.restores, func() { s.dev.BindVertexArray(prev) })
	s.dev.BindVertexArray(vao)
}

// BindStorageBuffer binds buffer to a storage binding index until Close
func (s *Scope) BindStorageBuffer(index, buffer uint32) {
	prev := s.dev.StorageBinding(index)
	s.restores = append(s.restores, func() { s.dev.BindStorageBuffer(index, prev) })
	s.dev.BindStorageBuffer(index, buffer)
}

// Close restores bindings in reverse order. Calling it twice is a no-op.
func (s *Scope) Close() {
	for i := len(s.restores) - 1; i >= 0; i-- {
		s.restores[i]()
	}
	s.restores = nil
}
