package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeRestoresBindings(t *testing.T) {
	d := NewSoftDevice(nil)
	program := buildProgram(t, d, map[Stage]string{StageCompute: testCompute})
	outer := d.CreateBuffer()
	inner := d.CreateBuffer()
	vao := d.CreateVertexArray()

	d.BindArrayBuffer(outer)
	d.BindStorageBuffer(1, outer)

	scope := NewScope(d)
	scope.UseProgram(program)
	scope.BindArrayBuffer(inner)
	scope.BindVertexArray(vao)
	scope.BindStorageBuffer(1, inner)

	assert.Equal(t, program, d.CurrentProgram())
	assert.Equal(t, inner, d.CurrentArrayBuffer())
	assert.Equal(t, vao, d.CurrentVertexArray())
	assert.Equal(t, inner, d.StorageBinding(1))

	scope.Close()
	assert.Zero(t, d.CurrentProgram())
	assert.Equal(t, outer, d.CurrentArrayBuffer())
	assert.Zero(t, d.CurrentVertexArray())
	assert.Equal(t, outer, d.StorageBinding(1))

	scope.Close()
	assert.Equal(t, outer, d.CurrentArrayBuffer())
	assert.Empty(t, DrainErrors(d))
}
