package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"particlesim/gpu"
)

// Lifecycle errors returned by the frame engine.
var (
	// ErrNotInitialized is returned when a frame or resize arrives before Init.
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("engine already initialized")
	// ErrClosed is returned by any call after Deinit.
	ErrClosed = errors.New("engine closed")
	// ErrInvalidViewport is returned for a resize with a non-positive dimension.
	ErrInvalidViewport = errors.New("invalid viewport size")
)

// MaxParticles bounds the particle count accepted by Initialize
const MaxParticles = 1 << 24

// EnvironmentError reports a failure to set up the window, the context or the
// function loader
type EnvironmentError struct {
	Op  string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment: %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// ResourceError reports a failed allocation on the host or the device
type ResourceError struct {
	Resource string
	Bytes    int
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource: allocating %s (%d bytes): %v", e.Resource, e.Bytes, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// ShaderCompileError carries the full compiler log of a failed stage
type ShaderCompileError struct {
	Program string
	Stage   gpu.Stage
	Log     string
}

func (e *ShaderCompileError) Error() string {
	return fmt.Sprintf("shader: compiling %s %s stage:\n%s", e.Program, e.Stage, e.Log)
}

// ShaderLinkError carries the full linker log of a failed program
type ShaderLinkError struct {
	Program string
	Log     string
}

func (e *ShaderLinkError) Error() string {
	return fmt.Sprintf("shader: linking %s program:\n%s", e.Program, e.Log)
}

// RuntimeGPUError reports the error codes the device raised during a frame
// phase ("compute" or "render")
type RuntimeGPUError struct {
	Phase string
	Codes []uint32
}

func (e *RuntimeGPUError) Error() string {
	names := make([]string, len(e.Codes))
	for i, code := range e.Codes {
		names[i] = gpu.ErrorString(code)
	}
	return fmt.Sprintf("gpu: %s phase: %s", e.Phase, strings.Join(names, ", "))
}

// CheckDevice drains the device error queue and returns a RuntimeGPUError
// for phase when anything was pending
func CheckDevice(dev gpu.Device, phase string) error {
	if codes := gpu.DrainErrors(dev); len(codes) > 0 {
		return &RuntimeGPUError{Phase: phase, Codes: codes}
	}
	return nil
}
