package gpu

import "fmt"

// Error codes reported by Device.Error, same values as glGetError
const (
	NoError                     uint32 = 0
	InvalidEnum                 uint32 = 0x0500
	InvalidValue                uint32 = 0x0501
	InvalidOperation            uint32 = 0x0502
	StackOverflow               uint32 = 0x0503
	StackUnderflow              uint32 = 0x0504
	OutOfMemory                 uint32 = 0x0505
	InvalidFramebufferOperation uint32 = 0x0506
)

// maxDrainedErrors bounds DrainErrors when a broken driver never clears its flags
const maxDrainedErrors = 32

// ErrorString returns a readable name for an error code
func ErrorString(code uint32) string {
	switch code {
	case NoError:
		return "no error"
	case InvalidEnum:
		return "invalid enumerant"
	case InvalidValue:
		return "invalid value"
	case InvalidOperation:
		return "invalid operation"
	case StackOverflow:
		return "stack overflow"
	case StackUnderflow:
		return "stack underflow"
	case OutOfMemory:
		return "out of memory"
	case InvalidFramebufferOperation:
		return "invalid framebuffer operation"
	}
	return fmt.Sprintf("unknown error 0x%x", code)
}

// DrainErrors pops every pending error code from the device
func DrainErrors(dev Device) []uint32 {
	var codes []uint32
	for i := 0; i < maxDrainedErrors; i++ {
		code := dev.Error()
		if code == NoError {
			break
		}
		codes = append(codes, code)
	}
	return codes
}
