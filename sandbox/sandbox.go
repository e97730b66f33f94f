// Package sandbox is the boundary between the kernel and untrusted guest
// code. There is no hardware isolation anywhere in this system: memory
// safety is enforced entirely here, by bounds-checking every guest
// address range before it is dereferenced and by containing runtime traps
// to the faulting instance.
package sandbox

import "github.com/pkg/errors"

var (
	ErrNoEntry     = errors.New("module does not export the entry function")
	ErrNoMemory    = errors.New("module does not export linear memory")
	ErrOutOfBounds = errors.New("address range outside guest memory")
)

// HostTable is the kernel-call surface handed to a guest at load time:
// one import, dispatched by frozen call ID.
type HostTable struct {
	Invoke func(id, a0, a1, a2, a3 int32) int32
}

// TrapError reports that guest execution aborted inside the runtime:
// out-of-bounds access, illegal instruction, unreachable, stack overflow.
// Traps belong to the guest, never to the host.
type TrapError struct {
	Reason string
}

func (t *TrapError) Error() string {
	return "guest trap: " + t.Reason
}

// IsTrap reports whether err is (or wraps) a guest trap.
func IsTrap(err error) bool {
	_, ok := errors.Cause(err).(*TrapError)
	return ok
}

// Instance is one loaded guest: callable entry points plus bounds-checked
// access to its linear memory. Reads copy out, so the guest can mutate
// its buffer as soon as the call returns.
type Instance interface {
	Call(entry string) error
	MemorySize() uint32
	MemoryRead(addr, length uint32) ([]byte, error)
	MemoryWrite(addr uint32, data []byte) error
	Close()
}

// Runtime loads guest modules. Implementations must contain faults: a
// crash inside guest code surfaces as *TrapError from Call, never as a
// host panic.
type Runtime interface {
	Load(module []byte, host HostTable) (Instance, error)
}
