// Package abi is the kernel-call surface shared between the kernel and
// guest applications. Guests are compiled independently of the kernel and
// never rebuilt against it, so everything in this package is frozen: call
// IDs, errno values and wire layouts must not change meaning once
// deployed.
package abi

import "encoding/binary"

// Kernel call IDs. Each call is a single wasm import
// (env.munal_call(id, a0..a3) -> i32) dispatched by ID.
const (
	CallPollInput   = 1
	CallSockOpen    = 2
	CallSockRead    = 3
	CallSockWrite   = 4
	CallSockClose   = 5
	CallSockStatus  = 6
	CallSubmitFrame = 7
	CallTimeMillis  = 8
	CallYield       = 9
	CallExit        = 10
	CallLog         = 11
	CallWinRect     = 12

	// CallMax bounds the dispatch table. IDs at or above it are reserved.
	CallMax = 64
)

// Call errnos, returned to the guest negated.
const (
	ENOSYS = 1 // unknown call ID
	EINVAL = 2 // bad argument
	EFAULT = 3 // pointer/length outside guest memory
	EBADF  = 4 // unknown socket handle
	EAGAIN = 5 // retry next quantum
	EIO    = 6 // protocol stack failure
	ENODEV = 7 // no such device attached
)

// Input event kinds.
const (
	EventKey    = 1 // Code: key code, Value: 1 press / 0 release
	EventButton = 2 // Code: button number, Value: 1 press / 0 release
	EventRelX   = 3 // Value: relative pointer motion
	EventRelY   = 4
	EventAbsX   = 5 // Value: absolute pointer position
	EventAbsY   = 6
)

// InputEventSize is the fixed wire size of one input event.
const InputEventSize = 8

// InputEvent is one normalized input event as delivered to guests by the
// poll-input call: kind u8, pad u8, code u16, value i32, little-endian.
type InputEvent struct {
	Kind  uint8
	Code  uint16
	Value int32
}

// PutInputEvent encodes e into b, which must hold InputEventSize bytes.
func PutInputEvent(b []byte, e InputEvent) {
	b[0] = e.Kind
	b[1] = 0
	binary.LittleEndian.PutUint16(b[2:4], e.Code)
	binary.LittleEndian.PutUint32(b[4:8], uint32(e.Value))
}

// GetInputEvent decodes one event from b.
func GetInputEvent(b []byte) InputEvent {
	return InputEvent{
		Kind:  b[0],
		Code:  binary.LittleEndian.Uint16(b[2:4]),
		Value: int32(binary.LittleEndian.Uint32(b[4:8])),
	}
}
