package kernel

import (
	"encoding/binary"

	"github.com/Askannz/munal-os/abi"
)

// callPollInput drains up to max pending events into the guest's buffer
// and returns how many were written. Events arrive in the order the
// devices produced them.
func callPollInput(inv *Invocation) int32 {
	var (
		ptr = inv.Args[0]
		max = inv.Args[1]
	)

	if max <= 0 {
		return -abi.EINVAL
	}

	g := inv.G

	n := len(g.pending)
	if int32(n) > max {
		n = int(max)
	}
	if n == 0 {
		return 0
	}

	buf := make([]byte, n*abi.InputEventSize)
	for i := 0; i < n; i++ {
		abi.PutInputEvent(buf[i*abi.InputEventSize:], g.pending[i])
	}

	if err := g.inst.MemoryWrite(uint32(ptr), buf); err != nil {
		inv.L.Error("poll-input: bad guest buffer", "guest", g.Name, "error", err)
		return -abi.EFAULT
	}

	g.pending = g.pending[n:]

	return int32(n)
}

// callWinRect writes the guest's current window rect (x, y, w, h as four
// little-endian i32) to the given pointer.
func callWinRect(inv *Invocation) int32 {
	ptr := inv.Args[0]
	g := inv.G

	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(g.win.X)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(g.win.Y)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(g.win.W)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(int32(g.win.H)))

	if err := g.inst.MemoryWrite(uint32(ptr), buf[:]); err != nil {
		inv.L.Error("win-rect: bad guest buffer", "guest", g.Name, "error", err)
		return -abi.EFAULT
	}

	return 0
}

func init() {
	calls[abi.CallPollInput] = callPollInput
	calls[abi.CallWinRect] = callWinRect
}
