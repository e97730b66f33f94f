package kernel

import (
	"encoding/binary"

	"github.com/Askannz/munal-os/abi"
)

// maxLogLen caps a single guest log line.
const maxLogLen = 4096

// callTimeMillis writes kernel uptime in milliseconds as a little-endian
// u64 to the given pointer.
func callTimeMillis(inv *Invocation) int32 {
	ptr := inv.Args[0]
	g := inv.G

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(inv.K.clock.Millis()))

	if err := g.inst.MemoryWrite(uint32(ptr), buf[:]); err != nil {
		inv.L.Error("time-millis: bad guest buffer", "guest", g.Name, "error", err)
		return -abi.EFAULT
	}

	return 0
}

// callYield ends the guest's quantum voluntarily. A positive argument is
// a sleep hint in milliseconds: the scheduler skips the guest until the
// deadline passes.
func callYield(inv *Invocation) int32 {
	ms := inv.Args[0]
	if ms < 0 {
		return -abi.EINVAL
	}

	g := inv.G
	if ms > 0 {
		g.sleepUntil = inv.K.clock.Millis() + int64(ms)
	}

	return 0
}

// callExit requests orderly termination; the teardown happens when the
// quantum returns.
func callExit(inv *Invocation) int32 {
	g := inv.G
	g.exitReq = true
	g.exitCode = inv.Args[0]
	return 0
}

// callLog forwards one guest log line to the kernel logger. Levels map
// 0=trace 1=debug 2=info 3=warn, anything else=error.
func callLog(inv *Invocation) int32 {
	var (
		level  = inv.Args[0]
		ptr    = inv.Args[1]
		length = inv.Args[2]
	)

	g := inv.G

	if length < 0 || length > maxLogLen {
		return -abi.EINVAL
	}

	msg, err := g.inst.MemoryRead(uint32(ptr), uint32(length))
	if err != nil {
		return -abi.EFAULT
	}

	l := inv.L
	switch level {
	case 0:
		l.Trace(string(msg), "guest", g.Name)
	case 1:
		l.Debug(string(msg), "guest", g.Name)
	case 2:
		l.Info(string(msg), "guest", g.Name)
	case 3:
		l.Warn(string(msg), "guest", g.Name)
	default:
		l.Error(string(msg), "guest", g.Name)
	}

	return 0
}

func init() {
	calls[abi.CallTimeMillis] = callTimeMillis
	calls[abi.CallYield] = callYield
	calls[abi.CallExit] = callExit
	calls[abi.CallLog] = callLog
}
