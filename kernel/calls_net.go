package kernel

import (
	"encoding/binary"

	"github.com/Askannz/munal-os/abi"
)

// Socket calls are thin forwards to the external protocol stack. Guest
// socket handles are per-guest and never reveal the stack's own handles.

func callSockOpen(inv *Invocation) int32 {
	var (
		ip   = inv.Args[0]
		port = inv.Args[1]
	)

	if inv.K.sockets == nil {
		return -abi.ENODEV
	}
	if port <= 0 || port > 65535 {
		return -abi.EINVAL
	}

	var addr [4]byte
	binary.LittleEndian.PutUint32(addr[:], uint32(ip))

	h, err := inv.K.sockets.Connect(addr, uint16(port))
	if err != nil {
		inv.L.Error("socket connect failed", "guest", inv.G.Name, "error", err)
		return -abi.EIO
	}

	g := inv.G
	id := g.nextSocket
	g.nextSocket++
	g.sockets[id] = h

	return id
}

func callSockRead(inv *Invocation) int32 {
	var (
		handle = inv.Args[0]
		ptr    = inv.Args[1]
		size   = inv.Args[2]
	)

	g := inv.G

	sock, ok := g.sockets[handle]
	if !ok {
		return -abi.EBADF
	}
	if size <= 0 {
		return -abi.EINVAL
	}

	// validate the destination before allocating: size is guest-controlled
	if uint64(uint32(ptr))+uint64(size) > uint64(g.inst.MemorySize()) {
		inv.L.Error("sock-read: bad guest buffer", "guest", g.Name,
			"ptr", ptr, "size", size)
		return -abi.EFAULT
	}

	buf := make([]byte, size)

	n, err := inv.K.sockets.Read(sock, buf)
	if err != nil {
		inv.L.Error("socket read failed", "guest", g.Name, "error", err)
		return -abi.EIO
	}
	if n == 0 {
		return 0
	}

	if err := g.inst.MemoryWrite(uint32(ptr), buf[:n]); err != nil {
		inv.L.Error("sock-read: bad guest buffer", "guest", g.Name, "error", err)
		return -abi.EFAULT
	}

	return int32(n)
}

func callSockWrite(inv *Invocation) int32 {
	var (
		handle = inv.Args[0]
		ptr    = inv.Args[1]
		size   = inv.Args[2]
	)

	g := inv.G

	sock, ok := g.sockets[handle]
	if !ok {
		return -abi.EBADF
	}
	if size <= 0 {
		return -abi.EINVAL
	}

	buf, err := g.inst.MemoryRead(uint32(ptr), uint32(size))
	if err != nil {
		inv.L.Error("sock-write: bad guest buffer", "guest", g.Name, "error", err)
		return -abi.EFAULT
	}

	n, err := inv.K.sockets.Write(sock, buf)
	if err != nil {
		inv.L.Error("socket write failed", "guest", g.Name, "error", err)
		return -abi.EIO
	}

	return int32(n)
}

func callSockClose(inv *Invocation) int32 {
	handle := inv.Args[0]
	g := inv.G

	sock, ok := g.sockets[handle]
	if !ok {
		return -abi.EBADF
	}

	delete(g.sockets, handle)

	if err := inv.K.sockets.Close(sock); err != nil {
		inv.L.Error("socket close failed", "guest", g.Name, "error", err)
		return -abi.EIO
	}

	return 0
}

// callSockStatus returns bit 0 = may send, bit 1 = may receive.
func callSockStatus(inv *Invocation) int32 {
	handle := inv.Args[0]
	g := inv.G

	sock, ok := g.sockets[handle]
	if !ok {
		return -abi.EBADF
	}

	var status int32
	if inv.K.sockets.MaySend(sock) {
		status |= 1
	}
	if inv.K.sockets.MayRecv(sock) {
		status |= 2
	}

	return status
}

func init() {
	calls[abi.CallSockOpen] = callSockOpen
	calls[abi.CallSockRead] = callSockRead
	calls[abi.CallSockWrite] = callSockWrite
	calls[abi.CallSockClose] = callSockClose
	calls[abi.CallSockStatus] = callSockStatus
}
