package kernel

import (
	"github.com/Askannz/munal-os/abi"
	"github.com/Askannz/munal-os/gfx"
)

// callSubmitFrame accepts one full frame for the guest's window. The
// pixels are copied out of guest memory immediately; a rejected frame
// leaves the previous accepted frame on screen.
func callSubmitFrame(inv *Invocation) int32 {
	var (
		ptr = inv.Args[0]
		w   = inv.Args[1]
		h   = inv.Args[2]
	)

	g := inv.G

	if int(w) != g.win.W || int(h) != g.win.H {
		inv.L.Warn("frame dims mismatch window", "guest", g.Name,
			"frame", []int32{w, h}, "window", []int{g.win.W, g.win.H})
		return -abi.EINVAL
	}

	size := uint32(w) * uint32(h) * gfx.BytesPerPixel

	pix, err := g.inst.MemoryRead(uint32(ptr), size)
	if err != nil {
		inv.L.Error("submit-frame: bad guest buffer", "guest", g.Name, "error", err)
		return -abi.EFAULT
	}

	fb, err := gfx.FromBytes(pix, int(w), int(h))
	if err != nil {
		return -abi.EINVAL
	}

	g.frame = fb
	g.frames++

	return 0
}

func init() {
	calls[abi.CallSubmitFrame] = callSubmitFrame
}
