package kernel

import (
	"github.com/Askannz/munal-os/abi"
	"github.com/Askannz/munal-os/bundle"
	"github.com/Askannz/munal-os/gfx"
	"github.com/Askannz/munal-os/sandbox"
	"github.com/pkg/errors"
)

// State is a guest's lifecycle position. Crashed is absorbing: there is
// no recovery path for a faulted guest, only a frozen window.
type State int

const (
	Loaded State = iota
	Running
	Yielded
	Terminated
	Crashed
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Yielded:
		return "yielded"
	case Terminated:
		return "terminated"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

var ErrBadTransition = errors.New("illegal guest state transition")

// guestPendingCap bounds per-guest input queues, same drop-oldest policy
// as the input driver.
const guestPendingCap = 256

// Guest is one loaded, sandboxed application: its instance, its window,
// and its scheduling state. Exclusively owned by the kernel context; the
// loop only ever reaches it through the guest table.
type Guest struct {
	ID   int
	Name string

	win gfx.Rect
	z   int

	inst  sandbox.Instance
	state State

	// frame is the last accepted submission, always a kernel-owned copy.
	frame  *gfx.Framebuffer
	frames uint64

	pending []abi.InputEvent
	dropped uint64

	sockets    map[int32]int32
	nextSocket int32

	initDone   bool
	sleepUntil int64
	exitReq    bool
	exitCode   int32

	calls       int // kernel calls this quantum
	overBudget  bool
	crashReason string
}

func (g *Guest) State() State {
	return g.state
}

func (g *Guest) Window() gfx.Rect {
	return g.win
}

// Frame is the guest's last accepted framebuffer; the kernel owns it.
func (g *Guest) Frame() *gfx.Framebuffer {
	return g.frame
}

func (g *Guest) CrashReason() string {
	return g.crashReason
}

func (g *Guest) ExitCode() int32 {
	return g.exitCode
}

// setState validates lifecycle transitions:
// Loaded -> Running <-> Yielded -> Terminated, Crashed absorbing.
func (g *Guest) setState(to State) error {
	ok := false

	switch g.state {
	case Loaded:
		ok = to == Running || to == Terminated
	case Running:
		ok = to == Yielded || to == Terminated || to == Crashed
	case Yielded:
		ok = to == Running || to == Terminated || to == Crashed
	}

	if !ok {
		return errors.Wrapf(ErrBadTransition, "%s -> %s", g.state, to)
	}

	g.state = to
	return nil
}

func (g *Guest) crash(reason string) {
	g.crashReason = reason
	g.state = Crashed
}

func (g *Guest) pushEvent(ev abi.InputEvent) {
	if len(g.pending) >= guestPendingCap {
		copy(g.pending, g.pending[1:])
		g.pending = g.pending[:len(g.pending)-1]
		g.dropped++
	}
	g.pending = append(g.pending, ev)
}

// LoadGuest instantiates a bundle's module and registers the guest with
// the scheduler. The guest does not execute until its first quantum.
func (k *KernelContext) LoadGuest(b *bundle.Bundle) (*Guest, error) {
	win := gfx.Rect{
		X: int(b.Manifest.Window.X),
		Y: int(b.Manifest.Window.Y),
		W: int(b.Manifest.Window.W),
		H: int(b.Manifest.Window.H),
	}
	if win.Empty() {
		return nil, errors.Wrapf(gfx.ErrBadFrame, "guest %q window %dx%d", b.Manifest.Name, win.W, win.H)
	}

	g := &Guest{
		ID:      k.nextID,
		Name:    b.Manifest.Name,
		win:     win,
		z:       k.nextZ,
		state:   Loaded,
		frame:   gfx.New(win.W, win.H),
		sockets: make(map[int32]int32),
	}

	host := sandbox.HostTable{
		Invoke: func(id, a0, a1, a2, a3 int32) int32 {
			return k.invoke(g, id, [4]int32{a0, a1, a2, a3})
		},
	}

	inst, err := k.rt.Load(b.Module, host)
	if err != nil {
		return nil, errors.Wrapf(err, "loading guest %q", b.Manifest.Name)
	}
	g.inst = inst

	k.nextID++
	k.nextZ++
	k.guests = append(k.guests, g)

	if k.focus == 0 {
		k.focus = g.ID
	}

	k.log.Info("guest loaded", "guest", g.Name, "id", g.ID, "window", g.win)

	return g, nil
}

// CloseGuest administratively terminates a guest, e.g. when its window is
// closed. Closing a crashed guest discards its frozen window.
func (k *KernelContext) CloseGuest(id int) error {
	g, ok := k.Guest(id)
	if !ok {
		return errors.Wrapf(ErrUnknownGuest, "id=%d", id)
	}

	k.terminate(g)
	k.reap()

	return nil
}

// terminate tears a guest down: sockets closed, instance released,
// excluded from the round-robin set. No partial state leaks into later
// iterations.
func (k *KernelContext) terminate(g *Guest) {
	if g.state == Terminated {
		return
	}

	if k.sockets != nil {
		for _, h := range g.sockets {
			if err := k.sockets.Close(h); err != nil {
				k.log.Warn("closing guest socket", "guest", g.Name, "error", err)
			}
		}
	}
	g.sockets = make(map[int32]int32)

	g.state = Terminated
	g.inst.Close()

	if k.focus == g.ID {
		k.focus = 0
	}

	k.log.Info("guest terminated", "guest", g.Name, "code", g.exitCode)
}

// crashGuest contains a guest fault: only the offending guest leaves the
// schedule, its window freezes on the last accepted frame, and the rest
// of the system never sees the fault.
func (k *KernelContext) crashGuest(g *Guest, reason string) {
	g.crash(reason)
	g.inst.Close()

	if k.focus == g.ID {
		k.focus = 0
	}

	k.log.Error("guest crashed", "guest", g.Name, "reason", reason)
}

func (k *KernelContext) reap() {
	kept := k.guests[:0]
	for _, g := range k.guests {
		if g.state == Terminated {
			continue
		}
		kept = append(kept, g)
	}
	k.guests = kept
}
