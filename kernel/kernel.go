// Package kernel owns the whole of the operating system's mutable state
// and the cooperative event loop that drives it. There is exactly one
// logical thread: drivers are polled, guests are stepped and the desktop
// is composited in a fixed order, once per iteration. Nothing here locks,
// because nothing here is concurrent.
package kernel

import (
	"time"

	"github.com/Askannz/munal-os/device/gpu"
	"github.com/Askannz/munal-os/device/input"
	"github.com/Askannz/munal-os/device/net"
	"github.com/Askannz/munal-os/gfx"
	"github.com/Askannz/munal-os/log"
	"github.com/Askannz/munal-os/sandbox"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var (
	ErrNoDisplay    = errors.New("display driver is required")
	ErrNoRuntime    = errors.New("sandbox runtime is required")
	ErrUnknownGuest = errors.New("unknown guest")
)

// Clock supplies kernel time. Guests only ever see it through the time
// kernel call.
type Clock interface {
	Millis() int64
}

type sysClock struct {
	start time.Time
}

func NewClock() Clock {
	return &sysClock{start: time.Now()}
}

func (c *sysClock) Millis() int64 {
	return time.Since(c.start).Milliseconds()
}

// SocketStack is the socket face of the external protocol stack. The
// kernel forwards guest socket calls to it and owns no protocol state.
type SocketStack interface {
	Connect(ip [4]byte, port uint16) (int32, error)
	MaySend(handle int32) bool
	MayRecv(handle int32) bool
	Read(handle int32, b []byte) (int, error)
	Write(handle int32, b []byte) (int, error)
	Close(handle int32) error
}

// PointerState is the desktop-global cursor position and button mask.
type PointerState struct {
	X, Y    int
	Buttons uint8
}

const defaultCallBudget = 4096

// Params collects everything the kernel context owns. Display and runtime
// are required; a kernel without a display does not boot.
type Params struct {
	Log     hclog.Logger
	Runtime sandbox.Runtime

	Input *input.Driver
	Net   *net.Driver
	GPU   *gpu.Driver

	Frames  net.FrameStack
	Sockets SocketStack

	Clock     Clock
	Wallpaper *gfx.Framebuffer

	// CallBudget is the per-quantum kernel-call budget; a guest that
	// exceeds it is crashed. Zero selects the default.
	CallBudget int
}

// KernelContext is the single explicit root of kernel state, threaded by
// reference through the event loop and into every kernel call. There are
// no ambient singletons.
type KernelContext struct {
	log hclog.Logger
	rt  sandbox.Runtime

	input *input.Driver
	net   *net.Driver
	gpu   *gpu.Driver

	frames  net.FrameStack
	sockets SocketStack
	clock   Clock

	desktop   *gfx.Framebuffer
	wallpaper *gfx.Framebuffer

	pointer PointerState
	drag    *dragState
	focus   int // guest ID, 0 = none

	guests []*Guest // stable ID order
	nextID int
	nextZ  int

	callBudget int
	iterations uint64
}

func New(p Params) (*KernelContext, error) {
	if p.GPU == nil {
		return nil, ErrNoDisplay
	}
	if p.Runtime == nil {
		return nil, ErrNoRuntime
	}

	if p.Log == nil {
		p.Log = log.L
	}
	if p.Clock == nil {
		p.Clock = NewClock()
	}
	if p.CallBudget <= 0 {
		p.CallBudget = defaultCallBudget
	}

	w, h := p.GPU.Dims()

	if p.Wallpaper != nil && (p.Wallpaper.W != w || p.Wallpaper.H != h) {
		return nil, errors.Wrapf(gfx.ErrBadFrame, "wallpaper=%dx%d display=%dx%d",
			p.Wallpaper.W, p.Wallpaper.H, w, h)
	}

	return &KernelContext{
		log:        p.Log,
		rt:         p.Runtime,
		input:      p.Input,
		net:        p.Net,
		gpu:        p.GPU,
		frames:     p.Frames,
		sockets:    p.Sockets,
		clock:      p.Clock,
		desktop:    gfx.New(w, h),
		wallpaper:  p.Wallpaper,
		callBudget: p.CallBudget,
		nextID:     1,
		nextZ:      1,
	}, nil
}

// Desktop exposes the composited desktop image; single-writer during
// composition, handed to the display driver during flush.
func (k *KernelContext) Desktop() *gfx.Framebuffer {
	return k.desktop
}

func (k *KernelContext) Pointer() PointerState {
	return k.pointer
}

func (k *KernelContext) Iterations() uint64 {
	return k.iterations
}

// Guest looks up a live guest by ID.
func (k *KernelContext) Guest(id int) (*Guest, bool) {
	for _, g := range k.guests {
		if g.ID == id {
			return g, true
		}
	}
	return nil, false
}

// Guests returns the guest table in stable ID order.
func (k *KernelContext) Guests() []*Guest {
	out := make([]*Guest, len(k.guests))
	copy(out, k.guests)
	return out
}

// GuestInfo is a point-in-time view of one guest for diagnostics.
type GuestInfo struct {
	ID          int
	Name        string
	State       string
	Window      gfx.Rect
	Z           int
	Frames      uint64
	CrashReason string
}

// Snapshot captures kernel state for debug dumps.
type Snapshot struct {
	Iterations uint64
	Pointer    PointerState
	Focus      int
	Guests     []GuestInfo
}

func (k *KernelContext) Snapshot() Snapshot {
	s := Snapshot{
		Iterations: k.iterations,
		Pointer:    k.pointer,
		Focus:      k.focus,
	}

	for _, g := range k.guests {
		s.Guests = append(s.Guests, GuestInfo{
			ID:          g.ID,
			Name:        g.Name,
			State:       g.state.String(),
			Window:      g.win,
			Z:           g.z,
			Frames:      g.frames,
			CrashReason: g.crashReason,
		})
	}

	return s
}
