package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/Askannz/munal-os/bundle"
	"github.com/Askannz/munal-os/device/gpu"
	"github.com/Askannz/munal-os/device/sim"
	"github.com/Askannz/munal-os/gfx"
	"github.com/Askannz/munal-os/log"
	"github.com/Askannz/munal-os/sandbox"
	"github.com/Askannz/munal-os/virtq"
	"github.com/pkg/errors"
)

// fakeInstance is a scriptable sandbox instance backed by a plain byte
// slice. onInit and onStep run in place of guest code and may issue
// kernel calls through the captured host table.
type fakeInstance struct {
	host sandbox.HostTable
	mem  []byte

	onInit func(*fakeInstance) error
	onStep func(*fakeInstance) error

	steps  int
	closed bool
}

func (f *fakeInstance) Call(entry string) error {
	switch entry {
	case "init":
		if f.onInit != nil {
			return f.onInit(f)
		}
		return nil
	case "step":
		f.steps++
		if f.onStep != nil {
			return f.onStep(f)
		}
		return nil
	default:
		return errors.Wrapf(sandbox.ErrNoEntry, "%q", entry)
	}
}

func (f *fakeInstance) MemorySize() uint32 {
	return uint32(len(f.mem))
}

func (f *fakeInstance) MemoryRead(addr, length uint32) ([]byte, error) {
	if uint64(addr)+uint64(length) > uint64(len(f.mem)) {
		return nil, errors.Wrapf(sandbox.ErrOutOfBounds, "read addr=%d len=%d", addr, length)
	}
	out := make([]byte, length)
	copy(out, f.mem[addr:addr+length])
	return out, nil
}

func (f *fakeInstance) MemoryWrite(addr uint32, data []byte) error {
	if uint64(addr)+uint64(len(data)) > uint64(len(f.mem)) {
		return errors.Wrapf(sandbox.ErrOutOfBounds, "write addr=%d len=%d", addr, len(data))
	}
	copy(f.mem[addr:], data)
	return nil
}

func (f *fakeInstance) Close() {
	f.closed = true
}

// fakeRuntime hands out pre-built instances in FIFO order.
type fakeRuntime struct {
	queue []*fakeInstance
}

func (r *fakeRuntime) Load(module []byte, host sandbox.HostTable) (sandbox.Instance, error) {
	if len(r.queue) == 0 {
		return nil, errors.New("no scripted instance")
	}
	inst := r.queue[0]
	r.queue = r.queue[1:]
	inst.host = host
	return inst, nil
}

type fakeClock struct {
	now int64
}

func (c *fakeClock) Millis() int64 {
	return c.now
}

func makeBundle(name string, win gfx.Rect) *bundle.Bundle {
	return &bundle.Bundle{
		Manifest: bundle.Manifest{
			FormatVersion: bundle.FormatVersion,
			Name:          name,
			Window: bundle.Window{
				X: int32(win.X), Y: int32(win.Y),
				W: int32(win.W), H: int32(win.H),
			},
		},
		Module: []byte(name),
	}
}

func testDisplay(t *testing.T, w, h int) (*gpu.Driver, *sim.GPUBackend) {
	q, err := virtq.New(4, log.L)
	require.NoError(t, err)

	backend := sim.NewGPUBackend(q)

	d, err := gpu.New(q, w, h, log.L)
	require.NoError(t, err)

	return d, backend
}

func newTestKernel(t *testing.T, rt *fakeRuntime) (*KernelContext, *sim.GPUBackend, *fakeClock) {
	d, backend := testDisplay(t, 320, 240)
	clock := &fakeClock{}

	k, err := New(Params{
		Runtime: rt,
		GPU:     d,
		Clock:   clock,
	})
	require.NoError(t, err)

	return k, backend, clock
}

func TestKernelContext(t *testing.T) {
	n := neko.Modern(t)

	n.It("requires a display driver", func(t *testing.T) {
		_, err := New(Params{Runtime: &fakeRuntime{}})
		require.Equal(t, ErrNoDisplay, err)
	})

	n.It("requires a sandbox runtime", func(t *testing.T) {
		d, _ := testDisplay(t, 320, 240)
		_, err := New(Params{GPU: d})
		require.Equal(t, ErrNoRuntime, err)
	})

	n.It("rejects a wallpaper that does not match the display", func(t *testing.T) {
		d, _ := testDisplay(t, 320, 240)
		_, err := New(Params{
			Runtime:   &fakeRuntime{},
			GPU:       d,
			Wallpaper: gfx.New(100, 100),
		})
		require.Error(t, err)
		require.Equal(t, gfx.ErrBadFrame, errors.Cause(err))
	})

	n.It("rejects a guest with an empty window", func(t *testing.T) {
		k, _, _ := newTestKernel(t, &fakeRuntime{})

		_, err := k.LoadGuest(makeBundle("bad", gfx.Rect{X: 10, Y: 10}))
		require.Error(t, err)
	})

	n.It("focuses the first loaded guest", func(t *testing.T) {
		rt := &fakeRuntime{queue: []*fakeInstance{{}, {}}}
		k, _, _ := newTestKernel(t, rt)

		g1, err := k.LoadGuest(makeBundle("one", gfx.Rect{X: 10, Y: 30, W: 50, H: 50}))
		require.NoError(t, err)

		_, err = k.LoadGuest(makeBundle("two", gfx.Rect{X: 80, Y: 30, W: 50, H: 50}))
		require.NoError(t, err)

		require.Equal(t, g1.ID, k.focus)
	})

	n.It("closes a guest and removes it from the table", func(t *testing.T) {
		inst := &fakeInstance{}
		rt := &fakeRuntime{queue: []*fakeInstance{inst}}
		k, _, _ := newTestKernel(t, rt)

		g, err := k.LoadGuest(makeBundle("app", gfx.Rect{X: 10, Y: 30, W: 50, H: 50}))
		require.NoError(t, err)

		require.NoError(t, k.CloseGuest(g.ID))
		require.True(t, inst.closed)
		require.Len(t, k.Guests(), 0)

		require.Error(t, k.CloseGuest(g.ID))
	})

	n.Meow()
}
