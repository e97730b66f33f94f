package kernel

import (
	"github.com/pkg/errors"

	"github.com/Askannz/munal-os/device/gpu"
	"github.com/Askannz/munal-os/sandbox"
)

// RunIteration executes one pass of the event loop: poll devices, route
// input, step every runnable guest once, composite and flush. Phases run
// in this order every time; no phase blocks.
func (k *KernelContext) RunIteration() {
	k.iterations++

	if k.input != nil {
		k.input.Poll()
		k.routeInput(k.input.Drain())
	}

	if k.net != nil {
		k.net.Pump(k.frames)
	}

	for _, g := range k.runnable() {
		k.stepGuest(g)
	}
	k.reap()

	k.composite()

	if err := k.gpu.Flush(k.desktop); err != nil {
		if errors.Cause(err) == gpu.ErrFrameInFlight {
			// device still scanning out the previous frame; skip, don't stall
			k.log.Debug("display busy, frame skipped", "iteration", k.iterations)
		} else {
			k.log.Error("display flush failed", "error", err)
		}
	}
}

// Run executes n iterations.
func (k *KernelContext) Run(n int) {
	for i := 0; i < n; i++ {
		k.RunIteration()
	}
}

// runnable selects this iteration's guests in stable ID order. Sleeping
// guests are skipped until their deadline; crashed and terminated guests
// never run again.
func (k *KernelContext) runnable() []*Guest {
	now := k.clock.Millis()

	var out []*Guest
	for _, g := range k.guests {
		if g.state != Loaded && g.state != Yielded {
			continue
		}
		if g.sleepUntil > now {
			continue
		}
		out = append(out, g)
	}
	return out
}

// stepGuest runs one quantum: the first ever quantum calls the guest's
// init entry point, every later one calls step. The quantum ends when the
// entry point returns, traps, or exhausts its kernel-call budget.
func (k *KernelContext) stepGuest(g *Guest) {
	entry := "step"
	if !g.initDone {
		entry = "init"
	}

	if err := g.setState(Running); err != nil {
		k.log.Error("scheduling guest", "guest", g.Name, "error", err)
		return
	}

	g.calls = 0
	g.overBudget = false
	g.sleepUntil = 0

	err := g.inst.Call(entry)

	switch {
	case g.overBudget:
		k.crashGuest(g, "kernel call budget exhausted")

	case err != nil:
		if sandbox.IsTrap(err) {
			k.crashGuest(g, err.Error())
		} else {
			k.crashGuest(g, errors.Wrapf(err, "calling %s", entry).Error())
		}

	case g.exitReq:
		k.terminate(g)

	default:
		g.initDone = true
		if serr := g.setState(Yielded); serr != nil {
			k.log.Error("descheduling guest", "guest", g.Name, "error", serr)
		}
	}
}
