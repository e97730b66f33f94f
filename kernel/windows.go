package kernel

import (
	"github.com/Askannz/munal-os/abi"
)

// titleBarH is the height of the window chrome strip above each guest's
// content area. Clicks there start a drag instead of reaching the guest.
const titleBarH = 24

// dragState tracks an in-progress title-bar drag: the guest being moved
// and the pointer's offset from the window origin at grab time.
type dragState struct {
	guest *Guest
	dx    int
	dy    int
}

// routeInput updates the desktop pointer, drives focus and window drag,
// and forwards everything else to the focused guest.
func (k *KernelContext) routeInput(events []abi.InputEvent) {
	w, h := k.gpu.Dims()

	for _, ev := range events {
		switch ev.Kind {
		case abi.EventRelX:
			k.pointer.X = clamp(k.pointer.X+int(ev.Value), 0, w-1)
		case abi.EventRelY:
			k.pointer.Y = clamp(k.pointer.Y+int(ev.Value), 0, h-1)
		case abi.EventAbsX:
			k.pointer.X = clamp(int(ev.Value), 0, w-1)
		case abi.EventAbsY:
			k.pointer.Y = clamp(int(ev.Value), 0, h-1)

		case abi.EventButton:
			if ev.Code == 0 {
				// primary button drives focus and drag
				if ev.Value != 0 {
					k.pointer.Buttons |= 1
					k.pointerDown()
				} else {
					k.pointer.Buttons &^= 1
					k.drag = nil
				}
			}
		}

		if k.drag != nil && (ev.Kind == abi.EventRelX || ev.Kind == abi.EventRelY ||
			ev.Kind == abi.EventAbsX || ev.Kind == abi.EventAbsY) {
			g := k.drag.guest
			g.win.X = k.pointer.X - k.drag.dx
			g.win.Y = k.pointer.Y - k.drag.dy
			continue
		}

		if g, ok := k.Guest(k.focus); ok {
			g.pushEvent(ev)
		}
	}
}

// pointerDown resolves a primary-button press: focus and raise the
// topmost window under the pointer, and grab it if the press landed on
// the title bar.
func (k *KernelContext) pointerDown() {
	g := k.topGuestAt(k.pointer.X, k.pointer.Y)
	if g == nil {
		return
	}

	k.focus = g.ID
	g.z = k.nextZ
	k.nextZ++

	if k.pointer.Y < g.win.Y {
		k.drag = &dragState{
			guest: g,
			dx:    k.pointer.X - g.win.X,
			dy:    k.pointer.Y - g.win.Y,
		}
	}
}

// topGuestAt returns the highest-z guest whose window or title bar
// contains the point, or nil.
func (k *KernelContext) topGuestAt(x, y int) *Guest {
	var top *Guest
	for _, g := range k.guests {
		if g.state == Terminated {
			continue
		}
		hit := g.win.Contains(x, y) ||
			(x >= g.win.X && x < g.win.X+g.win.W && y >= g.win.Y-titleBarH && y < g.win.Y)
		if !hit {
			continue
		}
		if top == nil || g.z > top.z {
			top = g
		}
	}
	return top
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
