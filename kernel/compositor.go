package kernel

import (
	"sort"

	"github.com/Askannz/munal-os/gfx"
)

var (
	colorDesktop = gfx.Color{R: 0x20, G: 0x24, B: 0x28, A: 0xff}
	colorFocus   = gfx.Color{R: 0x3a, G: 0x6e, B: 0xa5, A: 0xff}
	colorChrome  = gfx.Color{R: 0x44, G: 0x48, B: 0x4c, A: 0xff}
	colorCrashed = gfx.Color{R: 0xa5, G: 0x2a, B: 0x2a, A: 0xff}
	colorCursor  = gfx.Color{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// composite rebuilds the desktop image from scratch: wallpaper, windows
// in ascending z (topmost painted last), then the cursor. A crashed
// guest's last accepted frame stays on screen under red chrome.
func (k *KernelContext) composite() {
	if k.wallpaper != nil {
		if err := k.desktop.CopyFrom(k.wallpaper); err != nil {
			k.log.Error("wallpaper copy failed", "error", err)
			k.desktop.Clear(colorDesktop)
		}
	} else {
		k.desktop.Clear(colorDesktop)
	}

	for _, g := range k.byZ() {
		chrome := colorChrome
		switch {
		case g.state == Crashed:
			chrome = colorCrashed
		case g.ID == k.focus:
			chrome = colorFocus
		}

		k.desktop.FillRect(gfx.Rect{
			X: g.win.X - 2,
			Y: g.win.Y - titleBarH,
			W: g.win.W + 4,
			H: g.win.H + titleBarH + 2,
		}, chrome, 1)

		k.desktop.Blit(g.frame, g.win.X, g.win.Y)
	}

	k.desktop.FillRect(gfx.Rect{X: k.pointer.X, Y: k.pointer.Y, W: 5, H: 5}, colorCursor, 1)
}

// byZ returns live guests in ascending z order.
func (k *KernelContext) byZ() []*Guest {
	out := make([]*Guest, 0, len(k.guests))
	for _, g := range k.guests {
		if g.state == Terminated {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].z < out[j].z })
	return out
}
