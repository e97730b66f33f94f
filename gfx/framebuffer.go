// Package gfx holds the pixel primitives shared by the compositor and the
// display driver: a fixed-format RGBA framebuffer and rectangle math.
package gfx

import (
	"github.com/pkg/errors"
)

// BytesPerPixel is the only pixel format carried anywhere in the kernel:
// 8-bit RGBA, row-major.
const BytesPerPixel = 4

var ErrBadFrame = errors.New("pixel buffer does not match dimensions")

type Color struct {
	R, G, B, A uint8
}

// Framebuffer is a fixed-resolution RGBA pixel buffer. Transfers between
// owners (guest frame, desktop, scan-out) are always by copy.
type Framebuffer struct {
	W, H int
	Pix  []byte
}

func New(w, h int) *Framebuffer {
	return &Framebuffer{W: w, H: h, Pix: make([]byte, w*h*BytesPerPixel)}
}

// FromBytes copies b into a new framebuffer of the given dimensions.
func FromBytes(b []byte, w, h int) (*Framebuffer, error) {
	if w <= 0 || h <= 0 || len(b) != w*h*BytesPerPixel {
		return nil, errors.Wrapf(ErrBadFrame, "len=%d w=%d h=%d", len(b), w, h)
	}

	fb := New(w, h)
	copy(fb.Pix, b)

	return fb, nil
}

func (f *Framebuffer) Bounds() Rect {
	return Rect{W: f.W, H: f.H}
}

func (f *Framebuffer) Clone() *Framebuffer {
	c := New(f.W, f.H)
	copy(c.Pix, f.Pix)
	return c
}

// CopyFrom overwrites f with src. Dimensions must match exactly.
func (f *Framebuffer) CopyFrom(src *Framebuffer) error {
	if src.W != f.W || src.H != f.H {
		return errors.Wrapf(ErrBadFrame, "got=%dx%d want=%dx%d", src.W, src.H, f.W, f.H)
	}

	copy(f.Pix, src.Pix)
	return nil
}

func (f *Framebuffer) Clear(c Color) {
	for i := 0; i < len(f.Pix); i += BytesPerPixel {
		f.Pix[i] = c.R
		f.Pix[i+1] = c.G
		f.Pix[i+2] = c.B
		f.Pix[i+3] = c.A
	}
}

// FillRect paints r with c, alpha-blended over the existing pixels and
// clipped to the framebuffer.
func (f *Framebuffer) FillRect(r Rect, c Color, alpha float32) {
	clip := r.Intersect(f.Bounds())
	if clip.Empty() {
		return
	}

	for y := clip.Y; y < clip.Y+clip.H; y++ {
		i := (y*f.W + clip.X) * BytesPerPixel
		for x := 0; x < clip.W; x++ {
			f.Pix[i] = blend(f.Pix[i], c.R, alpha)
			f.Pix[i+1] = blend(f.Pix[i+1], c.G, alpha)
			f.Pix[i+2] = blend(f.Pix[i+2], c.B, alpha)
			f.Pix[i+3] = 0xff
			i += BytesPerPixel
		}
	}
}

// Blit copies src into f with its top-left corner at (x, y), clipped to
// the destination bounds.
func (f *Framebuffer) Blit(src *Framebuffer, x, y int) {
	dst := Rect{X: x, Y: y, W: src.W, H: src.H}.Intersect(f.Bounds())
	if dst.Empty() {
		return
	}

	srcX := dst.X - x
	srcY := dst.Y - y

	rowLen := dst.W * BytesPerPixel
	for row := 0; row < dst.H; row++ {
		di := ((dst.Y+row)*f.W + dst.X) * BytesPerPixel
		si := ((srcY+row)*src.W + srcX) * BytesPerPixel
		copy(f.Pix[di:di+rowLen], src.Pix[si:si+rowLen])
	}
}

func blend(a, b uint8, alpha float32) uint8 {
	return uint8(float32(a)*(1-alpha) + float32(b)*alpha)
}
