package gfx

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func pixelAt(f *Framebuffer, x, y int) Color {
	i := (y*f.W + x) * BytesPerPixel
	return Color{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2], A: f.Pix[i+3]}
}

func TestFramebuffer(t *testing.T) {
	n := neko.Modern(t)

	red := Color{R: 0xff, A: 0xff}

	n.It("rejects pixel buffers that do not match their dimensions", func(t *testing.T) {
		_, err := FromBytes(make([]byte, 10), 4, 4)
		require.Error(t, err)

		_, err = FromBytes(make([]byte, 4*4*BytesPerPixel), 0, 4)
		require.Error(t, err)

		fb, err := FromBytes(make([]byte, 4*4*BytesPerPixel), 4, 4)
		require.NoError(t, err)
		require.Equal(t, 4, fb.W)
	})

	n.It("copies the source buffer in FromBytes", func(t *testing.T) {
		src := make([]byte, 2*2*BytesPerPixel)
		fb, err := FromBytes(src, 2, 2)
		require.NoError(t, err)

		src[0] = 0xff
		require.Equal(t, byte(0), fb.Pix[0])
	})

	n.It("clips fills to the framebuffer", func(t *testing.T) {
		fb := New(8, 8)
		fb.FillRect(Rect{X: 6, Y: 6, W: 10, H: 10}, red, 1)

		require.Equal(t, red, pixelAt(fb, 7, 7))
		require.Equal(t, Color{}, pixelAt(fb, 5, 5))
	})

	n.It("ignores fills entirely outside the framebuffer", func(t *testing.T) {
		fb := New(8, 8)
		fb.FillRect(Rect{X: 100, Y: 100, W: 4, H: 4}, red, 1)

		for _, b := range fb.Pix {
			require.Equal(t, byte(0), b)
		}
	})

	n.It("clips blits on every edge", func(t *testing.T) {
		src := New(4, 4)
		src.Clear(red)

		fb := New(8, 8)
		fb.Blit(src, -2, -2) // top-left corner clipped

		require.Equal(t, red, pixelAt(fb, 0, 0))
		require.Equal(t, red, pixelAt(fb, 1, 1))
		require.Equal(t, Color{}, pixelAt(fb, 2, 2))

		fb2 := New(8, 8)
		fb2.Blit(src, 6, 6) // bottom-right corner clipped
		require.Equal(t, red, pixelAt(fb2, 7, 7))
		require.Equal(t, Color{}, pixelAt(fb2, 5, 5))
	})

	n.It("requires matching dimensions in CopyFrom", func(t *testing.T) {
		fb := New(8, 8)
		require.Error(t, fb.CopyFrom(New(4, 4)))
		require.NoError(t, fb.CopyFrom(New(8, 8)))
	})

	n.It("intersects rectangles", func(t *testing.T) {
		a := Rect{X: 0, Y: 0, W: 10, H: 10}
		b := Rect{X: 5, Y: 5, W: 10, H: 10}

		require.Equal(t, Rect{X: 5, Y: 5, W: 5, H: 5}, a.Intersect(b))
		require.True(t, a.Intersect(Rect{X: 20, Y: 20, W: 5, H: 5}).Empty())
	})

	n.Meow()
}
