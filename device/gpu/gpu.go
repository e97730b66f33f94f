// Package gpu drives the display scan-out queue. The discipline is
// strictly single-buffered: a new frame is only submitted once the device
// has returned the previous one, so the display latency floor is one
// event-loop iteration.
package gpu

import (
	"github.com/Askannz/munal-os/gfx"
	"github.com/Askannz/munal-os/virtq"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var (
	ErrFrameInFlight = errors.New("previous frame not yet reclaimed")
	ErrBadFrame      = errors.New("framebuffer does not match display dimensions")
)

type Driver struct {
	q        *virtq.Queue
	w, h     int
	scanout  []byte
	inflight bool
	pending  virtq.Handle
	frames   uint64
	log      hclog.Logger
}

func New(q *virtq.Queue, w, h int, l hclog.Logger) (*Driver, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.Wrapf(ErrBadFrame, "w=%d h=%d", w, h)
	}

	return &Driver{
		q:       q,
		w:       w,
		h:       h,
		scanout: make([]byte, w*h*gfx.BytesPerPixel),
		log:     l,
	}, nil
}

func (d *Driver) Dims() (int, int) {
	return d.w, d.h
}

// Frames counts accepted scan-out submissions since start.
func (d *Driver) Frames() uint64 {
	return d.frames
}

// Flush copies fb into the scan-out buffer and submits it. If the device
// still holds the previous frame the call fails with ErrFrameInFlight;
// the caller skips this frame and retries next iteration.
func (d *Driver) Flush(fb *gfx.Framebuffer) error {
	d.reclaim()

	if d.inflight {
		return ErrFrameInFlight
	}

	if fb.W != d.w || fb.H != d.h {
		return errors.Wrapf(ErrBadFrame, "got=%dx%d want=%dx%d", fb.W, fb.H, d.w, d.h)
	}

	copy(d.scanout, fb.Pix)

	h, err := d.q.Submit([]virtq.Message{virtq.Out(d.scanout)})
	if err != nil {
		return errors.Wrap(err, "submitting scan-out frame")
	}

	d.pending = h
	d.inflight = true
	d.frames++

	return nil
}

func (d *Driver) reclaim() {
	for _, c := range d.q.PollUsed() {
		if err := d.q.Reclaim(c.Handle); err != nil {
			d.log.Warn("scan-out reclaim failed", "error", err)
			continue
		}
		if c.Handle == d.pending {
			d.inflight = false
		}
	}
}
