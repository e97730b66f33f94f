// Package net drives the paravirtual network device. The kernel owns no
// protocol state: received frames go straight up to an external protocol
// stack, and the stack's outbound frames go straight down to the transmit
// queue. Reliability is entirely the stack's problem; this driver drops
// on backpressure.
package net

import (
	"github.com/Askannz/munal-os/virtq"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	// HeaderSize is the paravirtual net header prepended to every packet
	// on both queues.
	HeaderSize = 12
	// MaxFrameSize is the largest ethernet frame carried on either queue.
	MaxFrameSize = 1514
)

var (
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrTxBackpressure = errors.New("transmit queue full, frame dropped")
)

// FrameStack is the narrow face of the external protocol stack: raw
// frames in, raw frames out.
type FrameStack interface {
	HandleFrame(frame []byte)
	PollOutbound() ([]byte, bool)
}

type Driver struct {
	rx, tx  *virtq.Queue
	mac     [6]byte
	mtu     int
	txDrops uint64
	log     hclog.Logger
}

// New primes the receive queue with packet buffers. mtu <= 0 selects the
// transport maximum.
func New(rx, tx *virtq.Queue, mac [6]byte, mtu int, l hclog.Logger) (*Driver, error) {
	if mtu <= 0 || mtu > MaxFrameSize {
		mtu = MaxFrameSize
	}

	d := &Driver{rx: rx, tx: tx, mac: mac, mtu: mtu, log: l}

	for rx.Free() > 0 {
		if _, err := rx.Submit([]virtq.Message{virtq.In(HeaderSize + MaxFrameSize)}); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (d *Driver) MAC() [6]byte {
	return d.mac
}

func (d *Driver) MTU() int {
	return d.mtu
}

// TxDrops counts frames dropped to transmit backpressure since start.
func (d *Driver) TxDrops() uint64 {
	return d.txDrops
}

// Pump runs one polling pass: received frames go up to the stack, frames
// the stack wants out go down to the transmit queue. Latency in both
// directions is bounded below by the event-loop iteration period.
func (d *Driver) Pump(stack FrameStack) {
	d.pollReceive(stack)
	d.reclaimTransmitted()

	for {
		frame, ok := stack.PollOutbound()
		if !ok {
			break
		}

		if err := d.TransmitFrame(frame); err != nil {
			if errors.Cause(err) == ErrTxBackpressure {
				d.log.Debug("transmit backpressure", "drops", d.txDrops)
			} else {
				d.log.Warn("transmit failed", "error", err)
			}
			break
		}
	}
}

// TransmitFrame submits one frame as a header+payload chain. A full queue
// drops the frame; the stack's own reliability layer is expected to
// retry, this driver never does.
func (d *Driver) TransmitFrame(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "len=%d", len(frame))
	}

	hdr := make([]byte, HeaderSize)
	payload := make([]byte, len(frame))
	copy(payload, frame)

	_, err := d.tx.Submit([]virtq.Message{virtq.Out(hdr), virtq.Out(payload)})
	if err != nil {
		if errors.Cause(err) == virtq.ErrQueueFull {
			d.txDrops++
			return errors.Wrapf(ErrTxBackpressure, "len=%d", len(frame))
		}
		return err
	}

	return nil
}

func (d *Driver) pollReceive(stack FrameStack) {
	for _, c := range d.rx.PollUsed() {
		if int(c.Len) > HeaderSize {
			frame := make([]byte, int(c.Len)-HeaderSize)
			copy(frame, c.Data[HeaderSize:c.Len])
			stack.HandleFrame(frame)
		}

		if err := d.rx.Reclaim(c.Handle); err != nil {
			d.log.Warn("rx reclaim failed", "error", err)
			continue
		}

		if _, err := d.rx.Submit([]virtq.Message{virtq.In(HeaderSize + MaxFrameSize)}); err != nil {
			d.log.Warn("failed to re-arm receive buffer", "error", err)
		}
	}
}

func (d *Driver) reclaimTransmitted() {
	for _, c := range d.tx.PollUsed() {
		if err := d.tx.Reclaim(c.Handle); err != nil {
			d.log.Warn("tx reclaim failed", "error", err)
		}
	}
}
