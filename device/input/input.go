// Package input drives the paravirtual keyboard/mouse device: one event
// queue of fixed 8-byte raw reports, decoded into normalized events the
// event loop routes to guests.
package input

import (
	"encoding/binary"

	"github.com/Askannz/munal-os/abi"
	"github.com/Askannz/munal-os/virtq"
	hclog "github.com/hashicorp/go-hclog"
)

// raw report layout, little-endian: type u16, code u16, value u32.
const rawEventSize = 8

// raw report types.
const (
	rawTypeKey = 0x01
	rawTypeRel = 0x02
	rawTypeAbs = 0x03
)

// key codes at or above this are pointer buttons.
const buttonBase = 0x110

// pendingCap bounds the decoded event queue. When the consumer falls
// behind, the oldest events are dropped; order of the rest is preserved.
const pendingCap = 256

type Driver struct {
	q       *virtq.Queue
	pending []abi.InputEvent
	dropped uint64
	log     hclog.Logger
}

// New primes the event queue with device-writable report buffers. The
// caller must Poll every loop iteration or reports are lost in the ring.
func New(q *virtq.Queue, l hclog.Logger) (*Driver, error) {
	d := &Driver{q: q, log: l}

	for q.Free() > 0 {
		if _, err := q.Submit([]virtq.Message{virtq.In(rawEventSize)}); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Poll drains completed reports, decodes them and re-arms the buffers.
func (d *Driver) Poll() {
	for _, c := range d.q.PollUsed() {
		if int(c.Len) >= rawEventSize {
			if ev, ok := decode(c.Data[:rawEventSize]); ok {
				d.push(ev)
			}
		}

		if err := d.q.Reclaim(c.Handle); err != nil {
			d.log.Warn("input reclaim failed", "error", err)
			continue
		}

		if _, err := d.q.Submit([]virtq.Message{virtq.In(rawEventSize)}); err != nil {
			d.log.Warn("failed to re-arm input buffer", "error", err)
		}
	}
}

// Drain returns pending events in arrival order and clears the queue.
func (d *Driver) Drain() []abi.InputEvent {
	evs := d.pending
	d.pending = nil
	return evs
}

// Dropped counts events lost to queue overflow since start.
func (d *Driver) Dropped() uint64 {
	return d.dropped
}

func (d *Driver) push(ev abi.InputEvent) {
	if len(d.pending) >= pendingCap {
		copy(d.pending, d.pending[1:])
		d.pending = d.pending[:len(d.pending)-1]
		d.dropped++
		d.log.Debug("input queue overflow, dropping oldest event", "dropped", d.dropped)
	}

	d.pending = append(d.pending, ev)
}

func decode(b []byte) (abi.InputEvent, bool) {
	typ := binary.LittleEndian.Uint16(b[0:2])
	code := binary.LittleEndian.Uint16(b[2:4])
	value := int32(binary.LittleEndian.Uint32(b[4:8]))

	switch typ {
	case rawTypeKey:
		if code >= buttonBase {
			return abi.InputEvent{Kind: abi.EventButton, Code: code - buttonBase, Value: value}, true
		}
		return abi.InputEvent{Kind: abi.EventKey, Code: code, Value: value}, true

	case rawTypeRel:
		switch code {
		case 0:
			return abi.InputEvent{Kind: abi.EventRelX, Value: value}, true
		case 1:
			return abi.InputEvent{Kind: abi.EventRelY, Value: value}, true
		}

	case rawTypeAbs:
		switch code {
		case 0:
			return abi.InputEvent{Kind: abi.EventAbsX, Value: value}, true
		case 1:
			return abi.InputEvent{Kind: abi.EventAbsY, Value: value}, true
		}
	}

	return abi.InputEvent{}, false
}
