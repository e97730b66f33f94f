package virtq

import "github.com/pkg/errors"

// Segment is one buffer of a chain as seen from the device.
type Segment struct {
	Data           []byte
	DeviceWritable bool
}

// Chain is a descriptor chain popped from the available ring. The device
// consumes it as a single unit and completes it with one used entry.
type Chain struct {
	Head     Handle
	Segments []Segment
}

// Bytes concatenates the device-readable segments.
func (c Chain) Bytes() []byte {
	var out []byte
	for _, s := range c.Segments {
		if !s.DeviceWritable {
			out = append(out, s.Data...)
		}
	}
	return out
}

// WriteBack copies b into the chain's device-writable segments in order
// and returns the number of bytes that fit.
func (c Chain) WriteBack(b []byte) int {
	written := 0
	for _, s := range c.Segments {
		if !s.DeviceWritable {
			continue
		}
		n := copy(s.Data, b[written:])
		written += n
		if written == len(b) {
			break
		}
	}
	return written
}

// DeviceView is the device-side half of a queue. Exactly one device owns
// it: it pops chains off the available ring and pushes completions onto
// the used ring.
type DeviceView struct {
	q *Queue
}

func (q *Queue) Device() *DeviceView {
	return &DeviceView{q: q}
}

// Pop consumes the next available chain, in submission order.
func (dv *DeviceView) Pop() (Chain, bool) {
	q := dv.q

	if q.availLast == q.availIdx {
		return Chain{}, false
	}

	head := q.avail[q.availLast%q.size]
	q.availLast++

	c := Chain{Head: Handle(head)}
	for i := head; ; {
		d := &q.desc[i]
		c.Segments = append(c.Segments, Segment{
			Data:           d.data,
			DeviceWritable: d.flags&flagWrite != 0,
		})
		if d.flags&flagNext == 0 {
			break
		}
		i = d.next
	}

	return c, true
}

// Push completes a chain; length is the number of bytes written into its
// writable buffers. The ring is fixed-size: if the driver does not poll
// fast enough the completion is lost, mirroring the wire transport.
func (dv *DeviceView) Push(h Handle, length uint32) error {
	q := dv.q

	if q.usedIdx-q.usedLast >= q.size {
		q.log.Warn("used ring overflow, completion lost", "handle", h)
		return errors.Wrapf(ErrRingFull, "handle=%d", h)
	}

	q.used[q.usedIdx%q.size] = usedElem{head: uint16(h), len: length}
	q.usedIdx++

	return nil
}
