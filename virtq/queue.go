// Package virtq implements the split transport queue every device driver
// uses to exchange buffers with a paravirtualized device: a descriptor
// table, an available ring and a used ring. There are no interrupts
// anywhere; completions are only ever observed by polling, so liveness is
// a function of how often the owner calls PollUsed.
package virtq

import (
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var (
	ErrBadSize     = errors.New("queue size must be a power of two")
	ErrQueueFull   = errors.New("no free descriptors")
	ErrNotInFlight = errors.New("descriptor chain is not awaiting reclaim")
	ErrRingFull    = errors.New("used ring is full")
	ErrEmptyChain  = errors.New("empty descriptor chain")
)

// Handle identifies a submitted descriptor chain by its head index.
type Handle uint16

// Message is one buffer of a submission. Out buffers are device-readable;
// In buffers are device-writable and allocated by the queue.
type Message struct {
	data []byte
	size int
	in   bool
}

func Out(data []byte) Message {
	return Message{data: data}
}

func In(size int) Message {
	return Message{size: size, in: true}
}

// Completion reports one used-ring entry: a finished chain plus whatever
// the device wrote into its writable buffers.
type Completion struct {
	Handle Handle
	Len    uint32
	Data   []byte
}

type usedElem struct {
	head uint16
	len  uint32
}

// Queue is the driver-side half of one transport queue. The device-side
// half is reached through Device(). Exactly one owner submits, polls and
// reclaims; there is no locking because there is no concurrency.
type Queue struct {
	size  uint16
	desc  []descriptor
	state []chainState
	free  []uint16

	avail     []uint16
	availIdx  uint16 // free-running producer index
	availLast uint16 // next entry the device will pop

	used     []usedElem
	usedIdx  uint16 // free-running device index
	usedLast uint16 // next entry the driver will poll

	log hclog.Logger
}

// New builds a queue with a power-of-two descriptor table, as negotiated
// at device setup.
func New(size int, l hclog.Logger) (*Queue, error) {
	if size <= 0 || size&(size-1) != 0 || size > 1<<15 {
		return nil, errors.Wrapf(ErrBadSize, "size=%d", size)
	}

	q := &Queue{
		size:  uint16(size),
		desc:  make([]descriptor, size),
		state: make([]chainState, size),
		free:  make([]uint16, 0, size),
		avail: make([]uint16, size),
		used:  make([]usedElem, size),
		log:   l,
	}

	for i := size - 1; i >= 0; i-- {
		q.free = append(q.free, uint16(i))
	}

	return q, nil
}

func (q *Queue) Size() int {
	return int(q.size)
}

// Free reports how many descriptors remain for submission.
func (q *Queue) Free() int {
	return len(q.free)
}

// Submit places msgs on the available ring as a single descriptor chain
// and returns the chain's handle. ErrQueueFull is backpressure: the
// caller drops or retries next iteration, it is not propagated upward.
func (q *Queue) Submit(msgs []Message) (Handle, error) {
	if len(msgs) == 0 {
		return 0, ErrEmptyChain
	}

	if len(msgs) > len(q.free) {
		return 0, errors.Wrapf(ErrQueueFull, "need=%d free=%d", len(msgs), len(q.free))
	}

	idx := make([]uint16, len(msgs))
	for i := range msgs {
		idx[i] = q.free[len(q.free)-1]
		q.free = q.free[:len(q.free)-1]
	}

	for i, m := range msgs {
		d := &q.desc[idx[i]]
		d.flags = 0
		d.next = 0

		if m.in {
			d.data = make([]byte, m.size)
			d.flags |= flagWrite
		} else {
			d.data = m.data
		}

		if i+1 < len(msgs) {
			d.flags |= flagNext
			d.next = idx[i+1]
		}
	}

	head := idx[0]
	q.state[head] = stateAvail
	for _, i := range idx[1:] {
		q.state[i] = stateChained
	}

	q.avail[q.availIdx%q.size] = head
	q.availIdx++

	return Handle(head), nil
}

// PollUsed drains the used ring. It never blocks: zero completions just
// means the device has not finished anything since the last poll.
// Completions come back in device completion order, which for a
// well-behaved device is submission order, each chain exactly once.
func (q *Queue) PollUsed() []Completion {
	var out []Completion

	for q.usedLast != q.usedIdx {
		e := q.used[q.usedLast%q.size]
		q.usedLast++

		// A used entry must reference the head of a chain the device
		// actually holds. Anything else is a device bug: log and drop.
		if e.head >= q.size || q.state[e.head] != stateAvail {
			q.log.Warn("dropping malformed used entry", "head", e.head, "len", e.len)
			continue
		}

		q.state[e.head] = stateComplete

		c := Completion{Handle: Handle(e.head), Len: e.len}

		var writable uint32
		remain := e.len
		for i := e.head; ; {
			d := &q.desc[i]

			if d.flags&flagWrite != 0 {
				writable += uint32(len(d.data))
				if remain > 0 {
					n := uint32(len(d.data))
					if n > remain {
						n = remain
					}
					c.Data = append(c.Data, d.data[:n]...)
					remain -= n
				}
			}

			if d.flags&flagNext == 0 {
				break
			}
			i = d.next
		}

		// A device may not report more bytes than the chain can hold.
		// Clamp rather than trust it; callers index buffers by Len.
		if c.Len > writable {
			q.log.Warn("clamping oversized used length", "head", e.head,
				"len", c.Len, "capacity", writable)
			c.Len = writable
		}

		out = append(out, c)
	}

	return out
}

// Reclaim returns a completed chain to the free list. Reclaiming a handle
// that is not awaiting reclaim (already freed, still with the device, or
// not a chain head) fails with ErrNotInFlight and leaves the free list
// untouched.
func (q *Queue) Reclaim(h Handle) error {
	if uint16(h) >= q.size || q.state[h] != stateComplete {
		return errors.Wrapf(ErrNotInFlight, "handle=%d", h)
	}

	for i := uint16(h); ; {
		d := &q.desc[i]

		q.state[i] = stateFree
		q.free = append(q.free, i)
		d.data = nil

		hasNext := d.flags&flagNext != 0
		next := d.next
		d.flags = 0
		d.next = 0

		if !hasNext {
			break
		}
		i = next
	}

	return nil
}
