// Package sim provides in-process device backends: the device-side halves
// of the transport queues, standing in for a host hypervisor. They serve
// the hosted platform in cmd/munal and the driver tests; real hardware is
// out of scope beyond the paravirtualized transport.
package sim

import (
	"encoding/binary"

	"github.com/Askannz/munal-os/device/net"
	"github.com/Askannz/munal-os/virtq"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// InputBackend feeds synthetic raw reports into an input queue.
type InputBackend struct {
	dv  *virtq.DeviceView
	log hclog.Logger
}

func NewInputBackend(q *virtq.Queue, l hclog.Logger) *InputBackend {
	return &InputBackend{dv: q.Device(), log: l}
}

func (b *InputBackend) Key(code uint16, pressed bool) bool {
	return b.inject(0x01, code, boolVal(pressed))
}

func (b *InputBackend) Button(n uint16, pressed bool) bool {
	return b.inject(0x01, 0x110+n, boolVal(pressed))
}

// PointerMove injects a relative motion report per axis.
func (b *InputBackend) PointerMove(dx, dy int32) {
	if dx != 0 {
		b.inject(0x02, 0, uint32(dx))
	}
	if dy != 0 {
		b.inject(0x02, 1, uint32(dy))
	}
}

func (b *InputBackend) inject(typ, code uint16, value uint32) bool {
	ch, ok := b.dv.Pop()
	if !ok {
		b.log.Debug("no report buffer free, event lost")
		return false
	}

	var raw [8]byte
	binary.LittleEndian.PutUint16(raw[0:2], typ)
	binary.LittleEndian.PutUint16(raw[2:4], code)
	binary.LittleEndian.PutUint32(raw[4:8], value)

	n := ch.WriteBack(raw[:])
	if err := b.dv.Push(ch.Head, uint32(n)); err != nil {
		b.log.Warn("input completion lost", "error", err)
		return false
	}

	return true
}

func boolVal(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// GPUBackend acknowledges scan-out submissions and keeps the last frame.
type GPUBackend struct {
	dv     *virtq.DeviceView
	last   []byte
	frames uint64
}

func NewGPUBackend(q *virtq.Queue) *GPUBackend {
	return &GPUBackend{dv: q.Device()}
}

// Step consumes every pending scan-out submission.
func (b *GPUBackend) Step() {
	for {
		ch, ok := b.dv.Pop()
		if !ok {
			return
		}

		b.last = append(b.last[:0], ch.Bytes()...)
		b.frames++
		_ = b.dv.Push(ch.Head, 0)
	}
}

func (b *GPUBackend) Frames() uint64 {
	return b.frames
}

// LastFrame returns the most recently scanned-out pixels.
func (b *GPUBackend) LastFrame() []byte {
	return b.last
}

// NetBackend loops transmitted frames back into the receive queue,
// standing in for a host-side switch during bring-up.
type NetBackend struct {
	rx, tx *virtq.DeviceView
	log    hclog.Logger
}

func NewNetBackend(rxq, txq *virtq.Queue, l hclog.Logger) *NetBackend {
	return &NetBackend{rx: rxq.Device(), tx: txq.Device(), log: l}
}

// Step completes pending transmissions and echoes their frames back.
func (b *NetBackend) Step() {
	for {
		ch, ok := b.tx.Pop()
		if !ok {
			return
		}

		pkt := ch.Bytes()
		_ = b.tx.Push(ch.Head, 0)

		if len(pkt) > net.HeaderSize {
			b.Deliver(pkt[net.HeaderSize:])
		}
	}
}

// Deliver injects a frame into the receive queue.
func (b *NetBackend) Deliver(frame []byte) bool {
	ch, ok := b.rx.Pop()
	if !ok {
		b.log.Debug("no receive buffer free, frame lost")
		return false
	}

	pkt := make([]byte, net.HeaderSize+len(frame))
	copy(pkt[net.HeaderSize:], frame)

	n := ch.WriteBack(pkt)
	if err := b.rx.Push(ch.Head, uint32(n)); err != nil {
		b.log.Warn("receive completion lost", "error", err)
		return false
	}

	return true
}

// NullStack satisfies the protocol-stack interfaces with no protocol
// behavior. The real TCP/IP stack is an external collaborator wired in by
// the embedder.
type NullStack struct{}

var ErrNoStack = errors.New("no protocol stack attached")

func (NullStack) HandleFrame([]byte) {}

func (NullStack) PollOutbound() ([]byte, bool) {
	return nil, false
}

func (NullStack) Connect(ip [4]byte, port uint16) (int32, error) {
	return -1, ErrNoStack
}

func (NullStack) MaySend(handle int32) bool { return false }
func (NullStack) MayRecv(handle int32) bool { return false }

func (NullStack) Read(handle int32, b []byte) (int, error) {
	return 0, ErrNoStack
}

func (NullStack) Write(handle int32, b []byte) (int, error) {
	return 0, ErrNoStack
}

func (NullStack) Close(handle int32) error {
	return nil
}
