package net

import (
	"testing"

	"github.com/Askannz/munal-os/virtq"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

type scriptStack struct {
	received [][]byte
	outbound [][]byte
}

func (s *scriptStack) HandleFrame(frame []byte) {
	s.received = append(s.received, frame)
}

func (s *scriptStack) PollOutbound() ([]byte, bool) {
	if len(s.outbound) == 0 {
		return nil, false
	}
	f := s.outbound[0]
	s.outbound = s.outbound[1:]
	return f, true
}

var testMAC = [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}

func TestNetDriver(t *testing.T) {
	n := neko.Modern(t)

	l := hclog.NewNullLogger()

	n.It("hands received frames to the protocol stack", func(t *testing.T) {
		rx, err := virtq.New(8, l)
		require.NoError(t, err)
		tx, err := virtq.New(8, l)
		require.NoError(t, err)

		d, err := New(rx, tx, testMAC, 1500, l)
		require.NoError(t, err)

		frame := []byte{0xde, 0xad, 0xbe, 0xef}

		// device side: fill one receive buffer
		dv := rx.Device()
		ch, ok := dv.Pop()
		require.True(t, ok)
		pkt := make([]byte, HeaderSize+len(frame))
		copy(pkt[HeaderSize:], frame)
		require.Equal(t, len(pkt), ch.WriteBack(pkt))
		require.NoError(t, dv.Push(ch.Head, uint32(len(pkt))))

		stack := &scriptStack{}
		d.Pump(stack)

		require.Len(t, stack.received, 1)
		require.Equal(t, frame, stack.received[0])

		// the buffer was re-armed
		require.Equal(t, 0, rx.Free())
	})

	n.It("survives a device reporting more bytes than the buffer holds", func(t *testing.T) {
		rx, err := virtq.New(8, l)
		require.NoError(t, err)
		tx, err := virtq.New(8, l)
		require.NoError(t, err)

		d, err := New(rx, tx, testMAC, 1500, l)
		require.NoError(t, err)

		dv := rx.Device()
		ch, ok := dv.Pop()
		require.True(t, ok)
		require.NoError(t, dv.Push(ch.Head, 5000))

		stack := &scriptStack{}
		d.Pump(stack)

		// delivered at most the buffer's capacity, loop intact
		require.Len(t, stack.received, 1)
		require.Len(t, stack.received[0], MaxFrameSize)
	})

	n.It("transmits outbound frames as header+payload chains", func(t *testing.T) {
		rx, err := virtq.New(8, l)
		require.NoError(t, err)
		tx, err := virtq.New(8, l)
		require.NoError(t, err)

		d, err := New(rx, tx, testMAC, 1500, l)
		require.NoError(t, err)

		frame := []byte{1, 2, 3, 4, 5}
		stack := &scriptStack{outbound: [][]byte{frame}}
		d.Pump(stack)

		dv := tx.Device()
		ch, ok := dv.Pop()
		require.True(t, ok)
		require.Len(t, ch.Segments, 2)

		pkt := ch.Bytes()
		require.Len(t, pkt, HeaderSize+len(frame))
		require.Equal(t, frame, pkt[HeaderSize:])
	})

	n.It("drops frames on transmit backpressure", func(t *testing.T) {
		rx, err := virtq.New(8, l)
		require.NoError(t, err)
		// two descriptors: exactly one header+payload chain fits
		tx, err := virtq.New(2, l)
		require.NoError(t, err)

		d, err := New(rx, tx, testMAC, 1500, l)
		require.NoError(t, err)

		require.NoError(t, d.TransmitFrame([]byte{1}))

		err = d.TransmitFrame([]byte{2})
		require.Equal(t, ErrTxBackpressure, errors.Cause(err))
		require.Equal(t, uint64(1), d.TxDrops())
	})

	n.It("rejects oversized frames", func(t *testing.T) {
		rx, err := virtq.New(8, l)
		require.NoError(t, err)
		tx, err := virtq.New(8, l)
		require.NoError(t, err)

		d, err := New(rx, tx, testMAC, 1500, l)
		require.NoError(t, err)

		err = d.TransmitFrame(make([]byte, MaxFrameSize+1))
		require.Equal(t, ErrFrameTooLarge, errors.Cause(err))
	})

	n.Meow()
}
