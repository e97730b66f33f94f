package virtq

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func testLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

func TestQueue(t *testing.T) {
	n := neko.Modern(t)

	n.It("rejects sizes that are not powers of two", func(t *testing.T) {
		_, err := New(3, testLogger())
		require.Equal(t, ErrBadSize, errors.Cause(err))

		_, err = New(0, testLogger())
		require.Equal(t, ErrBadSize, errors.Cause(err))

		q, err := New(4, testLogger())
		require.NoError(t, err)
		require.Equal(t, 4, q.Size())
	})

	n.It("completes a full queue in submission order and accepts a fresh batch", func(t *testing.T) {
		q, err := New(4, testLogger())
		require.NoError(t, err)

		var handles []Handle
		for i := 0; i < 4; i++ {
			h, err := q.Submit([]Message{Out([]byte{byte(i)})})
			require.NoError(t, err)
			handles = append(handles, h)
		}

		require.Equal(t, 0, q.Free())

		dv := q.Device()
		for {
			ch, ok := dv.Pop()
			if !ok {
				break
			}
			require.NoError(t, dv.Push(ch.Head, 0))
		}

		comps := q.PollUsed()
		require.Len(t, comps, 4)
		for i, c := range comps {
			require.Equal(t, handles[i], c.Handle)
			require.NoError(t, q.Reclaim(c.Handle))
		}

		for i := 0; i < 4; i++ {
			_, err := q.Submit([]Message{Out([]byte{byte(i)})})
			require.NoError(t, err)
		}
	})

	n.It("reports backpressure when no free descriptors remain", func(t *testing.T) {
		q, err := New(2, testLogger())
		require.NoError(t, err)

		_, err = q.Submit([]Message{Out([]byte{1})})
		require.NoError(t, err)
		_, err = q.Submit([]Message{Out([]byte{2})})
		require.NoError(t, err)

		_, err = q.Submit([]Message{Out([]byte{3})})
		require.Equal(t, ErrQueueFull, errors.Cause(err))
	})

	n.It("consumes a chain as one unit and completes it as one used entry", func(t *testing.T) {
		q, err := New(4, testLogger())
		require.NoError(t, err)

		h, err := q.Submit([]Message{
			Out([]byte{1, 2}),
			Out([]byte{3, 4}),
			In(4),
		})
		require.NoError(t, err)
		require.Equal(t, 1, q.Free())

		dv := q.Device()
		ch, ok := dv.Pop()
		require.True(t, ok)
		require.Equal(t, h, ch.Head)
		require.Len(t, ch.Segments, 3)
		require.Equal(t, []byte{1, 2, 3, 4}, ch.Bytes())

		written := ch.WriteBack([]byte{9, 8, 7})
		require.Equal(t, 3, written)
		require.NoError(t, dv.Push(ch.Head, 3))

		_, ok = dv.Pop()
		require.False(t, ok)

		comps := q.PollUsed()
		require.Len(t, comps, 1)
		require.Equal(t, h, comps[0].Handle)
		require.Equal(t, uint32(3), comps[0].Len)
		require.Equal(t, []byte{9, 8, 7}, comps[0].Data)

		require.NoError(t, q.Reclaim(h))
		require.Equal(t, 4, q.Free())
	})

	n.It("fails reclaim of a chain already returned to the free list", func(t *testing.T) {
		q, err := New(4, testLogger())
		require.NoError(t, err)

		h, err := q.Submit([]Message{Out([]byte{1})})
		require.NoError(t, err)

		dv := q.Device()
		ch, _ := dv.Pop()
		require.NoError(t, dv.Push(ch.Head, 0))
		require.Len(t, q.PollUsed(), 1)

		require.NoError(t, q.Reclaim(h))
		require.Equal(t, 4, q.Free())

		err = q.Reclaim(h)
		require.Equal(t, ErrNotInFlight, errors.Cause(err))
		require.Equal(t, 4, q.Free())
	})

	n.It("fails reclaim of a chain still held by the device", func(t *testing.T) {
		q, err := New(4, testLogger())
		require.NoError(t, err)

		h, err := q.Submit([]Message{Out([]byte{1})})
		require.NoError(t, err)

		err = q.Reclaim(h)
		require.Equal(t, ErrNotInFlight, errors.Cause(err))
	})

	n.It("drops malformed used entries", func(t *testing.T) {
		q, err := New(4, testLogger())
		require.NoError(t, err)

		_, err = q.Submit([]Message{Out([]byte{1})})
		require.NoError(t, err)

		dv := q.Device()
		ch, _ := dv.Pop()
		require.NoError(t, dv.Push(ch.Head, 0))
		// duplicate completion for the same head
		require.NoError(t, dv.Push(ch.Head, 0))

		comps := q.PollUsed()
		require.Len(t, comps, 1)
	})

	n.It("loses completions when the used ring overflows", func(t *testing.T) {
		q, err := New(2, testLogger())
		require.NoError(t, err)

		_, err = q.Submit([]Message{Out([]byte{1})})
		require.NoError(t, err)
		_, err = q.Submit([]Message{Out([]byte{2})})
		require.NoError(t, err)

		dv := q.Device()
		ch1, _ := dv.Pop()
		ch2, _ := dv.Pop()

		require.NoError(t, dv.Push(ch1.Head, 0))
		require.NoError(t, dv.Push(ch1.Head, 0))

		err = dv.Push(ch2.Head, 0)
		require.Equal(t, ErrRingFull, errors.Cause(err))
	})

	n.It("clamps a used length that exceeds the chain's capacity", func(t *testing.T) {
		q, err := New(4, testLogger())
		require.NoError(t, err)

		h, err := q.Submit([]Message{In(8)})
		require.NoError(t, err)

		dv := q.Device()
		ch, _ := dv.Pop()
		ch.WriteBack([]byte{1, 2, 3, 4, 5, 6, 7, 8})
		require.NoError(t, dv.Push(ch.Head, 5000))

		comps := q.PollUsed()
		require.Len(t, comps, 1)
		require.Equal(t, h, comps[0].Handle)
		require.Equal(t, uint32(8), comps[0].Len)
		require.Len(t, comps[0].Data, 8)

		require.NoError(t, q.Reclaim(h))
	})

	n.It("clamps a used length on a read-only chain to zero", func(t *testing.T) {
		q, err := New(4, testLogger())
		require.NoError(t, err)

		_, err = q.Submit([]Message{Out([]byte{1, 2, 3})})
		require.NoError(t, err)

		dv := q.Device()
		ch, _ := dv.Pop()
		require.NoError(t, dv.Push(ch.Head, 99))

		comps := q.PollUsed()
		require.Len(t, comps, 1)
		require.Equal(t, uint32(0), comps[0].Len)
		require.Empty(t, comps[0].Data)
	})

	n.It("returns device-written bytes for writable buffers", func(t *testing.T) {
		q, err := New(4, testLogger())
		require.NoError(t, err)

		h, err := q.Submit([]Message{In(8)})
		require.NoError(t, err)

		dv := q.Device()
		ch, _ := dv.Pop()
		wrote := ch.WriteBack([]byte{1, 2, 3})
		require.Equal(t, 3, wrote)
		require.NoError(t, dv.Push(ch.Head, 3))

		comps := q.PollUsed()
		require.Len(t, comps, 1)
		require.Equal(t, h, comps[0].Handle)
		require.Equal(t, []byte{1, 2, 3}, comps[0].Data)
	})

	n.Meow()
}
