package sandbox

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestTraps(t *testing.T) {
	n := neko.Modern(t)

	n.It("classifies wrapped traps", func(t *testing.T) {
		trap := &TrapError{Reason: "out of bounds memory access"}
		require.True(t, IsTrap(trap))
		require.True(t, IsTrap(errors.Wrap(trap, "stepping guest")))

		require.False(t, IsTrap(errors.New("plain failure")))
		require.False(t, IsTrap(ErrNoEntry))
	})

	n.It("prints the trap reason", func(t *testing.T) {
		trap := &TrapError{Reason: "unreachable"}
		require.Equal(t, "guest trap: unreachable", trap.Error())
	})

	n.Meow()
}
