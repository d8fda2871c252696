package lifecycle_test

import (
	"testing"

	"github.com/jrsteele09/go-session-client/lifecycle"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishAndRemove(t *testing.T) {
	bus := lifecycle.NewBus(true)
	require.True(t, bus.IsNative())

	var got []bool
	sub, err := bus.AddStateListener(func(active bool) { got = append(got, active) })
	require.NoError(t, err)
	require.Equal(t, 1, bus.ListenerCount())

	bus.Publish(lifecycle.StateChange{IsActive: true})
	bus.Publish(lifecycle.StateChange{IsActive: false})
	require.Equal(t, []bool{true, false}, got)

	require.NoError(t, sub.Remove())
	require.Error(t, sub.Remove())
	require.Zero(t, bus.ListenerCount())

	bus.Publish(lifecycle.StateChange{IsActive: true})
	require.Len(t, got, 2)
}

func TestBus_RejectsNilListener(t *testing.T) {
	_, err := lifecycle.NewBus(false).AddStateListener(nil)
	require.Error(t, err)
}
