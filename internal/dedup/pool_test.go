package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveEmitsOncePerConnection(t *testing.T) {
	p := NewPool()

	require.Equal(t, Emit, p.Observe("conn-1", true, true))
	require.Equal(t, Suppressed, p.Observe("conn-1", true, true))
	require.True(t, p.IsPending("conn-1"))

	require.Equal(t, Cleared, p.Observe("conn-1", false, false))
	require.False(t, p.IsPending("conn-1"))
	require.Zero(t, p.Len())
}

func TestObserveIgnoresConnectingLegs(t *testing.T) {
	p := NewPool()

	require.Equal(t, Ignored, p.Observe("conn-1", false, true))
	require.Equal(t, Ignored, p.Observe("conn-1", false, false))
	require.Equal(t, Ignored, p.Observe("", true, true))
	require.Zero(t, p.Len())
}

func TestReconnectAfterClearEmitsAgain(t *testing.T) {
	p := NewPool()

	require.Equal(t, Emit, p.Observe("conn-1", true, true))
	require.Equal(t, Cleared, p.Observe("conn-1", false, false))
	require.Equal(t, Emit, p.Observe("conn-1", true, true))
}

func TestPoolTracksIndependentConnections(t *testing.T) {
	p := NewPool()
	p.MarkPending("a")
	p.MarkPending("b")
	p.Clear("a")

	require.False(t, p.IsPending("a"))
	require.True(t, p.IsPending("b"))
	require.Equal(t, 1, p.Len())
}
