package cdpilot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommandRegistryRegisterResolve(t *testing.T) {
	r := newCommandRegistry()
	id, pc := r.register("session-1", 0)
	require.Equal(t, uint64(1), id)
	require.False(t, pc.hasDeadline)

	r.resolve(id, nil, nil)
	res := <-pc.result
	require.NoError(t, res.err)

	// A second resolve for the same (now-removed) id is a silent no-op.
	r.resolve(id, nil, ErrCancelled)
}

func TestCommandRegistryExpiry(t *testing.T) {
	r := newCommandRegistry()
	id, pc := r.register("", time.Millisecond)
	require.True(t, pc.hasDeadline)

	time.Sleep(5 * time.Millisecond)
	expired := r.expired(time.Now())
	require.Contains(t, expired, id)

	r.resolve(id, nil, ErrTimeout)
	res := <-pc.result
	require.ErrorIs(t, res.err, ErrTimeout)
}

func TestCommandRegistryDrain(t *testing.T) {
	r := newCommandRegistry()
	_, pc1 := r.register("a", 0)
	_, pc2 := r.register("b", 0)

	r.drain(ErrTransportClosed)

	res1 := <-pc1.result
	res2 := <-pc2.result
	require.ErrorIs(t, res1.err, ErrTransportClosed)
	require.ErrorIs(t, res2.err, ErrTransportClosed)
}

func TestCommandRegistrySessionCommands(t *testing.T) {
	r := newCommandRegistry()
	id1, _ := r.register("sess-a", 0)
	_, _ = r.register("sess-b", 0)
	id3, _ := r.register("sess-a", 0)

	ids := r.sessionCommands("sess-a")
	require.ElementsMatch(t, []uint64{id1, id3}, ids)
}

func TestCommandRegistryNextDeadline(t *testing.T) {
	r := newCommandRegistry()
	_, ok := r.nextDeadline()
	require.False(t, ok)

	r.register("", 50*time.Millisecond)
	r.register("", 10*time.Millisecond)

	d, ok := r.nextDeadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), d, 20*time.Millisecond)
}
