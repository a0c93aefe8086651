package cdpilot

import (
	"testing"

	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/require"
)

func TestTargetRegistryLifecycle(t *testing.T) {
	r := newTargetRegistry()

	r.discovered(&target.Info{TargetID: "t1", Type: "page", URL: "about:blank"})
	tg, ok := r.byTargetID("t1")
	require.True(t, ok)
	require.Equal(t, TargetDiscovered, tg.State)

	r.attaching("t1")
	tg, _ = r.byTargetID("t1")
	require.Equal(t, TargetAttaching, tg.State)

	r.attached("t1", "sess1", false)
	tg, ok = r.bySessionID("sess1")
	require.True(t, ok)
	require.Equal(t, TargetAttached, tg.State)
	require.Equal(t, target.ID("t1"), tg.TargetID)

	r.detaching("sess1")
	tg, _ = r.byTargetID("t1")
	require.Equal(t, TargetDetaching, tg.State)

	r.detached("sess1")
	_, ok = r.bySessionID("sess1")
	require.False(t, ok)
	tg, _ = r.byTargetID("t1")
	require.Equal(t, TargetDetached, tg.State)

	r.destroyed("t1")
	_, ok = r.byTargetID("t1")
	require.False(t, ok)
}

func TestTargetRegistryDestroyedClearsSession(t *testing.T) {
	r := newTargetRegistry()
	r.discovered(&target.Info{TargetID: "t1"})
	r.attached("t1", "sess1", false)

	r.destroyed("t1")

	_, ok := r.bySessionID("sess1")
	require.False(t, ok)
}

func TestTargetStateString(t *testing.T) {
	require.Equal(t, "attached", TargetAttached.String())
	require.Equal(t, "destroyed", TargetDestroyed.String())
}
