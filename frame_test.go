package cdpilot

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/require"
)

func TestFrameTreeNavigationRemovesStaleChildren(t *testing.T) {
	tree := newFrameTree()
	tree.navigated(&page.Frame{ID: "main", LoaderID: "loader-1", URL: "https://example.com/"})
	tree.attached("child", "main")

	_, ok := tree.get("child")
	require.True(t, ok)

	// A fresh main-frame navigation starts a new document: the old
	// child frame from the prior document is stale and removed.
	tree.navigated(&page.Frame{ID: "main", LoaderID: "loader-2", URL: "https://example.com/other"})

	_, ok = tree.get("child")
	require.False(t, ok)

	main, ok := tree.get("main")
	require.True(t, ok)
	require.Equal(t, cdp.LoaderID("loader-2"), main.LoaderID)
}

func TestFrameTreeLifecycleResetsOnInit(t *testing.T) {
	tree := newFrameTree()
	tree.navigated(&page.Frame{ID: "main", LoaderID: "loader-1"})
	tree.lifecycleEvent("main", "loader-1", "DOMContentLoaded")
	require.True(t, tree.hasLifecycleEvent("main", "DOMContentLoaded"))

	tree.lifecycleEvent("main", "loader-2", "init")
	require.False(t, tree.hasLifecycleEvent("main", "DOMContentLoaded"))

	tree.lifecycleEvent("main", "loader-2", "load")
	require.True(t, tree.hasLifecycleEvent("main", "load"))
}

func TestFrameTreeStoppedLoadingSynthesizesLifecycle(t *testing.T) {
	tree := newFrameTree()
	tree.navigated(&page.Frame{ID: "main", LoaderID: "loader-1"})
	tree.stoppedLoading("main")

	require.True(t, tree.hasLifecycleEvent("main", "DOMContentLoaded"))
	require.True(t, tree.hasLifecycleEvent("main", "load"))
}

func TestNavWatcherWaitsForFreshLoaderBeforeLifecycle(t *testing.T) {
	trees := map[target.SessionID]*frameTree{"sess1": newFrameTree()}
	tree := trees["sess1"]
	tree.navigated(&page.Frame{ID: "main", LoaderID: "loader-1"})

	w := newNavWatcher()
	nw := w.register("sess1", "main", "loader-1", "load")

	// The lifecycle event fires for the SAME loader generation the
	// waiter was registered against: this must not resolve it, since no
	// new navigation has actually started.
	tree.lifecycleEvent("main", "loader-1", "load")
	w.check(trees)
	select {
	case <-nw.done:
		t.Fatal("waiter resolved before a new navigation began")
	default:
	}

	// A fresh navigation (new loader) followed by the lifecycle event
	// resolves the waiter.
	tree.navigated(&page.Frame{ID: "main", LoaderID: "loader-2"})
	tree.lifecycleEvent("main", "loader-2", "load")
	w.check(trees)

	select {
	case err := <-nw.done:
		require.NoError(t, err)
	default:
		t.Fatal("waiter should have resolved")
	}
}

func TestNavWatcherDropSession(t *testing.T) {
	w := newNavWatcher()
	nw := w.register("sess1", "main", "", "load")
	w.dropSession("sess1", ErrTargetGone)

	err := <-nw.done
	require.ErrorIs(t, err, ErrTargetGone)
}
