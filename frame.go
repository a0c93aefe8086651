package cdpilot

import (
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
)

// Frame is one node of a target's frame forest, tracked from the Page
// domain's lifecycle events.
type Frame struct {
	ID       cdp.FrameID
	ParentID cdp.FrameID
	LoaderID cdp.LoaderID
	URL      string
	Name     string
	Children map[cdp.FrameID]struct{}

	// Lifecycle holds the lifecycle event names observed for the frame's
	// current LoaderID ("init", "DOMContentLoaded", "load",
	// "networkAlmostIdle", "networkIdle", ...). It resets whenever the
	// frame starts a new navigation.
	Lifecycle map[string]struct{}
}

func newFrame(id, parentID cdp.FrameID) *Frame {
	return &Frame{
		ID:        id,
		ParentID:  parentID,
		Children:  make(map[cdp.FrameID]struct{}),
		Lifecycle: make(map[string]struct{}),
	}
}

// frameTree is one target's frame forest, owned by the Handler goroutine.
type frameTree struct {
	mainFrameID cdp.FrameID
	frames      map[cdp.FrameID]*Frame
}

func newFrameTree() *frameTree {
	return &frameTree{frames: make(map[cdp.FrameID]*Frame)}
}

func (t *frameTree) get(id cdp.FrameID) (*Frame, bool) {
	f, ok := t.frames[id]
	return f, ok
}

func (t *frameTree) ensure(id, parentID cdp.FrameID) *Frame {
	f, ok := t.frames[id]
	if !ok {
		f = newFrame(id, parentID)
		t.frames[id] = f
		if parentID != "" {
			if parent, ok := t.frames[parentID]; ok {
				parent.Children[id] = struct{}{}
			}
		}
	}
	return f
}

// attached applies a Page.frameAttached event.
func (t *frameTree) attached(id, parentID cdp.FrameID) {
	t.ensure(id, parentID)
}

// detached applies a Page.frameDetached event: the frame and its
// descendants are removed from the tree.
func (t *frameTree) detached(id cdp.FrameID) {
	t.removeRecursive(id)
}

func (t *frameTree) removeRecursive(id cdp.FrameID) {
	f, ok := t.frames[id]
	if !ok {
		return
	}
	for child := range f.Children {
		t.removeRecursive(child)
	}
	if f.ParentID != "" {
		if parent, ok := t.frames[f.ParentID]; ok {
			delete(parent.Children, id)
		}
	}
	delete(t.frames, id)
}

// navigated applies a Page.frameNavigated event. A main-frame navigation
// (frame.ParentId == "") starts a fresh loader generation: any children
// from the prior document are stale and are removed, mirroring how
// chromiumoxide's FrameManager treats main-frame navigation as a document
// boundary.
func (t *frameTree) navigated(frame *cdp.Frame) {
	isMain := frame.ParentID == ""
	if isMain {
		t.mainFrameID = frame.ID
	}
	f, existed := t.frames[frame.ID]
	if !existed {
		f = newFrame(frame.ID, frame.ParentID)
		t.frames[frame.ID] = f
	} else if isMain {
		for child := range f.Children {
			t.removeRecursive(child)
		}
	}
	f.URL = frame.URL
	f.Name = frame.Name
	f.LoaderID = frame.LoaderID
	f.Lifecycle = make(map[string]struct{})
}

// navigatedWithinDocument applies a Page.navigatedWithinDocument event
// (history.pushState/fragment navigation): the URL changes but the loader
// generation and lifecycle state do not.
func (t *frameTree) navigatedWithinDocument(id cdp.FrameID, url string) {
	if f, ok := t.frames[id]; ok {
		f.URL = url
	}
}

// lifecycleEvent applies a Page.lifecycleEvent. A "init" event starts a new
// loader generation for the frame (its LoaderID may arrive in this event
// before the corresponding frameNavigated, depending on event ordering), so
// lifecycle state is reset at that point too.
func (t *frameTree) lifecycleEvent(id cdp.FrameID, loaderID cdp.LoaderID, name string) {
	f, ok := t.frames[id]
	if !ok {
		f = t.ensure(id, "")
	}
	if name == "init" && f.LoaderID != loaderID {
		f.LoaderID = loaderID
		f.Lifecycle = make(map[string]struct{})
	}
	if f.LoaderID == loaderID {
		f.Lifecycle[name] = struct{}{}
	}
}

// stoppedLoading applies a Page.frameStoppedLoading event: loading can stop
// (navigation cancelled, error page, about:blank) without every lifecycle
// event having fired, so DOMContentLoaded/load are marked synthetically if
// missing, unblocking anyone waiting on them.
func (t *frameTree) stoppedLoading(id cdp.FrameID) {
	f, ok := t.frames[id]
	if !ok {
		return
	}
	f.Lifecycle["DOMContentLoaded"] = struct{}{}
	f.Lifecycle["load"] = struct{}{}
}

// hasLifecycleEvent reports whether frame id has observed event name for
// its current loader generation.
func (t *frameTree) hasLifecycleEvent(id cdp.FrameID, event string) bool {
	f, ok := t.frames[id]
	if !ok {
		return false
	}
	_, ok = f.Lifecycle[event]
	return ok
}

// navWaiter is a single pending wait-for-navigation request: it resolves
// once frame id has both adopted a new LoaderID (proving the expected
// navigation actually started, not a stale one) and observed the wanted
// lifecycle event under that loader.
type navWaiter struct {
	sessionID target.SessionID
	frameID   cdp.FrameID
	fromLoader cdp.LoaderID // the frame's LoaderID when the wait was registered
	event     string
	done      chan error
}

// navWatcher tracks pending navigation waits across all sessions, checked
// after every frame-tree mutation.
type navWatcher struct {
	waiters []*navWaiter
}

func newNavWatcher() *navWatcher {
	return &navWatcher{}
}

func (w *navWatcher) register(sessionID target.SessionID, frameID cdp.FrameID, fromLoader cdp.LoaderID, event string) *navWaiter {
	nw := &navWaiter{sessionID: sessionID, frameID: frameID, fromLoader: fromLoader, event: event, done: make(chan error, 1)}
	w.waiters = append(w.waiters, nw)
	return nw
}

func (w *navWatcher) cancel(nw *navWaiter, err error) {
	for i, cur := range w.waiters {
		if cur == nw {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			break
		}
	}
	select {
	case nw.done <- err:
	default:
	}
}

// check evaluates every pending waiter against trees (keyed by SessionID)
// and resolves (removing) any that are now satisfied.
func (w *navWatcher) check(trees map[target.SessionID]*frameTree) {
	remaining := w.waiters[:0]
	for _, nw := range w.waiters {
		tree, ok := trees[nw.sessionID]
		if !ok {
			remaining = append(remaining, nw)
			continue
		}
		f, ok := tree.get(nw.frameID)
		if !ok {
			remaining = append(remaining, nw)
			continue
		}
		if f.LoaderID == nw.fromLoader {
			// Navigation hasn't actually started a new document yet.
			remaining = append(remaining, nw)
			continue
		}
		if tree.hasLifecycleEvent(nw.frameID, nw.event) {
			nw.done <- nil
			continue
		}
		remaining = append(remaining, nw)
	}
	w.waiters = remaining
}

// dropSession fails every waiter registered against sessionID, e.g. because
// the target detached or was destroyed mid-navigation.
func (w *navWatcher) dropSession(sessionID target.SessionID, err error) {
	remaining := w.waiters[:0]
	for _, nw := range w.waiters {
		if nw.sessionID == sessionID {
			nw.done <- err
			continue
		}
		remaining = append(remaining, nw)
	}
	w.waiters = remaining
}
