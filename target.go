package cdpilot

import (
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
)

// TargetState is a Target's position in its attach lifecycle.
type TargetState int

const (
	// TargetDiscovered is a target the browser has reported but cdpilot
	// has not (yet, or ever) attached a session to.
	TargetDiscovered TargetState = iota
	// TargetAttaching is a target for which Target.attachToTarget has
	// been sent but not yet acknowledged.
	TargetAttaching
	// TargetAttached is a target with a live session: commands may be
	// issued against it and events are routed for it.
	TargetAttached
	// TargetDetaching is a target for which a detach has been requested
	// but not yet acknowledged.
	TargetDetaching
	// TargetDetached is a target with no session, distinct from never
	// having had one, for log/diagnostic purposes.
	TargetDetached
	// TargetDestroyed is terminal: the underlying browser tab/worker is
	// gone. Reachable from any other state.
	TargetDestroyed
)

func (s TargetState) String() string {
	switch s {
	case TargetDiscovered:
		return "discovered"
	case TargetAttaching:
		return "attaching"
	case TargetAttached:
		return "attached"
	case TargetDetaching:
		return "detaching"
	case TargetDetached:
		return "detached"
	case TargetDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Target is cdpilot's view of one browser target (page, iframe owner,
// service worker, etc.), tracked from target.* and shared-process events.
type Target struct {
	TargetID         target.ID
	Type             string
	SessionID        target.SessionID
	State            TargetState
	URL              string
	Title            string
	OpenerID         target.ID
	BrowserContextID cdp.BrowserContextID
	Attached         bool
	IsWorker         bool
}

// targetRegistry is the Handler's single-owner table of known targets,
// indexed both by TargetID and by the SessionID bound to it once attached.
type targetRegistry struct {
	byID      map[target.ID]*Target
	bySession map[target.SessionID]*Target
}

func newTargetRegistry() *targetRegistry {
	return &targetRegistry{
		byID:      make(map[target.ID]*Target),
		bySession: make(map[target.SessionID]*Target),
	}
}

// discovered records or updates a target reported by targetCreated/
// targetInfoChanged. A target already known keeps its current State.
func (r *targetRegistry) discovered(info *target.Info) *Target {
	t, ok := r.byID[info.TargetID]
	if !ok {
		t = &Target{TargetID: info.TargetID, State: TargetDiscovered}
		r.byID[info.TargetID] = t
	}
	t.Type = info.Type
	t.URL = info.URL
	t.Title = info.Title
	t.OpenerID = info.OpenerID
	t.BrowserContextID = info.BrowserContextID
	t.Attached = info.Attached
	return t
}

// attaching transitions a target to TargetAttaching, e.g. right before
// sending Target.attachToTarget.
func (r *targetRegistry) attaching(id target.ID) *Target {
	t, ok := r.byID[id]
	if !ok {
		t = &Target{TargetID: id}
		r.byID[id] = t
	}
	t.State = TargetAttaching
	return t
}

// attached binds sessionID to id and transitions it to TargetAttached, from
// the attachedToTarget event.
func (r *targetRegistry) attached(id target.ID, sessionID target.SessionID, isWorker bool) *Target {
	t, ok := r.byID[id]
	if !ok {
		t = &Target{TargetID: id}
		r.byID[id] = t
	}
	t.SessionID = sessionID
	t.State = TargetAttached
	t.IsWorker = isWorker
	r.bySession[sessionID] = t
	return t
}

// detaching transitions the target bound to sessionID to TargetDetaching.
func (r *targetRegistry) detaching(sessionID target.SessionID) *Target {
	t, ok := r.bySession[sessionID]
	if !ok {
		return nil
	}
	t.State = TargetDetaching
	return t
}

// detached transitions the target bound to sessionID to TargetDetached and
// severs the session binding, from the detachedFromTarget event.
func (r *targetRegistry) detached(sessionID target.SessionID) *Target {
	t, ok := r.bySession[sessionID]
	if !ok {
		return nil
	}
	delete(r.bySession, sessionID)
	t.State = TargetDetached
	t.SessionID = ""
	return t
}

// destroyed transitions id to the terminal TargetDestroyed state from any
// prior state, and removes it from both indexes.
func (r *targetRegistry) destroyed(id target.ID) *Target {
	t, ok := r.byID[id]
	if !ok {
		return nil
	}
	if t.SessionID != "" {
		delete(r.bySession, t.SessionID)
	}
	delete(r.byID, id)
	t.State = TargetDestroyed
	return t
}

func (r *targetRegistry) byTargetID(id target.ID) (*Target, bool) {
	t, ok := r.byID[id]
	return t, ok
}

func (r *targetRegistry) bySessionID(sessionID target.SessionID) (*Target, bool) {
	t, ok := r.bySession[sessionID]
	return t, ok
}

// all returns a snapshot slice of every currently known target.
func (r *targetRegistry) all() []*Target {
	out := make([]*Target, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}
