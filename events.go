package cdpilot

import (
	"github.com/chromedp/cdproto"
)

// DefaultEventBufferSize is the default per-subscriber bounded buffer depth.
const DefaultEventBufferSize = 128

// Event is a single CDP event, normalized with the session/target it
// belongs to (both empty for a browser-level event).
type Event struct {
	SessionID string
	TargetID  string
	Method    cdproto.MethodType
	Params    []byte
}

// eventItem is what actually travels down a subscriber channel: either an
// Event, or a lag marker when the subscriber fell behind.
type eventItem struct {
	event *Event
	lag   *LaggedEventStream
}

// subscriber is a bounded, drop-oldest mailbox. Only the Handler goroutine
// ever pushes to it; only the owning caller ever drains it.
type subscriber struct {
	id         uint64
	ch         chan eventItem
	filter     func(Event) bool
	lagPending bool
	dropped    int
}

func newSubscriber(id uint64, bufSize int, filter func(Event) bool) *subscriber {
	if bufSize <= 0 {
		bufSize = DefaultEventBufferSize
	}
	return &subscriber{id: id, ch: make(chan eventItem, bufSize), filter: filter}
}

// push delivers ev to the subscriber's mailbox, dropping the oldest queued
// item to make room if it's full. A subscriber that has ever dropped an
// item is handed one LaggedEventStream marker ahead of the next event it
// successfully receives.
func (s *subscriber) push(ev Event) {
	if s.filter != nil && !s.filter(ev) {
		return
	}
	if s.lagPending {
		select {
		case s.ch <- eventItem{lag: &LaggedEventStream{Dropped: s.dropped}}:
			s.lagPending, s.dropped = false, 0
		default:
			// No room even for the marker: drop the oldest item and retry
			// once so the lag notice isn't starved forever.
			select {
			case <-s.ch:
				s.dropped++
			default:
			}
			select {
			case s.ch <- eventItem{lag: &LaggedEventStream{Dropped: s.dropped}}:
				s.lagPending, s.dropped = false, 0
			default:
			}
		}
	}
	select {
	case s.ch <- eventItem{event: &ev}:
		return
	default:
	}
	// Buffer full: drop the oldest queued item to make room, then enqueue
	// this one, and arrange for a lag marker ahead of some future event.
	select {
	case <-s.ch:
	default:
	}
	s.dropped++
	s.lagPending = true
	select {
	case s.ch <- eventItem{event: &ev}:
	default:
	}
}

// eventRouter fans catch-all, per-method, and per-target event streams out
// to bounded subscriber mailboxes. It is owned exclusively by the Handler
// goroutine: all methods run on that goroutine, so no locking is needed.
type eventRouter struct {
	nextSubID uint64

	catchAll  map[uint64]*subscriber
	byMethod  map[cdproto.MethodType]map[uint64]*subscriber
	byTarget  map[string]map[uint64]*subscriber
}

func newEventRouter() *eventRouter {
	return &eventRouter{
		catchAll: make(map[uint64]*subscriber),
		byMethod: make(map[cdproto.MethodType]map[uint64]*subscriber),
		byTarget: make(map[string]map[uint64]*subscriber),
	}
}

// subscribeAll registers a catch-all subscriber receiving every event, CDP
// domain and browser-level alike.
func (r *eventRouter) subscribeAll(bufSize int) *subscriber {
	r.nextSubID++
	sub := newSubscriber(r.nextSubID, bufSize, nil)
	r.catchAll[sub.id] = sub
	return sub
}

// subscribeMethod registers a subscriber that only sees events of the given
// method, across all sessions/targets.
func (r *eventRouter) subscribeMethod(method cdproto.MethodType, bufSize int) *subscriber {
	r.nextSubID++
	sub := newSubscriber(r.nextSubID, bufSize, nil)
	m := r.byMethod[method]
	if m == nil {
		m = make(map[uint64]*subscriber)
		r.byMethod[method] = m
	}
	m[sub.id] = sub
	return sub
}

// subscribeTarget registers a subscriber that only sees events whose
// TargetID matches targetID.
func (r *eventRouter) subscribeTarget(targetID string, bufSize int) *subscriber {
	r.nextSubID++
	sub := newSubscriber(r.nextSubID, bufSize, nil)
	m := r.byTarget[targetID]
	if m == nil {
		m = make(map[uint64]*subscriber)
		r.byTarget[targetID] = m
	}
	m[sub.id] = sub
	return sub
}

// unsubscribe removes sub from every index it was registered in.
func (r *eventRouter) unsubscribe(sub *subscriber) {
	delete(r.catchAll, sub.id)
	for _, m := range r.byMethod {
		delete(m, sub.id)
	}
	for _, m := range r.byTarget {
		delete(m, sub.id)
	}
}

// dropTarget removes every subscriber registered for targetID's filtered
// stream, called when a target is destroyed.
func (r *eventRouter) dropTarget(targetID string) {
	delete(r.byTarget, targetID)
}

// publish fans ev out to every interested subscriber. The Handler must call
// this only after applying ev's effect to target/frame state, so that a
// subscriber observing ev can immediately query consistent state.
func (r *eventRouter) publish(ev Event) {
	for _, sub := range r.catchAll {
		sub.push(ev)
	}
	for _, sub := range r.byMethod[ev.Method] {
		sub.push(ev)
	}
	if ev.TargetID != "" {
		for _, sub := range r.byTarget[ev.TargetID] {
			sub.push(ev)
		}
	}
}

// recv returns the next event or lag indicator for sub, blocking until one
// is queued, or ok=false if sub's channel has been closed. The Handler does
// not close subscriber channels, including on shutdown.
func recv(sub *subscriber) (Event, *LaggedEventStream, bool) {
	item, ok := <-sub.ch
	if !ok {
		return Event{}, nil, false
	}
	if item.lag != nil {
		return Event{}, item.lag, true
	}
	return *item.event, nil, true
}
