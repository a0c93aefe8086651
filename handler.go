package cdpilot

import (
	"context"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// handlerOp is a closure run exclusively on the Handler's own goroutine. It
// is how every external caller reaches into Handler state: instead of
// locking, state mutation is serialized through this single channel.
type handlerOp func(h *Handler)

// Handler is the single-owner event loop: the only writer to the
// Transport, and the only mutator of the command registry, event router,
// target registry and per-session frame trees. Every other type in
// cdpilot holds only ids and a handle back into a Handler.
type Handler struct {
	transport Transport

	commands *commandRegistry
	events   *eventRouter
	targets  *targetRegistry
	frames   map[target.SessionID]*frameTree
	nav      *navWatcher

	logf, debugf, errf LogFunc

	ops chan handlerOp

	closed   chan struct{}
	closeErr error
}

// NewHandler constructs a Handler bound to transport. Call Run to start its
// event loop; nothing is read from or written to transport before that.
func NewHandler(transport Transport, logf, debugf, errf LogFunc) *Handler {
	if logf == nil || debugf == nil || errf == nil {
		dl, dd, de := defaultLoggers()
		if logf == nil {
			logf = dl
		}
		if debugf == nil {
			debugf = dd
		}
		if errf == nil {
			errf = de
		}
	}
	return &Handler{
		transport: transport,
		commands:  newCommandRegistry(),
		events:    newEventRouter(),
		targets:   newTargetRegistry(),
		frames:    make(map[target.SessionID]*frameTree),
		nav:       newNavWatcher(),
		logf:      logf,
		debugf:    debugf,
		errf:      errf,
		ops:       make(chan handlerOp, 64),
		closed:    make(chan struct{}),
	}
}

// Run drives the Handler's event loop until ctx is cancelled or the
// transport closes, whichever happens first. It blocks; callers run it in
// its own goroutine. The returned error is also returned by Err after Run
// exits.
func (h *Handler) Run(ctx context.Context) error {
	incoming := make(chan *cdproto.Message)
	readErr := make(chan error, 1)
	go h.readLoop(incoming, readErr)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		h.resetTimer(timer)
		select {
		case <-ctx.Done():
			h.shutdown(ctx.Err())
			return h.closeErr
		case op := <-h.ops:
			op(h)
		case msg := <-incoming:
			h.handleMessage(msg)
		case err := <-readErr:
			h.shutdown(err)
			return h.closeErr
		case now := <-timer.C:
			h.checkDeadlines(now)
		}
	}
}

func (h *Handler) readLoop(incoming chan<- *cdproto.Message, readErr chan<- error) {
	for {
		msg, err := h.transport.Read()
		if err != nil {
			readErr <- err
			return
		}
		incoming <- msg
	}
}

func (h *Handler) resetTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	d := time.Hour
	if deadline, ok := h.commands.nextDeadline(); ok {
		if until := time.Until(deadline); until < d {
			d = until
			if d < 0 {
				d = 0
			}
		}
	}
	timer.Reset(d)
}

func (h *Handler) checkDeadlines(now time.Time) {
	for _, id := range h.commands.expired(now) {
		h.commands.resolve(id, nil, ErrTimeout)
	}
}

func (h *Handler) shutdown(err error) {
	select {
	case <-h.closed:
		return
	default:
	}
	h.closeErr = wrapf(ErrTransportClosed, "handler stopped: %v", err)
	h.commands.drain(h.closeErr)
	h.transport.Close()
	close(h.closed)
}

// Done returns a channel closed once the Handler's loop has exited.
func (h *Handler) Done() <-chan struct{} { return h.closed }

// Err returns the reason the Handler stopped, valid only after Done closes.
func (h *Handler) Err() error { return h.closeErr }

// do submits op to the Handler's loop and blocks until it has run, or
// until the Handler has already shut down.
func (h *Handler) do(ctx context.Context, op handlerOp) error {
	done := make(chan struct{})
	wrapped := func(h *Handler) {
		op(h)
		close(done)
	}
	select {
	case h.ops <- wrapped:
	case <-h.closed:
		return h.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-h.closed:
		return h.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute sends a single CDP command against sessionID ("" for a
// browser-level command) and waits for its response, honoring ctx's
// deadline/cancellation: an elapsed ctx deadline is reported as ErrTimeout.
func (h *Handler) Execute(ctx context.Context, sessionID target.SessionID, method cdproto.MethodType, params easyjson.Marshaler) (easyjson.RawMessage, error) {
	var raw easyjson.RawMessage
	var err error
	if params != nil {
		raw, err = easyjson.Marshal(params)
		if err != nil {
			return nil, wrapf(ErrDeserializeFailed, "marshal params for %s: %v", method, err)
		}
	}

	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	var id uint64
	var resultCh chan commandResult
	regErr := h.do(ctx, func(h *Handler) {
		var pc *pendingCommand
		id, pc = h.commands.register(string(sessionID), timeout)
		resultCh = pc.result
		msg := &cdproto.Message{
			ID:        int64(id),
			Method:    method,
			Params:    raw,
			SessionID: sessionID,
		}
		if err := h.transport.Write(msg); err != nil {
			h.commands.resolve(id, nil, wrapf(ErrTransportClosed, "write %s: %v", method, err))
		}
	})
	if regErr != nil {
		return nil, regErr
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		return res.msg.Result, nil
	case <-ctx.Done():
		h.do(context.Background(), func(h *Handler) {
			h.commands.cancel(id, ErrCancelled)
		})
		if ctx.Err() == context.DeadlineExceeded {
			return nil, wrapf(ErrTimeout, "%s: %v", method, ctx.Err())
		}
		return nil, ctx.Err()
	case <-h.closed:
		return nil, h.closeErr
	}
}

// send issues method as a fire-and-forget browser-level command from
// inside the Handler's own goroutine, e.g. in reaction to an event. It must
// never be called from outside that goroutine: unlike Execute it does not
// go through h.do, since handleEvent already runs on the loop that do's
// wrapped ops are waiting to be read by. The response, once it arrives, is
// resolved and discarded through the ordinary commandRegistry path.
func (h *Handler) send(method cdproto.MethodType, params easyjson.Marshaler) {
	var raw easyjson.RawMessage
	if params != nil {
		var err error
		raw, err = easyjson.Marshal(params)
		if err != nil {
			h.errf("marshal params for %s: %v", method, err)
			return
		}
	}
	id, _ := h.commands.register("", 0)
	msg := &cdproto.Message{ID: int64(id), Method: method, Params: raw}
	if err := h.transport.Write(msg); err != nil {
		h.commands.resolve(id, nil, wrapf(ErrTransportClosed, "write %s: %v", method, err))
	}
}

// isAttachableTargetType reports whether a newly created target is one
// auto-attach should follow with Target.attachToTarget: pages, the iframes
// that can carry their own OOPIF process, and workers.
func isAttachableTargetType(typ string) bool {
	switch typ {
	case "page", "iframe", "worker", "shared_worker", "service_worker":
		return true
	default:
		return false
	}
}

// WaitForNavigation blocks until frameID (under sessionID) has both
// started a fresh document load and observed the named lifecycle event for
// it — see navWatcher for why both conditions matter.
func (h *Handler) WaitForNavigation(ctx context.Context, sessionID target.SessionID, frameID cdp.FrameID, event string) error {
	var nw *navWaiter
	err := h.do(ctx, func(h *Handler) {
		tree := h.frames[sessionID]
		if tree == nil {
			return
		}
		var fromLoader cdp.LoaderID
		if f, ok := tree.get(frameID); ok {
			fromLoader = f.LoaderID
		}
		nw = h.nav.register(sessionID, frameID, fromLoader, event)
		h.nav.check(h.frames)
	})
	if err != nil {
		return err
	}
	if nw == nil {
		return wrapf(ErrNoSuchFrame, "frame %s", frameID)
	}
	select {
	case err := <-nw.done:
		return err
	case <-ctx.Done():
		h.do(context.Background(), func(h *Handler) {
			h.nav.cancel(nw, ErrCancelled)
		})
		return ctx.Err()
	case <-h.closed:
		return h.closeErr
	}
}

// SessionIDs returns every session currently bound to a frame tree, sorted
// for stable diagnostic output.
func (h *Handler) SessionIDs(ctx context.Context) ([]target.SessionID, error) {
	var ids []target.SessionID
	err := h.do(ctx, func(h *Handler) {
		ids = maps.Keys(h.frames)
		slices.SortFunc(ids, func(a, b target.SessionID) bool { return a < b })
	})
	return ids, err
}

// MainFrameID returns sessionID's current main frame id.
func (h *Handler) MainFrameID(ctx context.Context, sessionID target.SessionID) (cdp.FrameID, error) {
	var id cdp.FrameID
	err := h.do(ctx, func(h *Handler) {
		if tree := h.frames[sessionID]; tree != nil {
			id = tree.mainFrameID
		}
	})
	return id, err
}

// handleMessage dispatches a parsed frame: either a command response
// (msg.Method is empty) or an event.
func (h *Handler) handleMessage(msg *cdproto.Message) {
	if msg.Method == "" {
		id := uint64(msg.ID)
		if msg.Error != nil {
			h.commands.resolve(id, msg, &ProtocolError{
				Code:    msg.Error.Code,
				Message: msg.Error.Message,
				Data:    msg.Error.Data,
			})
			return
		}
		h.commands.resolve(id, msg, nil)
		return
	}
	h.handleEvent(msg)
}

// handleEvent applies an event's effect on target/frame state (if any),
// then publishes it to the event router. Mutating state before publishing
// is the ordering invariant any subscriber depends on: a subscriber that
// observes an event can immediately query consistent state for it.
func (h *Handler) handleEvent(msg *cdproto.Message) {
	sessionID := msg.SessionID
	var targetID target.ID
	if t, ok := h.targets.bySessionID(sessionID); ok {
		targetID = t.TargetID
	}

	switch msg.Method {
	case cdproto.EventTargetTargetCreated:
		if ev, err := decode[target.EventTargetCreated](msg.Params); err == nil {
			t := h.targets.discovered(ev.TargetInfo)
			if t.State == TargetDiscovered && isAttachableTargetType(t.Type) {
				h.targets.attaching(t.TargetID)
				h.send(cdproto.CommandTargetAttachToTarget, &target.AttachToTargetParams{TargetID: t.TargetID, Flatten: true})
			}
		}
	case cdproto.EventTargetTargetInfoChanged:
		if ev, err := decode[target.EventTargetInfoChanged](msg.Params); err == nil {
			h.targets.discovered(ev.TargetInfo)
		}
	case cdproto.EventTargetTargetDestroyed:
		if ev, err := decode[target.EventTargetDestroyed](msg.Params); err == nil {
			if t := h.targets.destroyed(ev.TargetID); t != nil && t.SessionID != "" {
				delete(h.frames, t.SessionID)
				h.nav.dropSession(t.SessionID, ErrTargetGone)
				for _, id := range h.commands.sessionCommands(string(t.SessionID)) {
					h.commands.resolve(id, nil, ErrTargetGone)
				}
			}
			h.events.dropTarget(string(ev.TargetID))
		}
	case cdproto.EventTargetAttachedToTarget:
		if ev, err := decode[target.EventAttachedToTarget](msg.Params); err == nil {
			t := h.targets.attached(ev.TargetInfo.TargetID, ev.SessionID, false)
			targetID = t.TargetID
			sessionID = ev.SessionID
			h.frames[ev.SessionID] = newFrameTree()
		}
	case cdproto.EventTargetDetachedFromTarget:
		if ev, err := decode[target.EventDetachedFromTarget](msg.Params); err == nil {
			h.targets.detached(ev.SessionID)
			delete(h.frames, ev.SessionID)
			h.nav.dropSession(ev.SessionID, ErrTargetGone)
			for _, id := range h.commands.sessionCommands(string(ev.SessionID)) {
				h.commands.resolve(id, nil, ErrNotAttached)
			}
		}
	case cdproto.EventPageFrameAttached:
		if ev, err := decode[page.EventFrameAttached](msg.Params); err == nil {
			if tree := h.frames[sessionID]; tree != nil {
				tree.attached(ev.FrameID, ev.ParentFrameID)
			}
		}
	case cdproto.EventPageFrameDetached:
		if ev, err := decode[page.EventFrameDetached](msg.Params); err == nil {
			if tree := h.frames[sessionID]; tree != nil {
				tree.detached(ev.FrameID)
			}
		}
	case cdproto.EventPageFrameNavigated:
		if ev, err := decode[page.EventFrameNavigated](msg.Params); err == nil {
			if tree := h.frames[sessionID]; tree != nil {
				tree.navigated(ev.Frame)
			}
		}
	case cdproto.EventPageNavigatedWithinDocument:
		if ev, err := decode[page.EventNavigatedWithinDocument](msg.Params); err == nil {
			if tree := h.frames[sessionID]; tree != nil {
				tree.navigatedWithinDocument(ev.FrameID, ev.URL)
			}
		}
	case cdproto.EventPageLifecycleEvent:
		if ev, err := decode[page.EventLifecycleEvent](msg.Params); err == nil {
			if tree := h.frames[sessionID]; tree != nil {
				tree.lifecycleEvent(ev.FrameID, ev.LoaderID, ev.Name)
			}
		}
	case cdproto.EventPageFrameStoppedLoading:
		if ev, err := decode[page.EventFrameStoppedLoading](msg.Params); err == nil {
			if tree := h.frames[sessionID]; tree != nil {
				tree.stoppedLoading(ev.FrameID)
			}
		}
	}

	h.nav.check(h.frames)
	h.events.publish(Event{
		SessionID: string(sessionID),
		TargetID:  string(targetID),
		Method:    msg.Method,
		Params:    msg.Params,
	})
}

// decode unmarshals a raw event payload into T via easyjson.
func decode[T any](raw easyjson.RawMessage) (*T, error) {
	var v T
	if um, ok := any(&v).(easyjson.Unmarshaler); ok {
		if err := easyjson.Unmarshal(raw, um); err != nil {
			return nil, err
		}
		return &v, nil
	}
	return &v, nil
}
