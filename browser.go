package cdpilot

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"golang.org/x/exp/slices"
)

// BrowserState is a Browser's position in its own lifecycle, independent of
// any one target's state.
type BrowserState int

const (
	BrowserLaunching BrowserState = iota
	BrowserReady
	BrowserClosing
	BrowserClosed
)

// Browser is the root handle onto one running Chromium-family process (or
// remote endpoint): it owns the Transport and the single Handler goroutine
// that serializes everything else.
type Browser struct {
	wsURL   string
	handler *Handler

	logf, debugf, errf LogFunc

	mu    sync.Mutex
	state BrowserState

	// closer is invoked by Close to additionally tear down whatever
	// spawned this browser (an ExecAllocator's child process, typically).
	// It may be nil for a RemoteAllocator-attached browser.
	closer func() error

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// NewBrowser dials wsURL and starts its Handler loop. The returned Browser
// is BrowserReady once this returns successfully.
func NewBrowser(ctx context.Context, wsURL string, logf, debugf, errf LogFunc) (*Browser, error) {
	transport, err := DialContext(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	h := NewHandler(transport, logf, debugf, errf)

	runCtx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		wsURL:     wsURL,
		handler:   h,
		logf:      h.logf,
		debugf:    h.debugf,
		errf:      h.errf,
		state:     BrowserReady,
		runCancel: cancel,
		runDone:   make(chan struct{}),
	}
	go func() {
		defer close(b.runDone)
		h.Run(runCtx)
	}()

	if _, err := b.Execute(ctx, cdproto.CommandTargetSetDiscoverTargets, &target.SetDiscoverTargetsParams{Discover: true}); err != nil {
		b.runCancel()
		<-b.runDone
		return nil, wrapf(ErrLaunchFailed, "setDiscoverTargets: %v", err)
	}
	if _, err := b.Execute(ctx, cdproto.CommandTargetSetAutoAttach, &target.SetAutoAttachParams{
		AutoAttach:             true,
		WaitForDebuggerOnStart: false,
		Flatten:                true,
	}); err != nil {
		b.runCancel()
		<-b.runDone
		return nil, wrapf(ErrLaunchFailed, "setAutoAttach: %v", err)
	}
	return b, nil
}

// State returns the Browser's current lifecycle state.
func (b *Browser) State() BrowserState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Handler returns the Browser's Handler, for constructing Targets/Contexts.
func (b *Browser) Handler() *Handler { return b.handler }

// Execute issues a browser-level (sessionID "") CDP command.
func (b *Browser) Execute(ctx context.Context, method cdproto.MethodType, params easyjson.Marshaler) (easyjson.RawMessage, error) {
	return b.handler.Execute(ctx, "", method, params)
}

// NewTarget asks the browser to create a new page target, attaches to it,
// and returns its id and the session id from the attachToTarget response.
// It does not wait for the attachedToTarget event.
func (b *Browser) NewTarget(ctx context.Context, url string) (target.ID, target.SessionID, error) {
	res, err := b.Execute(ctx, cdproto.CommandTargetCreateTarget, &target.CreateTargetParams{URL: url})
	if err != nil {
		return "", "", err
	}
	var created target.CreateTargetReturns
	if err := easyjson.Unmarshal(res, &created); err != nil {
		return "", "", wrapf(ErrDeserializeFailed, "createTarget result: %v", err)
	}
	sessionID, err := b.attach(ctx, created.TargetID)
	if err != nil {
		return "", "", err
	}
	return created.TargetID, sessionID, nil
}

// attach sends Target.attachToTarget and returns the session id carried in
// its response. It does not wait for the attachedToTarget event, so the
// Handler may not yet have applied that event to the target registry or
// created the session's frame tree when attach returns.
func (b *Browser) attach(ctx context.Context, id target.ID) (target.SessionID, error) {
	res, err := b.Execute(ctx, cdproto.CommandTargetAttachToTarget, &target.AttachToTargetParams{TargetID: id, Flatten: true})
	if err != nil {
		return "", err
	}
	var attached target.AttachToTargetReturns
	if err := easyjson.Unmarshal(res, &attached); err != nil {
		return "", wrapf(ErrDeserializeFailed, "attachToTarget result: %v", err)
	}
	return attached.SessionID, nil
}

// Targets returns a snapshot of every target the Browser currently knows
// about (any state).
func (b *Browser) Targets(ctx context.Context) ([]*Target, error) {
	var out []*Target
	err := b.handler.do(ctx, func(h *Handler) {
		out = h.targets.all()
	})
	slices.SortFunc(out, func(a, b *Target) bool { return a.TargetID < b.TargetID })
	return out, err
}

// Close requests a graceful shutdown: it sends Browser.close (whether or not
// the process is one cdpilot spawned), runs the allocator's closer if one is
// set, then tears down the Handler loop. Close is idempotent.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.state == BrowserClosing || b.state == BrowserClosed {
		b.mu.Unlock()
		return nil
	}
	b.state = BrowserClosing
	b.mu.Unlock()

	_, _ = b.Execute(ctx, cdproto.CommandBrowserClose, nil)

	if b.closer != nil {
		_ = b.closer()
	}
	b.runCancel()
	<-b.runDone

	b.mu.Lock()
	b.state = BrowserClosed
	b.mu.Unlock()
	return nil
}

// Wait blocks until the Browser's Handler loop has exited, returning the
// reason. The reason always wraps ErrTransportClosed, including after Close.
func (b *Browser) Wait() error {
	<-b.runDone
	return b.handler.Err()
}
