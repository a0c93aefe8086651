package cdpilot

import (
	"context"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
)

type contextKey struct{}

// Context is cdpilot's handle bound into a context.Context: an Allocator
// (if the browser hasn't been created yet), a Browser, and optionally a
// specific page Target/Session to run actions against.
type Context struct {
	Allocator Allocator
	Browser   *Browser
	TargetID  target.ID
	SessionID target.SessionID

	cancel context.CancelFunc
	first  bool
}

// ContextOption configures a new Context.
type ContextOption func(*Context)

// WithTargetID attaches to an existing target instead of creating a new
// page.
func WithTargetID(id target.ID) ContextOption {
	return func(c *Context) { c.TargetID = id }
}

// NewContext returns a context bound to a new cdpilot Context, inheriting
// the nearest enclosing Allocator/Browser from parent if present (so a
// page-level NewContext under a browser-level one reuses the same
// browser), or none if this is the first cdpilot context in the chain.
func NewContext(parent context.Context, opts ...ContextOption) (context.Context, context.CancelFunc) {
	prev := FromContext(parent)
	c := &Context{first: true}
	if prev != nil {
		c.Allocator = prev.Allocator
		c.Browser = prev.Browser
		c.first = prev.Browser == nil
	}
	for _, o := range opts {
		o(c)
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	return context.WithValue(ctx, contextKey{}, c), func() { _ = Cancel(ctx) }
}

// NewExecContext is a convenience for NewContext with a freshly built
// ExecAllocator as the browser source.
func NewExecContext(parent context.Context, opts ...ExecAllocatorOption) (context.Context, context.CancelFunc) {
	c := &Context{Allocator: NewExecAllocator(opts...), first: true}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	return context.WithValue(ctx, contextKey{}, c), func() { _ = Cancel(ctx) }
}

// FromContext returns the nearest cdpilot Context stored in ctx, or nil.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(contextKey{}).(*Context)
	return c
}

// ensureBrowser allocates a Browser via c.Allocator if one isn't already
// bound.
func ensureBrowser(ctx context.Context, c *Context) error {
	if c.Browser != nil {
		return nil
	}
	if c.Allocator == nil {
		return ErrInvalidContext
	}
	b, err := c.Allocator.Allocate(ctx)
	if err != nil {
		return err
	}
	c.Browser = b
	return nil
}

// ensureTarget attaches to c.TargetID, or creates a fresh page target, and
// enables the baseline domains used throughout cdpilot.
func ensureTarget(ctx context.Context, c *Context) error {
	if c.SessionID != "" {
		return nil
	}
	if c.TargetID != "" {
		sessionID, err := c.Browser.attach(ctx, c.TargetID)
		if err != nil {
			return err
		}
		c.SessionID = sessionID
	} else {
		id, sessionID, err := c.Browser.NewTarget(ctx, "about:blank")
		if err != nil {
			return err
		}
		c.TargetID, c.SessionID = id, sessionID
	}
	return enableBaselineDomains(ctx, c)
}

// enableBaselineDomains turns on the CDP domains cdpilot's own primitives
// depend on: Page (navigation/frame events), DOM (node queries), Runtime
// (evaluate/callFunctionOn), Log and Inspector (surfaced as events, never
// silently swallowed), and CSS and Network (their events routed through the
// same Event Router as everything else). The same domains are enabled on
// every target, workers included.
func enableBaselineDomains(ctx context.Context, c *Context) error {
	h := c.Browser.Handler()
	for _, cmd := range []struct {
		method cdproto.MethodType
	}{
		{cdproto.CommandPageEnable},
		{cdproto.CommandDOMEnable},
		{cdproto.CommandRuntimeEnable},
		{cdproto.CommandLogEnable},
		{cdproto.CommandInspectorEnable},
		{cdproto.CommandCSSEnable},
		{cdproto.CommandNetworkEnable},
	} {
		if _, err := h.Execute(ctx, c.SessionID, cmd.method, nil); err != nil {
			return err
		}
	}
	_, err := h.Execute(ctx, c.SessionID, cdproto.CommandPageSetLifecycleEventsEnabled, &page.SetLifecycleEventsEnabledParams{Enabled: true})
	return err
}

// Run allocates a browser and/or target as needed and runs each action in
// order against the resulting page, short-circuiting on the first error.
func Run(ctx context.Context, actions ...Action) error {
	c := FromContext(ctx)
	if c == nil {
		return ErrInvalidContext
	}
	if err := ensureBrowser(ctx, c); err != nil {
		return err
	}
	if err := ensureTarget(ctx, c); err != nil {
		return err
	}
	return Tasks(actions).Do(ctx)
}

// Cancel tears down the Context bound to ctx: detaching its target (if any)
// and, if it is a first Context (one created with no Browser yet bound in its
// parent, which therefore allocates its own), closing the Browser and waiting
// for its Allocator to release all resources.
func Cancel(ctx context.Context) error {
	c := FromContext(ctx)
	if c == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.Browser == nil {
		return nil
	}
	if c.first {
		err := c.Browser.Close(context.Background())
		if c.Allocator != nil {
			c.Allocator.Wait()
		}
		return err
	}
	if c.SessionID != "" {
		_, _ = c.Browser.Handler().Execute(context.Background(), "", cdproto.CommandTargetDetachFromTarget, &target.DetachFromTargetParams{SessionID: c.SessionID})
	}
	return nil
}

// Action is anything runnable against a Context-bound context.Context.
type Action interface {
	Do(ctx context.Context) error
}

// ActionFunc adapts a plain func to Action.
type ActionFunc func(ctx context.Context) error

func (f ActionFunc) Do(ctx context.Context) error { return f(ctx) }

// Tasks is a sequence of Actions run in order.
type Tasks []Action

func (t Tasks) Do(ctx context.Context) error {
	for _, a := range t {
		if err := a.Do(ctx); err != nil {
			return err
		}
	}
	return nil
}
