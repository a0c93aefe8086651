package cdpilot

import (
	"context"
	"fmt"
	"time"

	"github.com/averyhale/cdpilot/kb"
	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/mailru/easyjson"
)

// MouseOption configures an input.DispatchMouseEventParams before it is
// sent.
type MouseOption func(*input.DispatchMouseEventParams)

// Button sets the mouse button involved in the event.
func Button(b input.MouseButton) MouseOption {
	return func(p *input.DispatchMouseEventParams) { p.Button = b }
}

// ClickCount sets the event's click count (1 for a single click, 2 for a
// double-click, ...).
func ClickCount(n int) MouseOption {
	return func(p *input.DispatchMouseEventParams) { p.ClickCount = int64(n) }
}

// dispatchMouse sends a single Input.dispatchMouseEvent.
func dispatchMouse(ctx context.Context, typ input.MouseType, x, y float64, opts ...MouseOption) error {
	c := FromContext(ctx)
	if c == nil || c.Browser == nil || c.SessionID == "" {
		return ErrInvalidContext
	}
	p := &input.DispatchMouseEventParams{Type: typ, X: x, Y: y}
	for _, o := range opts {
		o(p)
	}
	_, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandInputDispatchMouseEvent, p)
	return err
}

// MouseClickXY sends a click at the given viewport coordinates: a
// mousePressed immediately followed by a mouseReleased. It is a single
// left-button click unless opts set another button or click count.
func MouseClickXY(x, y float64, opts ...MouseOption) Action {
	return ActionFunc(func(ctx context.Context) error {
		clickOpts := append([]MouseOption{Button(input.Left), ClickCount(1)}, opts...)
		if err := dispatchMouse(ctx, input.MousePressed, x, y, clickOpts...); err != nil {
			return err
		}
		return dispatchMouse(ctx, input.MouseReleased, x, y, clickOpts...)
	})
}

// centerOf returns the center point of n's content quad.
func centerOf(n *cdp.Node, ctx context.Context) (float64, float64, error) {
	var model *dom.BoxModel
	c := FromContext(ctx)
	raw, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandDOMGetBoxModel, &dom.GetBoxModelParams{NodeID: n.NodeID})
	if err != nil {
		return 0, 0, err
	}
	var ret dom.GetBoxModelReturns
	if err := easyjson.Unmarshal(raw, &ret); err != nil {
		return 0, 0, wrapf(ErrDeserializeFailed, "box model: %v", err)
	}
	model = ret.Model
	if model == nil || len(model.Content) != 8 {
		return 0, 0, ErrInvalidBoxModel
	}
	var x, y float64
	for i := 0; i < 8; i += 2 {
		x += model.Content[i]
		y += model.Content[i+1]
	}
	return x / 4, y / 4, nil
}

// scrollIntoView asks the browser to scroll n into the viewport if it
// isn't already visible, so centerOf's box model reflects where the
// element actually is rather than where it was before scrolling.
func scrollIntoView(ctx context.Context, n *cdp.Node) error {
	c := FromContext(ctx)
	if c == nil || c.Browser == nil || c.SessionID == "" {
		return ErrInvalidContext
	}
	_, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandDOMScrollIntoViewIfNeeded, &dom.ScrollIntoViewIfNeededParams{NodeID: n.NodeID})
	return err
}

// Click clicks the center of the first element matching sel, scrolling it
// into view first.
func Click(sel string, opts ...MouseOption) Action {
	return ActionFunc(func(ctx context.Context) error {
		n, err := firstNode(ctx, sel)
		if err != nil {
			return err
		}
		if err := scrollIntoView(ctx, n); err != nil {
			return err
		}
		x, y, err := centerOf(n, ctx)
		if err != nil {
			return err
		}
		return MouseClickXY(x, y, opts...).Do(ctx)
	})
}

// Hover moves the mouse to the center of the first element matching sel,
// without clicking.
func Hover(sel string) Action {
	return ActionFunc(func(ctx context.Context) error {
		n, err := firstNode(ctx, sel)
		if err != nil {
			return err
		}
		x, y, err := centerOf(n, ctx)
		if err != nil {
			return err
		}
		return dispatchMouse(ctx, input.MouseMoved, x, y)
	})
}

// keySend sends a single dispatchKeyEvent command with p as given.
func keySend(ctx context.Context, p *input.DispatchKeyEventParams) error {
	c := FromContext(ctx)
	if c == nil || c.Browser == nil || c.SessionID == "" {
		return ErrInvalidContext
	}
	_, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandInputDispatchKeyEvent, p)
	return err
}

// TypeStr dispatches the keyDown/char/keyUp sequence for each rune in s, as
// if it had been typed at the keyboard, with a small delay between
// keystrokes to mimic real input timing.
func TypeStr(s string) Action {
	return ActionFunc(func(ctx context.Context) error {
		for _, r := range s {
			for _, ev := range kb.Encode(r) {
				if err := keySend(ctx, ev); err != nil {
					return err
				}
			}
			select {
			case <-time.After(5 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

// PressKey dispatches the keyDown/keyUp (and char, if printable) sequence
// for a named key, e.g. "Enter", "Tab", "Escape", "ArrowDown".
func PressKey(name string) Action {
	return ActionFunc(func(ctx context.Context) error {
		evs := kb.EncodeNamed(name)
		if evs == nil {
			return fmt.Errorf("cdpilot: unknown key %q", name)
		}
		for _, ev := range evs {
			if err := keySend(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// Click-then-type convenience is intentionally not provided: callers
// compose Click, Focus and TypeStr themselves.
