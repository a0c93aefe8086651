package cdpilot

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

// QueryOption configures Nodes/NodeIDs and friends. Reserved for future
// selector strategies (ByJSPath, wait conditions); none are defined yet.
type QueryOption func()

// queryRoot fetches sessionID's current document root node id.
func queryRoot(ctx context.Context, h *Handler, sessionID target.SessionID) (cdp.NodeID, error) {
	raw, err := h.Execute(ctx, sessionID, cdproto.CommandDOMGetDocument, &dom.GetDocumentParams{Depth: 1})
	if err != nil {
		return 0, err
	}
	var ret dom.GetDocumentReturns
	if err := easyjson.Unmarshal(raw, &ret); err != nil {
		return 0, wrapf(ErrDeserializeFailed, "getDocument: %v", err)
	}
	if ret.Root == nil {
		return 0, wrapf(ErrNoSuchElement, "no document root")
	}
	return ret.Root.NodeID, nil
}

// describeNode fetches the full cdp.Node for id (name, type, attributes).
func describeNode(ctx context.Context, h *Handler, sessionID target.SessionID, id cdp.NodeID) (*cdp.Node, error) {
	raw, err := h.Execute(ctx, sessionID, cdproto.CommandDOMDescribeNode, &dom.DescribeNodeParams{NodeID: id, Depth: 1})
	if err != nil {
		return nil, err
	}
	var ret dom.DescribeNodeReturns
	if err := easyjson.Unmarshal(raw, &ret); err != nil {
		return nil, wrapf(ErrDeserializeFailed, "describeNode: %v", err)
	}
	return ret.Node, nil
}

// Nodes retrieves the DOM nodes matching the CSS selector sel into nodes.
func Nodes(sel string, nodes *[]*cdp.Node, opts ...QueryOption) Action {
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}
		h := c.Browser.Handler()

		rootID, err := queryRoot(ctx, h, c.SessionID)
		if err != nil {
			return err
		}

		raw, err := h.Execute(ctx, c.SessionID, cdproto.CommandDOMQuerySelectorAll, &dom.QuerySelectorAllParams{NodeID: rootID, Selector: sel})
		if err != nil {
			return err
		}
		var found dom.QuerySelectorAllReturns
		if err := easyjson.Unmarshal(raw, &found); err != nil {
			return wrapf(ErrDeserializeFailed, "querySelectorAll: %v", err)
		}
		if len(found.NodeIDs) == 0 {
			return wrapf(ErrNoSuchElement, "selector %q", sel)
		}

		out := make([]*cdp.Node, 0, len(found.NodeIDs))
		for _, id := range found.NodeIDs {
			n, err := describeNode(ctx, h, c.SessionID, id)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		*nodes = out
		return nil
	})
}

// NodeIDs returns just the node ids matching sel.
func NodeIDs(sel string, ids *[]cdp.NodeID, opts ...QueryOption) Action {
	return ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := Nodes(sel, &nodes, opts...).Do(ctx); err != nil {
			return err
		}
		out := make([]cdp.NodeID, len(nodes))
		for i, n := range nodes {
			out[i] = n.NodeID
		}
		*ids = out
		return nil
	})
}

// firstNode resolves sel to its first matching node, erroring if none
// match.
func firstNode(ctx context.Context, sel string) (*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := Nodes(sel, &nodes).Do(ctx); err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// Focus focuses the first element matching sel.
func Focus(sel string, opts ...QueryOption) Action {
	return ActionFunc(func(ctx context.Context) error {
		n, err := firstNode(ctx, sel)
		if err != nil {
			return err
		}
		c := FromContext(ctx)
		_, err = c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandDOMFocus, &dom.FocusParams{NodeID: n.NodeID})
		return err
	})
}

// Clear clears the value of the first input/textarea matching sel.
func Clear(sel string, opts ...QueryOption) Action {
	return ActionFunc(func(ctx context.Context) error {
		n, err := firstNode(ctx, sel)
		if err != nil {
			return err
		}
		name := strings.ToUpper(n.NodeName)
		if name != "INPUT" && name != "TEXTAREA" {
			return fmt.Errorf("cdpilot: selector %q matched a %s, not an input/textarea", sel, strings.ToLower(name))
		}
		c := FromContext(ctx)
		h := c.Browser.Handler()
		if name == "INPUT" {
			_, err = h.Execute(ctx, c.SessionID, cdproto.CommandDOMSetAttributeValue, &dom.SetAttributeValueParams{NodeID: n.NodeID, Name: "value", Value: ""})
		} else {
			_, err = h.Execute(ctx, c.SessionID, cdproto.CommandDOMSetNodeValue, &dom.SetNodeValueParams{NodeID: n.NodeID, Value: ""})
		}
		return err
	})
}

// Dimensions retrieves the box model for the first node matching sel.
func Dimensions(sel string, model **dom.BoxModel, opts ...QueryOption) Action {
	return ActionFunc(func(ctx context.Context) error {
		n, err := firstNode(ctx, sel)
		if err != nil {
			return err
		}
		c := FromContext(ctx)
		raw, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandDOMGetBoxModel, &dom.GetBoxModelParams{NodeID: n.NodeID})
		if err != nil {
			return err
		}
		var ret dom.GetBoxModelReturns
		if err := easyjson.Unmarshal(raw, &ret); err != nil {
			return wrapf(ErrDeserializeFailed, "box model: %v", err)
		}
		if ret.Model == nil || len(ret.Model.Content) != 8 {
			return ErrInvalidBoxModel
		}
		*model = ret.Model
		return nil
	})
}

// Text retrieves the visible (rendered) text content of the first node
// matching sel.
func Text(sel string, text *string, opts ...QueryOption) Action {
	return Evaluate(fmt.Sprintf("document.querySelector(%q).innerText", sel), text)
}

// Value retrieves the .value property of the first input/select/textarea
// matching sel.
func Value(sel string, value *string, opts ...QueryOption) Action {
	return Evaluate(fmt.Sprintf("document.querySelector(%q).value", sel), value)
}

// SetValue sets the .value property of the first node matching sel and
// dispatches an "input" event, matching what a real keystroke would do.
func SetValue(sel, value string, opts ...QueryOption) Action {
	expr := fmt.Sprintf(`(function(){
		var el = document.querySelector(%q);
		el.value = %q;
		el.dispatchEvent(new Event('input', {bubbles: true}));
	})()`, sel, value)
	return Evaluate(expr, nil)
}

// AttributeValue retrieves a single named attribute of the first node
// matching sel.
func AttributeValue(sel, name string, value *string, ok *bool, opts ...QueryOption) Action {
	return ActionFunc(func(ctx context.Context) error {
		n, err := firstNode(ctx, sel)
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(n.Attributes); i += 2 {
			if n.Attributes[i] == name {
				*value = n.Attributes[i+1]
				if ok != nil {
					*ok = true
				}
				return nil
			}
		}
		if ok != nil {
			*ok = false
		}
		return nil
	})
}
