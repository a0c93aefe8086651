package cdpilot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

// PollAction is the category of Action returned by Poll.
type PollAction Action

// pollTask configures a Poll call; built up by PollOption.
type pollTask struct {
	polling  string // "raf" or "mutation"; ignored when interval > 0
	interval time.Duration
	timeout  time.Duration
	args     []interface{}
	res      interface{}
}

// PollOption configures a pollTask.
type PollOption func(*pollTask)

// WithPollingInterval polls on a fixed timer instead of
// requestAnimationFrame.
func WithPollingInterval(d time.Duration) PollOption {
	return func(p *pollTask) { p.interval = d }
}

// WithPollingMutation polls on DOM mutation instead of
// requestAnimationFrame.
func WithPollingMutation() PollOption {
	return func(p *pollTask) { p.polling = "mutation" }
}

// WithPollingTimeout bounds how long Poll waits before giving up (default
// 30s).
func WithPollingTimeout(d time.Duration) PollOption {
	return func(p *pollTask) { p.timeout = d }
}

// WithPollingArgs supplies extra arguments to predicate, after which they
// are available as arguments[0], arguments[1], ... inside it.
func WithPollingArgs(args ...interface{}) PollOption {
	return func(p *pollTask) { p.args = args }
}

const waitForPredicatePageFunction = `
function waitForPredicate(predicateBody, polling, timeout) {
	var extraArgs = Array.prototype.slice.call(arguments, 3);
	// predicateBody arrives as source text (a JSON-encoded string call
	// argument, since a live function value can't cross the protocol), so
	// it's turned back into a callable here.
	var predicate = new Function("return (" + predicateBody + ").apply(null, arguments);");
	var deadline = Date.now() + timeout;
	return new Promise(function(resolve, reject) {
		function check() {
			var ok;
			try {
				ok = predicate.apply(null, extraArgs);
			} catch (e) {
				reject(e);
				return;
			}
			if (ok) {
				resolve(ok);
				return;
			}
			if (Date.now() > deadline) {
				reject(new Error("polling timed out"));
				return;
			}
			if (polling === "mutation") {
				var observer = new MutationObserver(function() {
					observer.disconnect();
					check();
				});
				observer.observe(document, {childList: true, subtree: true, attributes: true});
			} else if (typeof polling === "number") {
				setTimeout(check, polling);
			} else {
				requestAnimationFrame(check);
			}
		}
		check();
	});
}
`

// Poll evaluates predicate (a Javascript expression yielding a function)
// repeatedly until it returns a truthy value or the timeout elapses,
// unmarshaling its result into res (same conventions as Evaluate).
func Poll(predicate string, res interface{}, opts ...PollOption) PollAction {
	p := &pollTask{polling: "raf", timeout: 30 * time.Second, res: res}
	for _, o := range opts {
		o(p)
	}
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}

		callArgs := make([]*runtime.CallArgument, 0, len(p.args)+3)
		appendArg := func(v interface{}) error {
			buf, err := json.Marshal(v)
			if err != nil {
				return err
			}
			callArgs = append(callArgs, &runtime.CallArgument{Value: buf})
			return nil
		}
		if err := appendArg(predicate); err != nil {
			return wrapf(ErrDeserializeFailed, "marshal predicate: %v", err)
		}
		var pollArg interface{} = p.polling
		if p.interval > 0 {
			pollArg = p.interval.Milliseconds()
		}
		if err := appendArg(pollArg); err != nil {
			return wrapf(ErrDeserializeFailed, "marshal polling mode: %v", err)
		}
		if err := appendArg(p.timeout.Milliseconds()); err != nil {
			return wrapf(ErrDeserializeFailed, "marshal timeout: %v", err)
		}
		for _, arg := range p.args {
			if err := appendArg(arg); err != nil {
				return wrapf(ErrDeserializeFailed, "marshal poll arg: %v", err)
			}
		}

		params := &runtime.CallFunctionOnParams{
			FunctionDeclaration: waitForPredicatePageFunction,
			Arguments:           callArgs,
			AwaitPromise:        true,
			ReturnByValue:       true,
		}
		raw, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandRuntimeCallFunctionOn, params)
		if err != nil {
			return err
		}
		var ret runtime.CallFunctionOnReturns
		if err := easyjson.Unmarshal(raw, &ret); err != nil {
			return wrapf(ErrDeserializeFailed, "poll result: %v", err)
		}
		if ret.ExceptionDetails != nil {
			return ret.ExceptionDetails
		}
		return parseRemoteObject(ret.Result, p.res)
	})
}
