package cdpilot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

// EvaluateAction is the category of Action returned by Evaluate.
type EvaluateAction Action

// Evaluate evaluates a Javascript expression against the Context's current
// page, unmarshaling the result into res.
//
// When res is nil, the result is ignored. When res is a *[]byte, the raw
// JSON-encoded value is placed in res. When res is a **runtime.RemoteObject,
// res is set to the low-level protocol value and no further decoding is
// attempted — the caller is responsible for eventually releasing it with
// runtime.releaseObject. Otherwise, the value is returned by value and
// json.Unmarshaled into res; an "undefined" result is an error in this case.
//
// Any Javascript exception raised during evaluation is returned as an error.
func Evaluate(expression string, res interface{}, opts ...EvaluateOption) EvaluateAction {
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}

		p := &runtime.EvaluateParams{Expression: expression}
		if _, ok := res.(**runtime.RemoteObject); !ok {
			p.ReturnByValue = true
		}
		for _, o := range opts {
			p = o(p)
		}

		raw, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandRuntimeEvaluate, p)
		if err != nil {
			return err
		}
		var ret runtime.EvaluateReturns
		if err := easyjson.Unmarshal(raw, &ret); err != nil {
			return wrapf(ErrDeserializeFailed, "evaluate result: %v", err)
		}
		if ret.ExceptionDetails != nil {
			return ret.ExceptionDetails
		}
		return parseRemoteObject(ret.Result, res)
	})
}

func parseRemoteObject(v *runtime.RemoteObject, res interface{}) error {
	if res == nil || v == nil {
		return nil
	}
	switch x := res.(type) {
	case **runtime.RemoteObject:
		*x = v
		return nil
	case *[]byte:
		*x = v.Value
		return nil
	}
	if v.Type == "undefined" {
		return fmt.Errorf("cdpilot: evaluate result is undefined")
	}
	return json.Unmarshal(v.Value, res)
}

// EvaluateAsDevTools evaluates expression as the DevTools console would:
// in the "console" object group, with the Command Line API available.
//
// Do not use this with untrusted Javascript.
func EvaluateAsDevTools(expression string, res interface{}, opts ...EvaluateOption) EvaluateAction {
	return Evaluate(expression, res, append(opts, EvalObjectGroup("console"), EvalWithCommandLineAPI)...)
}

// EvaluateOption configures a runtime.EvaluateParams before it is sent.
type EvaluateOption func(*runtime.EvaluateParams) *runtime.EvaluateParams

// EvalObjectGroup sets the object group the result (if any) is added to.
func EvalObjectGroup(group string) EvaluateOption {
	return func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		p.ObjectGroup = group
		return p
	}
}

// EvalWithCommandLineAPI makes the DevTools Command Line API available to
// the evaluated script. Do not use this with untrusted Javascript.
func EvalWithCommandLineAPI(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	p.IncludeCommandLineAPI = true
	return p
}

// EvalIgnoreExceptions causes evaluation to ignore (not report) exceptions.
func EvalIgnoreExceptions(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	p.Silent = true
	return p
}

// EvalAsValue forces the result to be returned by value rather than as a
// remote object reference.
func EvalAsValue(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	p.ReturnByValue = true
	return p
}
