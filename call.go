package cdpilot

import (
	"context"
	"encoding/json"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

// CallAction is the category of Action returned by CallFunctionOn.
type CallAction Action

// CallFunctionOn calls the Javascript function functionDeclaration with
// args, unmarshaling its result into res the same way Evaluate does.
//
// Do not set ReturnByValue or Arguments on opt's params directly: args
// supplies the arguments, and res's type determines ReturnByValue.
func CallFunctionOn(functionDeclaration string, res interface{}, opt CallOption, args ...interface{}) CallAction {
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}

		p := &runtime.CallFunctionOnParams{FunctionDeclaration: functionDeclaration, Silent: true}
		switch res.(type) {
		case nil, **runtime.RemoteObject:
		default:
			p.ReturnByValue = true
		}
		if opt != nil {
			p = opt(p)
		}
		if len(args) > 0 {
			callArgs := make([]*runtime.CallArgument, len(args))
			for i, arg := range args {
				buf, err := json.Marshal(arg)
				if err != nil {
					return wrapf(ErrDeserializeFailed, "marshal call argument %d: %v", i, err)
				}
				callArgs[i] = &runtime.CallArgument{Value: buf}
			}
			p.Arguments = callArgs
		}

		raw, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandRuntimeCallFunctionOn, p)
		if err != nil {
			return err
		}
		var ret runtime.CallFunctionOnReturns
		if err := easyjson.Unmarshal(raw, &ret); err != nil {
			return wrapf(ErrDeserializeFailed, "callFunctionOn result: %v", err)
		}
		if ret.ExceptionDetails != nil {
			return ret.ExceptionDetails
		}
		return parseRemoteObject(ret.Result, res)
	})
}

// CallOption configures a runtime.CallFunctionOnParams before it is sent.
type CallOption func(*runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams

// CallObjectGroup sets the object group the result (if any) is added to.
func CallObjectGroup(group string) CallOption {
	return func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		p.ObjectGroup = group
		return p
	}
}
