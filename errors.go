package cdpilot

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds, per the failure taxonomy. Callers should compare
// against these with errors.Is; the pkg/errors wrapping below preserves
// that even once operation context has been attached.
var (
	// ErrLaunchFailed is returned when the browser process could not be
	// started, or exited before publishing its debugger URL.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrExecutableNotFound is returned when no Chromium-family binary
	// could be located on the host.
	ErrExecutableNotFound = errors.New("executable not found")

	// ErrWebSocketConnectFailed is returned when the debugger WebSocket
	// endpoint could not be dialed.
	ErrWebSocketConnectFailed = errors.New("websocket connect failed")

	// ErrTransportClosed is returned to every pending and future caller
	// once the transport to the browser has closed.
	ErrTransportClosed = errors.New("transport closed")

	// ErrTimeout is returned when a command's deadline elapses before a
	// response arrives.
	ErrTimeout = errors.New("command timed out")

	// ErrNotAttached is returned when a command is issued against a
	// target that has no live session.
	ErrNotAttached = errors.New("target not attached")

	// ErrTargetGone is returned to commands in flight against a target
	// that was destroyed.
	ErrTargetGone = errors.New("target destroyed")

	// ErrNoSuchFrame is returned when an operation names a frame id that
	// is not (or no longer) present in the frame tree.
	ErrNoSuchFrame = errors.New("no such frame")

	// ErrNoSuchExecutionContext is returned when an operation needs an
	// execution context that hasn't been created, or was cleared.
	ErrNoSuchExecutionContext = errors.New("no such execution context")

	// ErrNoSuchElement is returned when a selector query yields zero
	// nodes but at least one was required.
	ErrNoSuchElement = errors.New("no such element")

	// ErrDeserializeFailed is returned when a response or event payload
	// could not be unmarshaled into its expected type.
	ErrDeserializeFailed = errors.New("deserialize failed")

	// ErrCancelled is returned to a command whose caller dropped the
	// context/future before a response arrived.
	ErrCancelled = errors.New("cancelled")

	// ErrChannelClosed is returned when a result channel was closed
	// without ever delivering a value, which should not normally happen.
	ErrChannelClosed = errors.New("channel closed")

	// ErrInvalidContext is returned when an Action is run against a
	// context.Context that was never set up with NewContext/NewExecContext.
	ErrInvalidContext = errors.New("invalid context: missing allocator or handler")

	// ErrInvalidBoxModel is returned when DOM.getBoxModel's content quad
	// can't be reduced to a usable center point.
	ErrInvalidBoxModel = errors.New("invalid box model")

	// ErrFrameSizeExceeded is returned (and the transport closed) when an
	// incoming frame exceeds MaxFrameSize.
	ErrFrameSizeExceeded = errors.New("frame size exceeded")
)

// ProtocolError is a verbatim CDP error response: { code, message, data }.
// It is never retried automatically, and is surfaced to exactly the caller
// whose command elicited it.
type ProtocolError struct {
	Code    int64
	Message string
	Data    string
}

func (e *ProtocolError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// LaggedEventStream is delivered to an event subscriber whose bounded
// buffer overflowed; at least one event was dropped before this one.
type LaggedEventStream struct {
	// Dropped is the number of events dropped before this indicator was
	// observed.
	Dropped int
}

func (e *LaggedEventStream) Error() string {
	return fmt.Sprintf("event stream lagged, dropped %d events", e.Dropped)
}

// wrapf attaches operation context to a sentinel error while keeping it
// matchable with errors.Is(err, sentinel).
func wrapf(sentinel error, format string, args ...interface{}) error {
	return errors.Wrapf(sentinel, format, args...)
}
