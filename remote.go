package cdpilot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// RemoteAllocator is an Allocator that attaches to an already-running
// browser's HTTP debugger endpoint instead of spawning a new process,
// adapted from the teacher's discovery client for attach-mode use.
type RemoteAllocator struct {
	// Endpoint is either a full debugger WebSocket URL
	// ("ws://host:port/devtools/browser/<id>"), or an HTTP origin
	// ("http://host:port") to be resolved via /json/version.
	Endpoint string
}

// versionInfo mirrors the subset of /json/version's response cdpilot needs.
type versionInfo struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func (a *RemoteAllocator) Allocate(ctx context.Context) (*Browser, error) {
	wsURL := a.Endpoint
	if strings.HasPrefix(wsURL, "http://") || strings.HasPrefix(wsURL, "https://") {
		resolved, err := resolveDebuggerURL(ctx, wsURL)
		if err != nil {
			return nil, err
		}
		wsURL = resolved
	}
	return NewBrowser(ctx, wsURL, nil, nil, nil)
}

// Wait is a no-op: a RemoteAllocator never owns the remote process.
func (a *RemoteAllocator) Wait() {}

func resolveDebuggerURL(ctx context.Context, origin string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(origin, "/")+"/json/version", nil)
	if err != nil {
		return "", wrapf(ErrWebSocketConnectFailed, "build version request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", wrapf(ErrWebSocketConnectFailed, "fetch /json/version: %v", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", wrapf(ErrWebSocketConnectFailed, "read /json/version: %v", err)
	}
	var v versionInfo
	if err := json.Unmarshal(body, &v); err != nil {
		return "", wrapf(ErrWebSocketConnectFailed, "decode /json/version: %v", err)
	}
	if v.WebSocketDebuggerURL == "" {
		return "", wrapf(ErrWebSocketConnectFailed, "no webSocketDebuggerUrl at %s", origin)
	}
	return v.WebSocketDebuggerURL, nil
}
