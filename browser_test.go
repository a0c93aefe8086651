package cdpilot

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/require"
)

// newTestBrowser builds a Browser around a mockTransport, bypassing
// NewBrowser's real WebSocket dial so Browser-level behavior (Targets,
// Close, NewTarget) can be exercised without a live debugger endpoint.
func newTestBrowser(t *testing.T) (*Browser, *mockTransport) {
	t.Helper()
	mt := newMockTransport()
	h := NewHandler(mt, nil, nil, nil)
	runCtx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		handler:   h,
		state:     BrowserReady,
		runCancel: cancel,
		runDone:   make(chan struct{}),
	}
	go func() {
		defer close(b.runDone)
		h.Run(runCtx)
	}()
	return b, mt
}

func TestBrowserNewTargetAttaches(t *testing.T) {
	b, mt := newTestBrowser(t)

	resCh := make(chan struct {
		id  target.ID
		sid target.SessionID
		err error
	}, 1)
	go func() {
		id, sid, err := b.NewTarget(context.Background(), "about:blank")
		resCh <- struct {
			id  target.ID
			sid target.SessionID
			err error
		}{id, sid, err}
	}()

	create := <-mt.sent
	require.Equal(t, cdproto.CommandTargetCreateTarget, create.Method)
	createRet, err := easyjson.Marshal(&target.CreateTargetReturns{TargetID: "t1"})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{ID: create.ID, Result: createRet}

	attach := <-mt.sent
	require.Equal(t, cdproto.CommandTargetAttachToTarget, attach.Method)
	attachRet, err := easyjson.Marshal(&target.AttachToTargetReturns{SessionID: "sess1"})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{ID: attach.ID, Result: attachRet}

	select {
	case r := <-resCh:
		require.NoError(t, r.err)
		require.Equal(t, target.ID("t1"), r.id)
		require.Equal(t, target.SessionID("sess1"), r.sid)
	case <-time.After(time.Second):
		t.Fatal("NewTarget never returned")
	}

	b.runCancel()
	<-b.runDone
}

func TestBrowserTargetsSnapshotIsSorted(t *testing.T) {
	b, mt := newTestBrowser(t)

	for _, id := range []target.ID{"z", "a", "m"} {
		payload, err := easyjson.Marshal(&target.EventTargetCreated{TargetInfo: &target.Info{TargetID: id, Type: "page"}})
		require.NoError(t, err)
		mt.incoming <- &cdproto.Message{Method: cdproto.EventTargetTargetCreated, Params: payload}
	}

	require.Eventually(t, func() bool {
		targets, err := b.Targets(context.Background())
		return err == nil && len(targets) == 3
	}, time.Second, time.Millisecond)

	targets, err := b.Targets(context.Background())
	require.NoError(t, err)
	require.Equal(t, []target.ID{"a", "m", "z"}, []target.ID{targets[0].TargetID, targets[1].TargetID, targets[2].TargetID})

	b.runCancel()
	<-b.runDone
}

func TestBrowserCloseIsIdempotent(t *testing.T) {
	b, mt := newTestBrowser(t)

	go func() {
		sent := <-mt.sent
		mt.incoming <- &cdproto.Message{ID: sent.ID, Result: easyjson.RawMessage(`{}`)}
	}()

	require.NoError(t, b.Close(context.Background()))
	require.Equal(t, BrowserClosed, b.State())

	// A second Close must be a no-op, not a double-cancel panic.
	require.NoError(t, b.Close(context.Background()))
}
