package cdpilot

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/require"
)

// newAttachedTestContext builds a context.Context bound to sessionID "sess1"
// against a fresh test Browser/Handler, having already delivered an
// attachedToTarget event so the session has a frame tree.
func newAttachedTestContext(t *testing.T) (context.Context, *Browser, *mockTransport) {
	t.Helper()
	b, mt := newTestBrowser(t)

	attached, err := easyjson.Marshal(&target.EventAttachedToTarget{
		SessionID:  "sess1",
		TargetInfo: &target.Info{TargetID: "t1", Type: "page"},
	})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{Method: cdproto.EventTargetAttachedToTarget, Params: attached}

	require.Eventually(t, func() bool {
		ids, err := b.handler.SessionIDs(context.Background())
		return err == nil && len(ids) == 1
	}, time.Second, time.Millisecond)

	c := &Context{Browser: b, TargetID: "t1", SessionID: "sess1", first: true}
	ctx := context.WithValue(context.Background(), contextKey{}, c)
	return ctx, b, mt
}

func TestNavigateWaitsForLoadOnFreshDocument(t *testing.T) {
	ctx, b, mt := newAttachedTestContext(t)

	done := make(chan error, 1)
	go func() { done <- Navigate("https://example.com/").Do(ctx) }()

	sent := <-mt.sent
	require.Equal(t, cdproto.CommandPageNavigate, sent.Method)
	navRet, err := easyjson.Marshal(&page.NavigateReturns{FrameID: "main"})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{ID: sent.ID, Result: navRet}

	framed, err := easyjson.Marshal(&page.EventFrameNavigated{Frame: &page.Frame{ID: "main", LoaderID: "loader-1"}})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{Method: cdproto.EventPageFrameNavigated, SessionID: "sess1", Params: framed}

	lifecycle, err := easyjson.Marshal(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "loader-1", Name: "load"})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{Method: cdproto.EventPageLifecycleEvent, SessionID: "sess1", Params: lifecycle}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("navigate never resolved")
	}

	b.runCancel()
	<-b.runDone
}

func TestNavigatePropagatesLoadError(t *testing.T) {
	ctx, b, mt := newAttachedTestContext(t)

	done := make(chan error, 1)
	go func() { done <- Navigate("https://example.com/").Do(ctx) }()

	sent := <-mt.sent
	navRet, err := easyjson.Marshal(&page.NavigateReturns{ErrorText: "net::ERR_NAME_NOT_RESOLVED"})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{ID: sent.ID, Result: navRet}

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("navigate never resolved")
	}

	b.runCancel()
	<-b.runDone
}

func TestNavigateBackAndForwardBoundsChecking(t *testing.T) {
	ctx, b, mt := newAttachedTestContext(t)

	go func() {
		for sent := range mt.sent {
			if sent.Method == cdproto.CommandPageGetNavigationHistory {
				ret, _ := easyjson.Marshal(&page.GetNavigationHistoryReturns{
					CurrentIndex: 0,
					Entries:      []*page.NavigationEntry{{ID: 1}},
				})
				mt.incoming <- &cdproto.Message{ID: sent.ID, Result: ret}
			}
		}
	}()

	require.Error(t, NavigateBack().Do(ctx))
	require.Error(t, NavigateForward().Do(ctx))

	b.runCancel()
	<-b.runDone
}

func TestSimpleCommandRequiresAttachedSession(t *testing.T) {
	ctx := context.WithValue(context.Background(), contextKey{}, &Context{})
	require.ErrorIs(t, Stop().Do(ctx), ErrInvalidContext)
}

func TestSimpleCommandSendsAndIgnoresResult(t *testing.T) {
	ctx, b, mt := newAttachedTestContext(t)

	done := make(chan error, 1)
	go func() { done <- Stop().Do(ctx) }()

	sent := <-mt.sent
	require.Equal(t, cdproto.CommandPageStopLoading, sent.Method)
	mt.incoming <- &cdproto.Message{ID: sent.ID, Result: easyjson.RawMessage(`{}`)}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stop never resolved")
	}

	b.runCancel()
	<-b.runDone
}
