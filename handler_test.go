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
	"go.uber.org/goleak"
)

// mockTransport is an in-memory Transport for driving a Handler's event loop
// in tests without a real browser on the other end.
type mockTransport struct {
	incoming chan *cdproto.Message
	sent     chan *cdproto.Message
	closed   chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		incoming: make(chan *cdproto.Message, 16),
		sent:     make(chan *cdproto.Message, 16),
		closed:   make(chan struct{}),
	}
}

func (m *mockTransport) Read() (*cdproto.Message, error) {
	select {
	case msg, ok := <-m.incoming:
		if !ok {
			return nil, ErrTransportClosed
		}
		return msg, nil
	case <-m.closed:
		return nil, ErrTransportClosed
	}
}

func (m *mockTransport) Write(msg *cdproto.Message) error {
	select {
	case m.sent <- msg:
		return nil
	case <-m.closed:
		return ErrTransportClosed
	}
}

func (m *mockTransport) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *mockTransport, context.CancelFunc) {
	t.Helper()
	mt := newMockTransport()
	h := NewHandler(mt, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	return h, mt, cancel
}

func TestHandlerExecuteRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	h, mt, cancel := newTestHandler(t)
	defer cancel()

	done := make(chan struct{})
	var result easyjson.RawMessage
	var err error
	go func() {
		result, err = h.Execute(context.Background(), "", cdproto.CommandTargetGetTargets, nil)
		close(done)
	}()

	sent := <-mt.sent
	require.Equal(t, cdproto.CommandTargetGetTargets, sent.Method)

	mt.incoming <- &cdproto.Message{ID: sent.ID, Result: easyjson.RawMessage(`{"ok":true}`)}

	<-done
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(result))

	cancel()
	<-h.Done()
}

func TestHandlerExecuteProtocolError(t *testing.T) {
	defer goleak.VerifyNone(t)
	h, mt, cancel := newTestHandler(t)
	defer cancel()

	done := make(chan struct{})
	var err error
	go func() {
		_, err = h.Execute(context.Background(), "", cdproto.CommandPageNavigate, nil)
		close(done)
	}()

	sent := <-mt.sent
	mt.incoming <- &cdproto.Message{
		ID:    sent.ID,
		Error: &cdproto.Error{Code: -32000, Message: "boom"},
	}

	<-done
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "boom", perr.Message)

	cancel()
	<-h.Done()
}

func TestHandlerExecuteTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)
	h, mt, cancel := newTestHandler(t)
	defer cancel()

	ctx, cancelReq := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelReq()

	_, err := h.Execute(ctx, "", cdproto.CommandPageNavigate, nil)
	require.ErrorIs(t, err, ErrTimeout)
	<-mt.sent

	cancel()
	<-h.Done()
}

func TestHandlerAttachDetachCascadesCommandsAndNav(t *testing.T) {
	defer goleak.VerifyNone(t)
	h, mt, cancel := newTestHandler(t)
	defer cancel()

	attached, err := easyjson.Marshal(&target.EventAttachedToTarget{
		SessionID:  "sess1",
		TargetInfo: &target.Info{TargetID: "t1", Type: "page"},
	})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{Method: cdproto.EventTargetAttachedToTarget, Params: attached}

	require.Eventually(t, func() bool {
		ids, err := h.SessionIDs(context.Background())
		return err == nil && len(ids) == 1
	}, time.Second, time.Millisecond)

	navDone := make(chan error, 1)
	go func() {
		navDone <- h.WaitForNavigation(context.Background(), "sess1", "main", "load")
	}()

	framed, err := easyjson.Marshal(&page.EventFrameNavigated{
		Frame: &page.Frame{ID: "main", LoaderID: "loader-1"},
	})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{Method: cdproto.EventPageFrameNavigated, SessionID: "sess1", Params: framed}

	lifecycle, err := easyjson.Marshal(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "loader-1", Name: "load"})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{Method: cdproto.EventPageLifecycleEvent, SessionID: "sess1", Params: lifecycle}

	select {
	case err := <-navDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("navigation wait never resolved")
	}

	// Detaching the session should fail any subsequent waiter immediately.
	go func() {
		navDone <- h.WaitForNavigation(context.Background(), "sess1", "main", "networkIdle")
	}()

	detached, err := easyjson.Marshal(&target.EventDetachedFromTarget{SessionID: "sess1"})
	require.NoError(t, err)
	mt.incoming <- &cdproto.Message{Method: cdproto.EventTargetDetachedFromTarget, Params: detached}

	select {
	case err := <-navDone:
		require.ErrorIs(t, err, ErrTargetGone)
	case <-time.After(time.Second):
		t.Fatal("navigation wait never resolved after detach")
	}

	cancel()
	<-h.Done()
}

func TestHandlerShutdownDrainsPendingCommands(t *testing.T) {
	defer goleak.VerifyNone(t)
	h, mt, cancel := newTestHandler(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := h.Execute(context.Background(), "", cdproto.CommandPageNavigate, nil)
		errCh <- err
	}()
	<-mt.sent

	cancel()
	<-h.Done()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("pending execute never resolved on shutdown")
	}
}
