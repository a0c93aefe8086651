package cdpilot

import (
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/stretchr/testify/require"
)

func TestEventRouterCatchAll(t *testing.T) {
	r := newEventRouter()
	sub := r.subscribeAll(4)

	r.publish(Event{Method: cdproto.EventPageFrameNavigated})

	ev, lag, ok := recv(sub)
	require.True(t, ok)
	require.Nil(t, lag)
	require.Equal(t, cdproto.EventPageFrameNavigated, ev.Method)
}

func TestEventRouterMethodFilter(t *testing.T) {
	r := newEventRouter()
	sub := r.subscribeMethod(cdproto.EventPageLifecycleEvent, 4)

	r.publish(Event{Method: cdproto.EventPageFrameNavigated})
	r.publish(Event{Method: cdproto.EventPageLifecycleEvent})

	ev, _, ok := recv(sub)
	require.True(t, ok)
	require.Equal(t, cdproto.EventPageLifecycleEvent, ev.Method)

	select {
	case <-sub.ch:
		t.Fatal("unexpected second event")
	default:
	}
}

func TestEventRouterTargetFilter(t *testing.T) {
	r := newEventRouter()
	sub := r.subscribeTarget("target-a", 4)

	r.publish(Event{TargetID: "target-b", Method: cdproto.EventPageFrameNavigated})
	r.publish(Event{TargetID: "target-a", Method: cdproto.EventPageLifecycleEvent})

	ev, _, ok := recv(sub)
	require.True(t, ok)
	require.Equal(t, "target-a", ev.TargetID)
}

func TestSubscriberDropOldestAndLag(t *testing.T) {
	sub := newSubscriber(1, 3, nil)
	sub.push(Event{Method: "a"})
	sub.push(Event{Method: "b"})
	sub.push(Event{Method: "c"})
	sub.push(Event{Method: "d"}) // buffer full: drops "a", arms lag

	ev, _, ok := recv(sub)
	require.True(t, ok)
	require.Equal(t, cdproto.MethodType("b"), ev.Method)

	sub.push(Event{Method: "e"}) // room for the lag marker, then overflow drops "c"

	ev, _, ok = recv(sub)
	require.True(t, ok)
	require.Equal(t, cdproto.MethodType("d"), ev.Method)

	_, lag, ok := recv(sub)
	require.True(t, ok)
	require.NotNil(t, lag)
	require.Equal(t, 1, lag.Dropped)

	ev, _, ok = recv(sub)
	require.True(t, ok)
	require.Equal(t, cdproto.MethodType("e"), ev.Method)
}

func TestEventRouterUnsubscribeAndDropTarget(t *testing.T) {
	r := newEventRouter()
	sub := r.subscribeTarget("t1", 4)
	r.unsubscribe(sub)
	r.publish(Event{TargetID: "t1", Method: cdproto.EventPageFrameNavigated})

	select {
	case <-sub.ch:
		t.Fatal("unsubscribed subscriber should not receive events")
	default:
	}

	sub2 := r.subscribeTarget("t2", 4)
	r.dropTarget("t2")
	r.publish(Event{TargetID: "t2", Method: cdproto.EventPageFrameNavigated})
	select {
	case <-sub2.ch:
		t.Fatal("subscriber for dropped target should not receive events")
	default:
	}
}
