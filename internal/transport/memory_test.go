package transport

import (
	"context"
	"testing"
	"time"

	"github.com/floorlink/floorlink/pkg/wire"
)

// recvEvent waits for one event with a timeout so tests never hang.
func recvEvent(t *testing.T, ch <-chan Event, within time.Duration) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return Event{} // unreachable
	}
}

func recvKind(t *testing.T, ch <-chan Event, kind EventKind, within time.Duration) Event {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for kind %d", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
			return Event{} // unreachable
		}
	}
}

func TestSubscribeDeliversSyncSnapshot(t *testing.T) {
	ctx := context.Background()
	b := NewMemBroker(ctx)
	defer b.Close()

	a := b.Client("a")
	if err := a.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if err := a.Track(wire.PresenceState{EntityID: "a"}); err != nil {
		t.Fatalf("track a: %v", err)
	}

	// A later subscriber sees a's state in its sync snapshot.
	recvKind(t, a.Events(), KindPresenceJoin, time.Second) // a's own join echo

	c := b.Client("c")
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe c: %v", err)
	}
	sync := recvKind(t, c.Events(), KindPresenceSync, time.Second)
	if _, ok := sync.Snapshot["a"]; !ok {
		t.Fatalf("sync snapshot missing tracked entity: %+v", sync.Snapshot)
	}
}

func TestBroadcastReachesEveryoneIncludingSender(t *testing.T) {
	ctx := context.Background()
	b := NewMemBroker(ctx)
	defer b.Close()

	a, c := b.Client("a"), b.Client("c")
	for _, tr := range []*MemTransport{a, c} {
		if err := tr.Subscribe(ctx); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	if err := a.Send(wire.EventPosition, wire.Marshal(wire.PositionUpdate{EntityID: "a", X: 1})); err != nil {
		t.Fatalf("send: %v", err)
	}

	for name, tr := range map[string]*MemTransport{"sender": a, "peer": c} {
		ev := recvKind(t, tr.Events(), KindBroadcast, time.Second)
		if ev.Name != wire.EventPosition || ev.EntityID != "a" {
			t.Fatalf("%s got wrong broadcast: %+v", name, ev)
		}
	}
}

func TestLeaveFansPresenceLeave(t *testing.T) {
	ctx := context.Background()
	b := NewMemBroker(ctx)
	defer b.Close()

	a, c := b.Client("a"), b.Client("c")
	_ = a.Subscribe(ctx)
	_ = c.Subscribe(ctx)

	if err := a.Unsubscribe(ctx); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	ev := recvKind(t, c.Events(), KindPresenceLeave, time.Second)
	if ev.EntityID != "a" {
		t.Fatalf("want leave for a, got %+v", ev)
	}
}

func TestUnsubscribeTwiceIsNoOp(t *testing.T) {
	ctx := context.Background()
	b := NewMemBroker(ctx)
	defer b.Close()

	a := b.Client("a")
	_ = a.Subscribe(ctx)
	if err := a.Unsubscribe(ctx); err != nil {
		t.Fatalf("first unsubscribe: %v", err)
	}
	if err := a.Unsubscribe(ctx); err != nil {
		t.Fatalf("second unsubscribe must be a no-op, got %v", err)
	}
}

func TestSendBeforeSubscribeRejected(t *testing.T) {
	b := NewMemBroker(context.Background())
	defer b.Close()

	a := b.Client("a")
	if err := a.Send("x", nil); err != ErrNotSubscribed {
		t.Fatalf("want ErrNotSubscribed, got %v", err)
	}
}

func TestSubscribeAgainstClosedBrokerTimesOut(t *testing.T) {
	b := NewMemBroker(context.Background())
	b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := b.Client("a").Subscribe(ctx); err != ErrSubscribeTimeout {
		t.Fatalf("want ErrSubscribeTimeout, got %v", err)
	}
}
