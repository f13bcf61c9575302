package transport

import (
	"context"
	"encoding/json"

	"github.com/floorlink/floorlink/pkg/wire"
)

// MemBroker is an in-process channel broker implementing the presence and
// broadcast semantics: a sync snapshot on subscribe, join/leave fan-out on
// track/unsubscribe, and broadcast fan-out to every subscriber including the
// sender (self-filtering is the adapter's job). It runs as a single actor
// goroutine; all state lives inside the loop.
type MemBroker struct {
	inbox  chan brokerMsg
	ctx    context.Context
	cancel context.CancelFunc
}

type brokerMsg interface{ isBrokerMsg() }

type brokerSubscribe struct {
	id    string
	out   chan Event
	reply chan map[string]wire.PresenceState
}

type brokerTrack struct {
	id    string
	state wire.PresenceState
}

type brokerSend struct {
	id      string
	event   string
	payload json.RawMessage
}

type brokerUnsubscribe struct {
	id   string
	done chan struct{}
}

// brokerInject delivers a server-originated broadcast (penalty, pvp_resolved,
// ...) with no sending entity.
type brokerInject struct {
	event   string
	payload json.RawMessage
}

func (brokerSubscribe) isBrokerMsg()   {}
func (brokerTrack) isBrokerMsg()       {}
func (brokerSend) isBrokerMsg()        {}
func (brokerUnsubscribe) isBrokerMsg() {}
func (brokerInject) isBrokerMsg()      {}

func NewMemBroker(parent context.Context) *MemBroker {
	ctx, cancel := context.WithCancel(parent)
	b := &MemBroker{
		inbox:  make(chan brokerMsg, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	go b.loop()
	return b
}

// Client builds a transport bound to this broker for the given entity id.
func (b *MemBroker) Client(id string) *MemTransport {
	return &MemTransport{broker: b, id: id, out: make(chan Event, 64)}
}

// Inject emits a server-originated broadcast to every subscriber.
func (b *MemBroker) Inject(event string, payload json.RawMessage) {
	select {
	case b.inbox <- brokerInject{event: event, payload: payload}:
	case <-b.ctx.Done():
	}
}

// Close shuts the broker down; subscribers see their event channels close.
func (b *MemBroker) Close() { b.cancel() }

func (b *MemBroker) loop() {
	clients := make(map[string]chan Event)
	states := make(map[string]wire.PresenceState)

	deliver := func(ch chan Event, ev Event) {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop the event, keep the client. Broadcasts
			// are fire-and-forget.
		}
	}
	fanout := func(ev Event) {
		for _, ch := range clients {
			deliver(ch, ev)
		}
	}

	for {
		select {
		case <-b.ctx.Done():
			for id, ch := range clients {
				close(ch)
				delete(clients, id)
			}
			return

		case m := <-b.inbox:
			switch msg := m.(type) {
			case brokerSubscribe:
				clients[msg.id] = msg.out
				snap := make(map[string]wire.PresenceState, len(states))
				for id, st := range states {
					snap[id] = st
				}
				msg.reply <- snap

			case brokerTrack:
				states[msg.id] = msg.state
				fanout(Event{Kind: KindPresenceJoin, EntityID: msg.id, State: msg.state})

			case brokerSend:
				fanout(Event{Kind: KindBroadcast, EntityID: msg.id, Name: msg.event, Payload: msg.payload})

			case brokerInject:
				fanout(Event{Kind: KindBroadcast, Name: msg.event, Payload: msg.payload})

			case brokerUnsubscribe:
				if ch, ok := clients[msg.id]; ok {
					delete(clients, msg.id)
					close(ch)
				}
				delete(states, msg.id)
				fanout(Event{Kind: KindPresenceLeave, EntityID: msg.id})
				close(msg.done)
			}
		}
	}
}

// MemTransport is the client side of a MemBroker channel.
type MemTransport struct {
	broker     *MemBroker
	id         string
	out        chan Event
	subscribed bool
	closed     bool
}

var _ Transport = (*MemTransport)(nil)

// Subscribe registers with the broker and queues the initial presence sync.
// Fails with ErrSubscribeTimeout when the broker does not answer before ctx
// expires (or is already shut down).
func (t *MemTransport) Subscribe(ctx context.Context) error {
	reply := make(chan map[string]wire.PresenceState, 1)
	select {
	case t.broker.inbox <- brokerSubscribe{id: t.id, out: t.out, reply: reply}:
	case <-ctx.Done():
		return ErrSubscribeTimeout
	case <-t.broker.ctx.Done():
		return ErrSubscribeTimeout
	}
	select {
	case snap := <-reply:
		t.subscribed = true
		t.out <- Event{Kind: KindPresenceSync, Snapshot: snap}
		return nil
	case <-ctx.Done():
		return ErrSubscribeTimeout
	}
}

func (t *MemTransport) Track(state wire.PresenceState) error {
	if !t.subscribed {
		return ErrNotSubscribed
	}
	select {
	case t.broker.inbox <- brokerTrack{id: t.id, state: state}:
		return nil
	case <-t.broker.ctx.Done():
		return nil // channel already tearing down, expected noise
	}
}

func (t *MemTransport) Send(event string, payload json.RawMessage) error {
	if !t.subscribed {
		return ErrNotSubscribed
	}
	select {
	case t.broker.inbox <- brokerSend{id: t.id, event: event, payload: payload}:
		return nil
	case <-t.broker.ctx.Done():
		return nil
	}
}

func (t *MemTransport) Events() <-chan Event { return t.out }

// Unsubscribe detaches from the broker. Safe to call twice; errors from a
// broker already mid-teardown are suppressed.
func (t *MemTransport) Unsubscribe(ctx context.Context) error {
	if t.closed || !t.subscribed {
		t.closed = true
		return nil
	}
	t.closed = true
	done := make(chan struct{})
	select {
	case t.broker.inbox <- brokerUnsubscribe{id: t.id, done: done}:
	case <-t.broker.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case <-done:
	case <-t.broker.ctx.Done():
	case <-ctx.Done():
	}
	return nil
}
