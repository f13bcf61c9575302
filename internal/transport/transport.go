// Package transport abstracts the presence+broadcast channel the client core
// runs on: a presence channel with sync/join/leave semantics plus a broadcast
// sub-channel for fire-and-forget messages. Two implementations exist: a
// websocket client speaking to the dev relay, and an in-process broker for
// tests and demos.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/floorlink/floorlink/pkg/wire"
)

// DefaultSubscribeTimeout bounds how long Subscribe waits for the channel to
// reach a ready state.
const DefaultSubscribeTimeout = 10 * time.Second

// ErrSubscribeTimeout is returned when the channel does not become ready in
// time. Retry policy belongs to the caller.
var ErrSubscribeTimeout = errors.New("transport: channel subscription timed out")

// ErrNotSubscribed is returned by Track/Send before a successful Subscribe.
var ErrNotSubscribed = errors.New("transport: not subscribed")

// EventKind discriminates delivered channel events.
type EventKind int

const (
	KindPresenceSync EventKind = iota
	KindPresenceJoin
	KindPresenceLeave
	KindBroadcast
)

// Event is one delivered channel event. Exactly the fields for its Kind are
// set: Snapshot for sync, EntityID/State for join, EntityID for leave,
// Name/Payload for broadcast.
type Event struct {
	Kind     EventKind
	Snapshot map[string]wire.PresenceState
	EntityID string
	State    wire.PresenceState
	Name     string
	Payload  json.RawMessage
}

// Transport is the channel session. Events are delivered on the Events
// channel until Unsubscribe, which closes it. Unsubscribe is idempotent and
// never reports teardown noise from an already-closing channel.
type Transport interface {
	Subscribe(ctx context.Context) error
	Track(state wire.PresenceState) error
	Send(event string, payload json.RawMessage) error
	Events() <-chan Event
	Unsubscribe(ctx context.Context) error
}

// frame is the JSON envelope shared by the websocket transport and the relay.
type frame struct {
	Type     string                        `json:"type"`
	EntityID string                        `json:"entity_id,omitempty"`
	State    *wire.PresenceState           `json:"state,omitempty"`
	Snapshot map[string]wire.PresenceState `json:"snapshot,omitempty"`
	Event    string                        `json:"event,omitempty"`
	Payload  json.RawMessage               `json:"payload,omitempty"`
}

// Frame type tags on the wire.
const (
	frameReady         = "ready"
	framePresenceSync  = "presence_sync"
	framePresenceJoin  = "presence_join"
	framePresenceLeave = "presence_leave"
	frameBroadcast     = "broadcast"
	frameTrack         = "track"
)

// decodeEvent maps an inbound frame onto a channel event. Unknown frame types
// report ok=false and are skipped by the read pump.
func decodeEvent(f frame) (Event, bool) {
	switch f.Type {
	case framePresenceSync:
		snap := f.Snapshot
		if snap == nil {
			snap = map[string]wire.PresenceState{}
		}
		return Event{Kind: KindPresenceSync, Snapshot: snap}, true
	case framePresenceJoin:
		if f.State == nil {
			return Event{}, false
		}
		return Event{Kind: KindPresenceJoin, EntityID: f.EntityID, State: *f.State}, true
	case framePresenceLeave:
		return Event{Kind: KindPresenceLeave, EntityID: f.EntityID}, true
	case frameBroadcast:
		return Event{Kind: KindBroadcast, EntityID: f.EntityID, Name: f.Event, Payload: f.Payload}, true
	default:
		return Event{}, false
	}
}
