package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/floorlink/floorlink/internal/interp"
	"github.com/floorlink/floorlink/internal/presence"
	"github.com/floorlink/floorlink/internal/pubsub"
	"github.com/floorlink/floorlink/internal/transport"
	"github.com/floorlink/floorlink/pkg/wire"
)

// ServerEvent is a server-originated broadcast category (penalty,
// hand_granted, pvp_resolved, chat_message) routed to subscribers with its
// payload uninterpreted.
type ServerEvent struct {
	Name    string
	Payload json.RawMessage
}

// Adapter bridges the channel transport to the presence registry and the
// interpolation buffer, and owns the local position that gets re-broadcast.
// It is the exclusive writer of both structures and runs entirely on the
// session loop.
type Adapter struct {
	tr  transport.Transport
	reg *presence.Registry
	buf *interp.Buffer
	log *zap.SugaredLogger

	localID      string
	localState   wire.PresenceState
	broadcasting bool

	ServerEvents pubsub.Emitter[ServerEvent]
}

func NewAdapter(tr transport.Transport, local wire.Entity, reg *presence.Registry, buf *interp.Buffer, log *zap.SugaredLogger) *Adapter {
	return &Adapter{
		tr:         tr,
		reg:        reg,
		buf:        buf,
		log:        log,
		localID:    local.ID,
		localState: wire.PresenceState{
			EntityID: local.ID,
			Name:     local.Name,
			Avatar:   local.Avatar,
			Pos:      local.Pos,
			Heading:  local.Heading,
		},
	}
}

// Subscribe establishes the channel session and announces local presence with
// the initial state. The transport enforces the readiness timeout and returns
// transport.ErrSubscribeTimeout past it.
func (a *Adapter) Subscribe(ctx context.Context) error {
	if err := a.tr.Subscribe(ctx); err != nil {
		return err
	}
	if err := a.tr.Track(a.localState); err != nil {
		return fmt.Errorf("announce presence: %w", err)
	}
	return nil
}

// StartPositionBroadcast enables the periodic re-broadcast. Idempotent: the
// second call reports false and nothing else changes, so no duplicate timer
// can exist.
func (a *Adapter) StartPositionBroadcast() bool {
	if a.broadcasting {
		return false
	}
	a.broadcasting = true
	return true
}

// Broadcasting reports whether the periodic re-broadcast is enabled.
func (a *Adapter) Broadcasting() bool { return a.broadcasting }

// UpdateLocalPosition records the latest local position for the next
// scheduled broadcast. It never sends on its own; the simulation rate stays
// decoupled from the network send rate.
func (a *Adapter) UpdateLocalPosition(x, y, heading float64) {
	a.localState.Pos = wire.Position{X: x, Y: y}
	a.localState.Heading = heading
}

// LocalPosition returns the last set local position and heading.
func (a *Adapter) LocalPosition() (wire.Position, float64) {
	return a.localState.Pos, a.localState.Heading
}

// BroadcastPosition publishes the latest local position, called from the
// session loop on the broadcast ticker. No-op until StartPositionBroadcast.
func (a *Adapter) BroadcastPosition(now time.Time) {
	if !a.broadcasting {
		return
	}
	payload := wire.Marshal(wire.PositionUpdate{
		EntityID: a.localID,
		X:        a.localState.Pos.X,
		Y:        a.localState.Pos.Y,
		Heading:  a.localState.Heading,
		SentAt:   now.UnixMilli(),
	})
	if err := a.tr.Send(wire.EventPosition, payload); err != nil && a.log != nil {
		a.log.Debugw("position broadcast failed", "err", err)
	}
}

// HandleEvent routes one transport event: presence events to the registry,
// position broadcasts to the interpolation buffer, and every other broadcast
// category to ServerEvents subscribers. Position messages from the local
// entity are dropped (no self-feedback).
func (a *Adapter) HandleEvent(ev transport.Event, now time.Time) {
	switch ev.Kind {
	case transport.KindPresenceSync:
		a.reg.OnSync(ev.Snapshot, now)
	case transport.KindPresenceJoin:
		a.reg.OnJoin(ev.EntityID, ev.State, now)
	case transport.KindPresenceLeave:
		a.reg.OnLeave(ev.EntityID)
	case transport.KindBroadcast:
		if ev.Name != wire.EventPosition {
			a.ServerEvents.Emit(ServerEvent{Name: ev.Name, Payload: ev.Payload})
			return
		}
		var upd wire.PositionUpdate
		if err := json.Unmarshal(ev.Payload, &upd); err != nil {
			if a.log != nil {
				a.log.Debugw("dropping malformed position update", "err", err)
			}
			return
		}
		if upd.EntityID == a.localID {
			return
		}
		a.buf.Push(upd.EntityID, interp.Sample{
			Pos:     wire.Position{X: upd.X, Y: upd.Y},
			Heading: upd.Heading,
			At:      time.UnixMilli(upd.SentAt),
		})
	}
}

// Unsubscribe tears the channel down and clears all local buffers. Safe to
// call multiple times; teardown noise is suppressed by the transport.
func (a *Adapter) Unsubscribe(ctx context.Context) {
	a.broadcasting = false
	if err := a.tr.Unsubscribe(ctx); err != nil && a.log != nil {
		a.log.Debugw("unsubscribe noise", "err", err)
	}
	a.reg.Reset()
}
