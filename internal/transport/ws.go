package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/floorlink/floorlink/pkg/wire"
)

// WSTransport speaks the relay's JSON frame protocol over a websocket. The
// relay announces readiness with a "ready" frame right after accept; Subscribe
// fails with ErrSubscribeTimeout when that frame does not arrive in time.
type WSTransport struct {
	url     string
	id      string
	timeout time.Duration
	log     *zap.SugaredLogger

	conn       *websocket.Conn
	out        chan Event
	readCancel context.CancelFunc
	closeOnce  sync.Once
	subscribed bool
}

var _ Transport = (*WSTransport)(nil)

// NewWSTransport builds a transport for one entity. url is the relay's /ws
// endpoint including the session and entity query parameters.
func NewWSTransport(url, entityID string, timeout time.Duration, log *zap.SugaredLogger) *WSTransport {
	if timeout <= 0 {
		timeout = DefaultSubscribeTimeout
	}
	return &WSTransport{
		url:     url,
		id:      entityID,
		timeout: timeout,
		log:     log,
		out:     make(chan Event, 64),
	}
}

func (t *WSTransport) Subscribe(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.url, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrSubscribeTimeout
		}
		return fmt.Errorf("transport: dial %s: %w", t.url, err)
	}

	// The relay speaks first: wait for the ready frame before reporting the
	// channel as established.
	for {
		_, data, err := conn.Read(dialCtx)
		if err != nil {
			_ = conn.Close(websocket.StatusPolicyViolation, "no ready frame")
			if errors.Is(err, context.DeadlineExceeded) {
				return ErrSubscribeTimeout
			}
			return fmt.Errorf("transport: waiting for ready: %w", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.Type == frameReady {
			break
		}
		// Frames queued ahead of ready (none expected today) are dropped.
	}

	t.conn = conn
	t.subscribed = true

	readCtx, readCancel := context.WithCancel(context.Background())
	t.readCancel = readCancel
	go t.readPump(readCtx)
	return nil
}

func (t *WSTransport) readPump(ctx context.Context) {
	defer close(t.out)
	for {
		_, data, err := t.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil && t.log != nil {
					t.log.Warnw("channel read failed", "err", err)
				}
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			if t.log != nil {
				t.log.Debugw("dropping malformed frame", "err", err)
			}
			continue
		}
		ev, ok := decodeEvent(f)
		if !ok {
			continue
		}
		select {
		case t.out <- ev:
		default:
			// Reader stalled: drop rather than block the pump.
		}
	}
}

func (t *WSTransport) Track(state wire.PresenceState) error {
	if !t.subscribed {
		return ErrNotSubscribed
	}
	return t.write(frame{Type: frameTrack, EntityID: t.id, State: &state})
}

func (t *WSTransport) Send(event string, payload json.RawMessage) error {
	if !t.subscribed {
		return ErrNotSubscribed
	}
	return t.write(frame{Type: frameBroadcast, EntityID: t.id, Event: event, Payload: payload})
}

func (t *WSTransport) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write %s: %w", f.Type, err)
	}
	return nil
}

func (t *WSTransport) Events() <-chan Event { return t.out }

// Unsubscribe stops the read pump and closes the connection. Idempotent, and
// close errors from an already-closing peer are expected teardown noise, not
// failures.
func (t *WSTransport) Unsubscribe(ctx context.Context) error {
	t.closeOnce.Do(func() {
		if t.readCancel != nil {
			t.readCancel()
		}
		if t.conn != nil {
			if err := t.conn.Close(websocket.StatusNormalClosure, "bye"); err != nil && t.log != nil {
				t.log.Debugw("channel close noise", "err", err)
			}
		}
	})
	return nil
}
