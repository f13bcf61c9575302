// Package relay is a development relay implementing the presence+broadcast
// channel contract over websockets, so the client core can be exercised end
// to end without the hosted platform. It is a dev harness only: ticket
// redemption, duel resolution and the other backend RPCs stay out of scope.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/floorlink/floorlink/pkg/wire"
)

// frame mirrors the transport envelope. Kept separate so the relay compiles
// without importing client internals.
type frame struct {
	Type     string                        `json:"type"`
	EntityID string                        `json:"entity_id,omitempty"`
	State    *wire.PresenceState           `json:"state,omitempty"`
	Snapshot map[string]wire.PresenceState `json:"snapshot,omitempty"`
	Event    string                        `json:"event,omitempty"`
	Payload  json.RawMessage               `json:"payload,omitempty"`
}

type roomMsg interface{ isRoomMsg() }

type join struct {
	EntityID string
	Outbox   chan frame
}

type leave struct{ EntityID string }

type track struct {
	EntityID string
	State    wire.PresenceState
}

type broadcast struct {
	EntityID string
	Event    string
	Payload  json.RawMessage
}

type inject struct {
	Event   string
	Payload json.RawMessage
}

type shutdown struct{}

func (join) isRoomMsg()      {}
func (leave) isRoomMsg()     {}
func (track) isRoomMsg()     {}
func (broadcast) isRoomMsg() {}
func (inject) isRoomMsg()    {}
func (shutdown) isRoomMsg()  {}

// Room is one session's channel: membership, announced states, and fan-out.
// Single goroutine loop; no locks.
type Room struct {
	inbox  chan roomMsg
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger
}

func NewRoom(parent context.Context, log *zap.SugaredLogger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:  make(chan roomMsg, 64),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- roomMsg { return r.inbox }

func (r *Room) loop() {
	clients := make(map[string]chan frame)
	states := make(map[string]wire.PresenceState)

	send := func(id string, ch chan frame, f frame) {
		select {
		case ch <- f:
		default:
			// Slow client: drop it, same policy as any stalled subscriber.
			close(ch)
			delete(clients, id)
			delete(states, id)
			if r.log != nil {
				r.log.Warnw("dropping slow client", "entity", id)
			}
		}
	}
	fanout := func(f frame) {
		for id, ch := range clients {
			send(id, ch, f)
		}
	}

	for {
		select {
		case <-r.ctx.Done():
			for id, ch := range clients {
				close(ch)
				delete(clients, id)
			}
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case join:
				clients[msg.EntityID] = msg.Outbox
				snap := make(map[string]wire.PresenceState, len(states))
				for id, st := range states {
					snap[id] = st
				}
				send(msg.EntityID, msg.Outbox, frame{Type: "ready"})
				send(msg.EntityID, msg.Outbox, frame{Type: "presence_sync", Snapshot: snap})

			case leave:
				if ch, ok := clients[msg.EntityID]; ok {
					close(ch)
					delete(clients, msg.EntityID)
				}
				delete(states, msg.EntityID)
				fanout(frame{Type: "presence_leave", EntityID: msg.EntityID})

			case track:
				states[msg.EntityID] = msg.State
				st := msg.State
				fanout(frame{Type: "presence_join", EntityID: msg.EntityID, State: &st})

			case broadcast:
				fanout(frame{Type: "broadcast", EntityID: msg.EntityID, Event: msg.Event, Payload: msg.Payload})

			case inject:
				fanout(frame{Type: "broadcast", Event: msg.Event, Payload: msg.Payload})

			case shutdown:
				r.cancel()
			}
		}
	}
}

// Server owns the rooms and the HTTP surface.
type Server struct {
	ctx   context.Context
	rooms *roomSet
	log   *zap.SugaredLogger
}

// roomSet is the session→room registry, itself an actor so that concurrent
// /ws accepts never race on the map.
type roomSet struct {
	inbox chan roomSetMsg
	ctx   context.Context
	log   *zap.SugaredLogger
}

type roomSetMsg struct {
	session string
	reply   chan *Room
}

func newRoomSet(ctx context.Context, log *zap.SugaredLogger) *roomSet {
	s := &roomSet{inbox: make(chan roomSetMsg, 16), ctx: ctx, log: log}
	go s.loop()
	return s
}

func (s *roomSet) loop() {
	rooms := make(map[string]*Room)
	for {
		select {
		case <-s.ctx.Done():
			for _, r := range rooms {
				r.Inbox() <- shutdown{}
			}
			return
		case m := <-s.inbox:
			r := rooms[m.session]
			if r == nil {
				r = NewRoom(s.ctx, s.log)
				rooms[m.session] = r
			}
			m.reply <- r
		}
	}
}

func (s *roomSet) ensure(session string) *Room {
	reply := make(chan *Room, 1)
	s.inbox <- roomSetMsg{session: session, reply: reply}
	return <-reply
}

func NewServer(ctx context.Context, log *zap.SugaredLogger) *Server {
	return &Server{ctx: ctx, rooms: newRoomSet(ctx, log), log: log}
}

// Routes builds the relay's HTTP surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// Manual injection of server-originated categories (penalty,
	// pvp_resolved, ...) for testing client routing.
	r.Post("/sessions/{session}/events", s.handleInject)
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	entity := r.URL.Query().Get("id")
	if session == "" || entity == "" {
		http.Error(w, "missing session or id", http.StatusBadRequest)
		return
	}
	room := s.rooms.ensure(session)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	out := make(chan frame, 32)
	room.Inbox() <- join{EntityID: entity, Outbox: out}
	defer func() { room.Inbox() <- leave{EntityID: entity} }()

	// Writer goroutine
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for f := range out {
			payload, _ := json.Marshal(f)
			ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
			_ = conn.Write(ctx, websocket.MessageText, payload)
			cancel()
		}
	}()

	// Reader loop
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Type {
		case "track":
			if f.State == nil {
				continue
			}
			// Entity identity comes from the connection, not the frame.
			st := *f.State
			st.EntityID = entity
			room.Inbox() <- track{EntityID: entity, State: st}
		case "broadcast":
			room.Inbox() <- broadcast{EntityID: entity, Event: f.Event, Payload: f.Payload}
		}
	}
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	var body struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Event == "" {
		http.Error(w, "bad event body", http.StatusBadRequest)
		return
	}
	s.rooms.ensure(session).Inbox() <- inject{Event: body.Event, Payload: body.Payload}
	w.WriteHeader(http.StatusAccepted)
}
