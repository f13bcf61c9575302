// Package session wires the client core together: one event-loop goroutine
// per joined event session, owning the channel adapter, the proximity
// detectors and both state machines. Every tick and timer is a case in this
// loop's select, so no component ever sees concurrent mutation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/floorlink/floorlink/internal/backend"
	"github.com/floorlink/floorlink/internal/chat"
	"github.com/floorlink/floorlink/internal/combat"
	"github.com/floorlink/floorlink/internal/interp"
	"github.com/floorlink/floorlink/internal/presence"
	"github.com/floorlink/floorlink/internal/proximity"
	"github.com/floorlink/floorlink/internal/pubsub"
	"github.com/floorlink/floorlink/internal/spatial"
	"github.com/floorlink/floorlink/internal/transport"
	"github.com/floorlink/floorlink/pkg/wire"
)

var (
	ErrNotRunning     = errors.New("session: not running")
	ErrOpponentTooFar = errors.New("session: opponent outside combat radius")
	ErrNoActiveChat   = errors.New("session: no active chat session")
	ErrAlreadyStarted = errors.New("session: already started")
)

// Config assembles one session. Transport and Local are required; the backend
// services may be nil, which disables the corresponding subsystem (useful in
// partial tests).
type Config struct {
	SessionID string
	Local     wire.Entity
	Transport transport.Transport

	Chat   backend.ChatService
	Combat backend.CombatService

	CombatRadius    float64
	ChatJoinRadius  float64
	ChatLeaveRadius float64
	BroadcastHz     int
	ProximityHz     int
	LeaveDebounce   time.Duration

	Logger *zap.SugaredLogger
}

func (c *Config) applyDefaults() {
	if c.CombatRadius <= 0 {
		c.CombatRadius = proximity.DefaultCombatRadius
	}
	if c.ChatJoinRadius <= 0 {
		c.ChatJoinRadius = proximity.DefaultChatJoinRadius
	}
	if c.ChatLeaveRadius <= 0 {
		c.ChatLeaveRadius = proximity.DefaultChatLeaveRadius
	}
	if c.BroadcastHz <= 0 {
		c.BroadcastHz = 12
	}
	if c.ProximityHz <= 0 {
		c.ProximityHz = 10
	}
	if c.LeaveDebounce <= 0 {
		c.LeaveDebounce = chat.DefaultLeaveDebounce
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
}

type command interface{ isCommand() }

type setPosition struct{ X, Y, Heading float64 }

type startBroadcast struct{}

type challengeCmd struct {
	OpponentID string
	Reply      chan error
}

type sendChatCmd struct {
	Content string
	Reply   chan error
}

// RPC completions delivered back onto the loop.
type chatJoined struct{ room backend.ChatRoom }
type chatJoinFailed struct{ err error }
type chatLeftOK struct{}
type chatLeaveFailed struct{ err error }
type duelCreated struct{ ch wire.Challenge }
type chatSendOK struct{ tempID, realID string }
type chatSendFailed struct{ tempID string }

type stopCmd struct{ done chan struct{} }

func (setPosition) isCommand()    {}
func (startBroadcast) isCommand() {}
func (challengeCmd) isCommand()   {}
func (sendChatCmd) isCommand()    {}
func (chatJoined) isCommand()     {}
func (chatJoinFailed) isCommand() {}
func (chatLeftOK) isCommand()     {}
func (chatLeaveFailed) isCommand() {}
func (duelCreated) isCommand()    {}
func (chatSendOK) isCommand()     {}
func (chatSendFailed) isCommand() {}
func (stopCmd) isCommand()        {}

// Session is one joined event session. Construct, subscribe to emitters,
// Start, and eventually Stop; the zero value is not usable.
type Session struct {
	cfg Config
	log *zap.SugaredLogger

	buf     *interp.Buffer
	reg     *presence.Registry
	adapter *Adapter

	combatDet *proximity.Detector
	chatDet   *proximity.Detector

	chatSess *chat.Session
	machine  *combat.Machine
	display  *combat.Display

	// Nearby fires on every proximity tick where the combat-range set
	// changed, with neighbors sorted nearest first.
	Nearby pubsub.Emitter[[]spatial.Neighbor]

	inbox  chan command
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	started       bool
	joinInFlight  bool
	leaveInFlight bool
	resultClearAt time.Time
	tempSeq       int
	lastNearbyIDs string
}

func New(cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if cfg.Local.ID == "" {
		return nil, errors.New("session: local entity id is required")
	}
	cfg.applyDefaults()

	chatDet, err := proximity.NewHysteresis(cfg.ChatJoinRadius, cfg.ChatLeaveRadius)
	if err != nil {
		return nil, err
	}

	buf := interp.NewBuffer()
	reg := presence.NewRegistry(cfg.Local.ID, buf)

	s := &Session{
		cfg:       cfg,
		log:       cfg.Logger,
		buf:       buf,
		reg:       reg,
		adapter:   NewAdapter(cfg.Transport, cfg.Local, reg, buf, cfg.Logger),
		combatDet: proximity.New(cfg.CombatRadius),
		chatDet:   chatDet,
		chatSess:  chat.NewSessionWith(cfg.LeaveDebounce, 0),
		machine:   combat.NewMachine(cfg.Local.ID),
		display:   combat.NewDisplay(),
		inbox:     make(chan command, 64),
		done:      make(chan struct{}),
	}

	// Server-originated categories the core itself consumes. Other
	// categories (penalty, hand_granted) stay opaque for outer layers.
	s.adapter.ServerEvents.Subscribe(s.routeServerEvent)

	// The stored result is consumed when the display sequence finishes.
	s.display.Changed.Subscribe(func(p combat.DisplayPhase) {
		if p == combat.DisplayIdle {
			s.machine.ClearDuel()
		}
	})

	return s, nil
}

// Chat exposes the chat state machine for event subscription and state reads.
// Subscribe before Start; emitters are not synchronized.
func (s *Session) Chat() *chat.Session { return s.chatSess }

// Combat exposes the challenge/duel machine.
func (s *Session) Combat() *combat.Machine { return s.machine }

// Display exposes the duel display sequence.
func (s *Session) Display() *combat.Display { return s.display }

// ServerEvents exposes the raw server-originated event stream.
func (s *Session) ServerEvents() *pubsub.Emitter[ServerEvent] { return &s.adapter.ServerEvents }

// Start subscribes the channel (bounded by the transport's readiness timeout)
// and launches the session loop.
func (s *Session) Start(ctx context.Context) error {
	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.adapter.Subscribe(ctx); err != nil {
		return err
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.loop()
	return nil
}

// Stop tears the session down: broadcast ticker, channel, buffers. Safe to
// call more than once.
func (s *Session) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.inbox <- stopCmd{done: done}:
	case <-s.done:
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
	}
	return nil
}

// SetLocalPosition records the input-driven local position for the next
// scheduled broadcast and the next proximity tick. Callable from any
// goroutine.
func (s *Session) SetLocalPosition(x, y, heading float64) {
	s.send(setPosition{X: x, Y: y, Heading: heading})
}

// StartPositionBroadcast enables the periodic position re-broadcast.
// Idempotent.
func (s *Session) StartPositionBroadcast() {
	s.send(startBroadcast{})
}

// Challenge creates a duel against an opponent currently inside the combat
// radius. The pending challenge is recorded only after the create RPC
// succeeds; a failed call leaves no local state behind.
func (s *Session) Challenge(ctx context.Context, opponentID string) error {
	reply := make(chan error, 1)
	if !s.trySend(challengeCmd{OpponentID: opponentID, Reply: reply}) {
		return ErrNotRunning
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendChatMessage sends into the active chat session. The message is shown
// optimistically and rolled back if the RPC fails.
func (s *Session) SendChatMessage(ctx context.Context, content string) error {
	reply := make(chan error, 1)
	if !s.trySend(sendChatCmd{Content: content, Reply: reply}) {
		return ErrNotRunning
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) send(cmd command) {
	select {
	case s.inbox <- cmd:
	case <-s.done:
	}
}

func (s *Session) trySend(cmd command) bool {
	select {
	case s.inbox <- cmd:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) loop() {
	defer close(s.done)

	broadcastTick := time.NewTicker(time.Second / time.Duration(s.cfg.BroadcastHz))
	proximityTick := time.NewTicker(time.Second / time.Duration(s.cfg.ProximityHz))
	defer broadcastTick.Stop()
	defer proximityTick.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return

		case cmd := <-s.inbox:
			if sc, ok := cmd.(stopCmd); ok {
				s.teardown()
				close(sc.done)
				return
			}
			s.handleCommand(cmd)

		case ev, ok := <-s.cfg.Transport.Events():
			if !ok {
				// Channel closed under us; tear down locally.
				s.log.Warnw("channel closed, tearing session down")
				s.teardown()
				return
			}
			s.adapter.HandleEvent(ev, time.Now())

		case now := <-broadcastTick.C:
			s.adapter.BroadcastPosition(now)

		case now := <-proximityTick.C:
			s.proximityTick(now)
		}
	}
}

func (s *Session) handleCommand(cmd command) {
	switch c := cmd.(type) {
	case setPosition:
		s.adapter.UpdateLocalPosition(c.X, c.Y, c.Heading)

	case startBroadcast:
		if s.adapter.StartPositionBroadcast() {
			s.log.Debugw("position broadcast started", "hz", s.cfg.BroadcastHz)
		}

	case challengeCmd:
		s.startChallenge(c)

	case sendChatCmd:
		s.startChatSend(c)

	case chatJoined:
		s.joinInFlight = false
		s.chatSess.Join(c.room.ChatID, c.room.MemberIDs)
		s.log.Infow("joined proximity chat", "chat", c.room.ChatID, "members", len(c.room.MemberIDs))

	case chatJoinFailed:
		s.joinInFlight = false
		s.log.Warnw("chat join failed", "err", c.err)

	case chatLeftOK:
		s.leaveInFlight = false
		s.chatSess.Leave()

	case chatLeaveFailed:
		// Stay active; the leave condition re-arms the debounce on the next
		// tick and the attempt repeats.
		s.leaveInFlight = false
		s.chatSess.ClearLeaveDebounce()
		s.log.Warnw("chat leave failed, staying active", "err", c.err)

	case duelCreated:
		s.machine.SetPending(c.ch)
		payload := wire.Marshal(c.ch)
		if err := s.cfg.Transport.Send(wire.EventChallenge, payload); err != nil {
			s.log.Warnw("challenge broadcast failed", "err", err)
		}

	case chatSendOK:
		s.chatSess.ReplaceMessageID(c.tempID, c.realID)

	case chatSendFailed:
		s.chatSess.RemoveMessage(c.tempID)
	}
}

func (s *Session) startChallenge(c challengeCmd) {
	if s.cfg.Combat == nil {
		c.Reply <- errors.New("session: combat service not configured")
		return
	}
	local, _ := s.adapter.LocalPosition()
	opp, ok := s.reg.Get(c.OpponentID)
	if !ok || !spatial.WithinRadius(local, s.entityPos(opp), s.combatDet.JoinRadius()) {
		c.Reply <- ErrOpponentTooFar
		return
	}
	go func() {
		duelID, err := s.cfg.Combat.CreateDuel(s.ctx, s.cfg.SessionID, c.OpponentID)
		if err != nil {
			c.Reply <- fmt.Errorf("create duel: %w", err)
			return
		}
		s.send(duelCreated{ch: wire.Challenge{
			DuelID:         duelID,
			ChallengerID:   s.cfg.Local.ID,
			ChallengerName: s.cfg.Local.Name,
			TargetID:       c.OpponentID,
		}})
		c.Reply <- nil
	}()
}

func (s *Session) startChatSend(c sendChatCmd) {
	if s.cfg.Chat == nil || s.chatSess.State() != chat.Active {
		c.Reply <- ErrNoActiveChat
		return
	}
	s.tempSeq++
	tempID := fmt.Sprintf("pending-%d", s.tempSeq)
	chatID := s.chatSess.ChatID()
	s.chatSess.AddMessage(wire.ChatMessage{
		ID:        tempID,
		ChatID:    chatID,
		AuthorID:  s.cfg.Local.ID,
		Content:   c.Content,
		CreatedAt: time.Now().UnixMilli(),
	})
	go func() {
		realID, err := s.cfg.Chat.SendMessage(s.ctx, chatID, c.Content)
		if err != nil {
			s.send(chatSendFailed{tempID: tempID})
			c.Reply <- fmt.Errorf("send message: %w", err)
			return
		}
		s.send(chatSendOK{tempID: tempID, realID: realID})
		c.Reply <- nil
	}()
}

// proximityTick is the slower evaluation tick: advance interpolation, run
// both detectors over current positions, and drive the chat and display
// state machines.
func (s *Session) proximityTick(now time.Time) {
	s.buf.Tick(now)

	local, _ := s.adapter.LocalPosition()
	remotes := s.reg.Remotes()
	cands := make([]spatial.Candidate, 0, len(remotes))
	for _, ent := range remotes {
		cands = append(cands, spatial.Candidate{ID: ent.ID, Name: ent.Name, Pos: s.entityPos(ent)})
	}

	s.tickCombatProximity(local, cands)
	s.tickChat(now, local, cands)
	s.display.Advance(now)

	// A resolution not involving the local entity is still displayed (as an
	// observer notice) and cleared after a fixed window.
	if !s.resultClearAt.IsZero() && !now.Before(s.resultClearAt) {
		s.machine.ClearDuel()
		s.resultClearAt = time.Time{}
	}
}

func (s *Session) tickCombatProximity(local wire.Position, cands []spatial.Candidate) {
	nearby := s.combatDet.FindNearby(local, cands)
	key := ""
	for _, n := range nearby {
		key += n.ID + ","
	}
	if key != s.lastNearbyIDs {
		s.lastNearbyIDs = key
		s.Nearby.Emit(nearby)
	}
}

func (s *Session) tickChat(now time.Time, local wire.Position, cands []spatial.Candidate) {
	if s.cfg.Chat == nil {
		return
	}

	if s.chatSess.State() == chat.Idle {
		nearby := s.chatDet.FindNearby(local, cands)
		if !s.joinInFlight && s.chatSess.ShouldJoin(len(nearby)) {
			s.joinInFlight = true
			ids := make([]string, len(nearby))
			for i, n := range nearby {
				ids[i] = n.ID
			}
			go func() {
				room, err := s.cfg.Chat.JoinOrCreate(s.ctx, s.cfg.SessionID, local, ids)
				if err != nil {
					s.send(chatJoinFailed{err: err})
					return
				}
				s.send(chatJoined{room: room})
			}()
		}
		return
	}

	// Active: count chat members still inside the leave radius.
	memberSet := make(map[string]struct{})
	for _, id := range s.chatSess.Members() {
		memberSet[id] = struct{}{}
	}
	memberCands := cands[:0:0]
	for _, c := range cands {
		if _, ok := memberSet[c.ID]; ok {
			memberCands = append(memberCands, c)
		}
	}
	within := s.chatDet.FindWithinLeaveRadius(local, memberCands)

	if s.chatSess.ShouldLeave(len(within)) {
		s.chatSess.ArmLeaveDebounce(now)
	} else {
		s.chatSess.ClearLeaveDebounce()
	}

	if !s.leaveInFlight && s.chatSess.LeaveDue(now) && s.chatSess.ShouldLeave(len(within)) {
		s.leaveInFlight = true
		chatID := s.chatSess.ChatID()
		go func() {
			if err := s.cfg.Chat.Leave(s.ctx, chatID); err != nil {
				s.send(chatLeaveFailed{err: err})
				return
			}
			s.send(chatLeftOK{})
		}()
	}
}

// routeServerEvent decodes the categories the core itself consumes. Runs on
// the session loop via the adapter's emitter.
func (s *Session) routeServerEvent(ev ServerEvent) {
	switch ev.Name {
	case wire.EventChallenge:
		var ch wire.Challenge
		if err := json.Unmarshal(ev.Payload, &ch); err != nil {
			s.log.Debugw("malformed challenge payload", "err", err)
			return
		}
		s.machine.HandleChallengeReceived(ch)

	case wire.EventPvPResolved:
		var res wire.DuelResult
		if err := json.Unmarshal(ev.Payload, &res); err != nil {
			s.log.Debugw("malformed duel result payload", "err", err)
			return
		}
		s.machine.HandleDuelResolved(res)
		if s.machine.InvolvesLocal(res) {
			s.display.Begin(s.machine.LocalWon(res), time.Now())
		} else {
			s.resultClearAt = time.Now().Add(combat.DefaultPoseFor)
		}

	case wire.EventChatMessage:
		var msg wire.ChatMessage
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			s.log.Debugw("malformed chat message payload", "err", err)
			return
		}
		if s.chatSess.State() == chat.Active && msg.ChatID == s.chatSess.ChatID() {
			s.chatSess.AddMessage(msg)
		}
	}
}

// entityPos prefers the interpolated position over the last announced one.
func (s *Session) entityPos(ent wire.Entity) wire.Position {
	if pos, _, ok := s.buf.Current(ent.ID); ok {
		return pos
	}
	return ent.Pos
}

func (s *Session) teardown() {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.adapter.Unsubscribe(ctx)
	s.display.Cancel()
	s.machine.Reset()
	if s.chatSess.State() == chat.Active {
		s.chatSess.Leave()
	}
	s.log.Infow("session torn down", "entity", s.cfg.Local.ID)
}
