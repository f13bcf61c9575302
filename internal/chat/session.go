// Package chat holds the ambient proximity-chat state machine: Idle until
// someone is within the join radius, Active while bound to a backend chat
// session, and back to Idle only after the leave condition has held through a
// debounce window.
package chat

import (
	"time"

	"github.com/floorlink/floorlink/internal/pubsub"
	"github.com/floorlink/floorlink/pkg/wire"
)

// State of the local entity's ambient conversation.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

const (
	// DefaultLeaveDebounce is how long the leave condition must hold before
	// the session actually leaves.
	DefaultLeaveDebounce = 2 * time.Second

	// DefaultMaxMessages bounds the in-memory message buffer; oldest messages
	// are discarded first.
	DefaultMaxMessages = 100
)

// JoinedEvent is emitted when the session binds to a chat.
type JoinedEvent struct {
	ChatID  string
	Members []string
}

// LeftEvent is emitted when the session returns to Idle.
type LeftEvent struct {
	ChatID string
}

// Session decides when to attempt joining or leaving an ambient conversation.
// Actually joining is a backend RPC made by the caller; the machine only
// gates the attempt and caches the authoritative result.
//
// The leave debounce is deadline-based rather than timer-based: the session
// loop arms it and polls LeaveDue on its proximity tick, which keeps all
// state transitions on one goroutine.
type Session struct {
	state       State
	chatID      string
	members     []string
	messages    []wire.ChatMessage
	maxMessages int

	debounce      time.Duration
	leaveDeadline time.Time

	Joined  pubsub.Emitter[JoinedEvent]
	Left    pubsub.Emitter[LeftEvent]
	Message pubsub.Emitter[wire.ChatMessage]
}

func NewSession() *Session {
	return &Session{maxMessages: DefaultMaxMessages, debounce: DefaultLeaveDebounce}
}

// NewSessionWith overrides the debounce window and message cap (zero values
// keep the defaults).
func NewSessionWith(debounce time.Duration, maxMessages int) *Session {
	s := NewSession()
	if debounce > 0 {
		s.debounce = debounce
	}
	if maxMessages > 0 {
		s.maxMessages = maxMessages
	}
	return s
}

func (s *Session) State() State      { return s.state }
func (s *Session) ChatID() string    { return s.chatID }
func (s *Session) Members() []string { return append([]string(nil), s.members...) }

// Messages returns a copy of the buffered messages, oldest first.
func (s *Session) Messages() []wire.ChatMessage {
	return append([]wire.ChatMessage(nil), s.messages...)
}

// ShouldJoin reports whether a join attempt is warranted: Idle with at least
// one other participant inside the join radius.
func (s *Session) ShouldJoin(nearbyCount int) bool {
	return s.state == Idle && nearbyCount >= 1
}

// ShouldLeave reports whether the leave condition holds: Active with zero
// current members inside the leave radius.
func (s *Session) ShouldLeave(membersWithinLeaveRadius int) bool {
	return s.state == Active && membersWithinLeaveRadius == 0
}

// Join binds to an authoritative chat id and member list, cancels any pending
// leave debounce, and notifies subscribers.
func (s *Session) Join(chatID string, members []string) {
	s.ClearLeaveDebounce()
	s.state = Active
	s.chatID = chatID
	s.members = append([]string(nil), members...)
	s.messages = s.messages[:0]
	s.Joined.Emit(JoinedEvent{ChatID: chatID, Members: s.Members()})
}

// SetMembers replaces the cached member list with the backend's authoritative
// view. No-op while Idle.
func (s *Session) SetMembers(members []string) {
	if s.state != Active {
		return
	}
	s.members = append([]string(nil), members...)
}

// ArmLeaveDebounce schedules the leave decision for now+debounce. Only one
// debounce may be pending; arming again while pending keeps the earlier
// deadline so that hovering at the boundary cannot push the leave out forever.
func (s *Session) ArmLeaveDebounce(now time.Time) {
	if s.state != Active || !s.leaveDeadline.IsZero() {
		return
	}
	s.leaveDeadline = now.Add(s.debounce)
}

// ClearLeaveDebounce cancels a pending leave, called whenever a member
// re-enters the leave radius before the deadline.
func (s *Session) ClearLeaveDebounce() {
	s.leaveDeadline = time.Time{}
}

// LeaveDebouncePending reports whether a leave deadline is armed.
func (s *Session) LeaveDebouncePending() bool { return !s.leaveDeadline.IsZero() }

// LeaveDue reports whether the armed debounce has elapsed. The caller must
// re-evaluate ShouldLeave before acting on it.
func (s *Session) LeaveDue(now time.Time) bool {
	return s.state == Active && !s.leaveDeadline.IsZero() && !now.Before(s.leaveDeadline)
}

// Leave returns to Idle, clears the cached session, and notifies subscribers.
func (s *Session) Leave() {
	if s.state != Active {
		return
	}
	left := LeftEvent{ChatID: s.chatID}
	s.state = Idle
	s.chatID = ""
	s.members = nil
	s.messages = nil
	s.ClearLeaveDebounce()
	s.Left.Emit(left)
}

// AddMessage appends to the active session's buffer, truncating to the most
// recent maxMessages. No-op while Idle.
func (s *Session) AddMessage(msg wire.ChatMessage) {
	if s.state != Active {
		return
	}
	s.messages = append(s.messages, msg)
	if len(s.messages) > s.maxMessages {
		s.messages = s.messages[len(s.messages)-s.maxMessages:]
	}
	s.Message.Emit(msg)
}

// ReplaceMessageID swaps an optimistic local id for the authoritative one
// returned by the send RPC. Position in the buffer is preserved.
func (s *Session) ReplaceMessageID(oldID, newID string) {
	for i, m := range s.messages {
		if m.ID == oldID {
			s.messages[i].ID = newID
			return
		}
	}
}

// RemoveMessage drops a message by id, used to roll back an optimistically
// shown message whose send RPC failed.
func (s *Session) RemoveMessage(id string) {
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}
