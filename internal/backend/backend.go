// Package backend declares the contracts of the hosted platform RPCs this
// client consumes. The implementations live server-side; the client core only
// needs the call shapes, and tests drive the state machines through fakes.
package backend

import (
	"context"

	"github.com/floorlink/floorlink/pkg/wire"
)

// ChatRoom is the authoritative result of a join-or-create call.
type ChatRoom struct {
	ChatID    string
	MemberIDs []string
}

// ChatService is the proximity-chat RPC surface.
type ChatService interface {
	// JoinOrCreate joins the nearest chat session or creates one for the
	// given neighbors, returning the authoritative chat id and member list.
	JoinOrCreate(ctx context.Context, sessionID string, pos wire.Position, nearbyIDs []string) (ChatRoom, error)
	Leave(ctx context.Context, chatID string) error
	SendMessage(ctx context.Context, chatID, content string) (messageID string, err error)
	History(ctx context.Context, chatID string, limit int) ([]wire.ChatMessage, error)
}

// CombatService creates duels. Resolution is computed server-side and arrives
// asynchronously on the broadcast channel, never as a return value.
type CombatService interface {
	CreateDuel(ctx context.Context, sessionID, opponentID string) (duelID string, err error)
}

// HandStatus is the moderation queue's answer to a raised hand.
type HandStatus struct {
	OK              bool
	RandomlyIgnored bool
}

// ModerationService is the hand-queue and sanction RPC surface.
type ModerationService interface {
	RaiseHand(ctx context.Context, sessionID string) (HandStatus, error)
	GrantHand(ctx context.Context, targetID string) error
	Kick(ctx context.Context, targetID string, seconds int) error
	Ban(ctx context.Context, targetID string) error
}

// TicketService redeems tickets and joins public events, both returning a
// session id.
type TicketService interface {
	Redeem(ctx context.Context, code string) (sessionID string, err error)
	JoinPublicEvent(ctx context.Context, eventID string) (sessionID string, err error)
}
