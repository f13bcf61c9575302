// Package wire holds the value types shared between the client core, the
// transport layer and the dev relay. Everything here crosses a process or
// component boundary as JSON.
package wire

import "encoding/json"

// Position is a point on the event floor, in floor units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entity is a participant in an event session. Local and remote entities share
// this representation; only the control source differs (input vs. network).
type Entity struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Avatar  string   `json:"avatar,omitempty"`
	Pos     Position `json:"pos"`
	Heading float64  `json:"heading"` // degrees, [0, 360)
}

// PresenceState is what an entity announces on the presence channel.
type PresenceState struct {
	EntityID string   `json:"entity_id"`
	Name     string   `json:"name"`
	Avatar   string   `json:"avatar,omitempty"`
	Pos      Position `json:"pos"`
	Heading  float64  `json:"heading"`
}

// Entity converts an announced presence state into an entity record.
func (s PresenceState) Entity() Entity {
	return Entity{ID: s.EntityID, Name: s.Name, Avatar: s.Avatar, Pos: s.Pos, Heading: s.Heading}
}

// PositionUpdate is the high-frequency broadcast payload carrying an entity's
// authoritative position. SentAt is the origination timestamp in unix millis.
type PositionUpdate struct {
	EntityID string  `json:"entity_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Heading  float64 `json:"heading"`
	SentAt   int64   `json:"sent_at"`
}

// ChatMessage is one message inside a proximity chat session.
type ChatMessage struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"` // unix millis
}

// Challenge is a PvP challenge broadcast on the channel. Broadcasts are not
// pre-filtered by recipient; every client sees every challenge and keeps only
// the ones addressed to it.
type Challenge struct {
	DuelID         string `json:"duel_id"`
	ChallengerID   string `json:"challenger_id"`
	ChallengerName string `json:"challenger_name,omitempty"`
	TargetID       string `json:"target_id"`
}

// DuelResult is the server-computed outcome of a duel, delivered via the
// broadcast channel under the pvp_resolved event.
type DuelResult struct {
	DuelID       string `json:"duel_id"`
	ChallengerID string `json:"challenger_id"`
	OpponentID   string `json:"opponent_id"`
	Status       string `json:"status"` // "resolved" | "cancelled"
	WinnerID     string `json:"winner_id"`
	LoserID      string `json:"loser_id"`
}

// Broadcast event names. EventPosition is client-originated; the rest are
// server-originated categories the adapter routes without interpreting.
const (
	EventPosition    = "position"
	EventChallenge   = "challenge"
	EventPenalty     = "penalty"
	EventHandGranted = "hand_granted"
	EventPvPResolved = "pvp_resolved"
	EventChatMessage = "chat_message"
)

// Marshal is a convenience wrapper used when publishing payloads.
func Marshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
