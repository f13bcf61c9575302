// Package combat tracks the local entity's PvP state: at most one outstanding
// sent challenge, one received challenge, and one duel result awaiting
// display. Resolution is computed server-side; this machine only reacts.
package combat

import (
	"github.com/floorlink/floorlink/internal/pubsub"
	"github.com/floorlink/floorlink/pkg/wire"
)

// Machine is the challenge/duel state machine for one local entity. Mutated
// only on the session loop.
type Machine struct {
	localID string

	pending *wire.Challenge // sent by us, unresolved
	active  *wire.Challenge // received, addressed to us, unresolved
	result  *wire.DuelResult

	ChallengeReceived pubsub.Emitter[wire.Challenge]
	Resolved          pubsub.Emitter[wire.DuelResult]
}

func NewMachine(localID string) *Machine {
	return &Machine{localID: localID}
}

// SetPending records a locally-initiated challenge after its create RPC
// succeeded. A new challenge abandons any prior pending one; there is no
// queueing.
func (m *Machine) SetPending(ch wire.Challenge) {
	c := ch
	m.pending = &c
}

// HandleChallengeReceived records a challenge only if it is addressed to the
// local entity. Broadcasts are not pre-filtered by recipient, so challenges
// for other entities arrive here too and are silently dropped.
func (m *Machine) HandleChallengeReceived(ch wire.Challenge) {
	if ch.TargetID != m.localID {
		return
	}
	c := ch
	m.active = &c
	m.ChallengeReceived.Emit(ch)
}

// HandleDuelResolved stores the result and clears both challenge slots. A
// resolution is authoritative and unconditional: it is processed even when no
// matching challenge is recorded locally (e.g. after a reconnect). The
// Resolved notification fires exactly once per duel id.
func (m *Machine) HandleDuelResolved(res wire.DuelResult) {
	if m.result != nil && m.result.DuelID == res.DuelID {
		return
	}
	r := res
	m.result = &r
	m.pending = nil
	m.active = nil
	m.Resolved.Emit(res)
}

// InvolvesLocal reports whether the local entity is the winner or loser of a
// result. Only an involved entity runs the display sequence.
func (m *Machine) InvolvesLocal(res wire.DuelResult) bool {
	return res.WinnerID == m.localID || res.LoserID == m.localID
}

// LocalWon reports whether the local entity won. Meaningful only when
// InvolvesLocal is true.
func (m *Machine) LocalWon(res wire.DuelResult) bool {
	return res.WinnerID == m.localID
}

// Pending returns the outstanding sent challenge, if any.
func (m *Machine) Pending() (wire.Challenge, bool) {
	if m.pending == nil {
		return wire.Challenge{}, false
	}
	return *m.pending, true
}

// Active returns the outstanding received challenge, if any.
func (m *Machine) Active() (wire.Challenge, bool) {
	if m.active == nil {
		return wire.Challenge{}, false
	}
	return *m.active, true
}

// Result returns the stored duel result, if any.
func (m *Machine) Result() (wire.DuelResult, bool) {
	if m.result == nil {
		return wire.DuelResult{}, false
	}
	return *m.result, true
}

// ClearDuel drops the stored result, after the UI finished displaying it.
func (m *Machine) ClearDuel() { m.result = nil }

// ClearChallenge drops both challenge slots, on explicit cancellation.
func (m *Machine) ClearChallenge() {
	m.pending = nil
	m.active = nil
}

// Reset clears everything, on session teardown.
func (m *Machine) Reset() {
	m.pending = nil
	m.active = nil
	m.result = nil
}
