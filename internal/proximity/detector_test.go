package proximity

import (
	"testing"

	"github.com/floorlink/floorlink/internal/spatial"
	"github.com/floorlink/floorlink/pkg/wire"
)

func candidateAt(id string, x, y float64) spatial.Candidate {
	return spatial.Candidate{ID: id, Name: id, Pos: wire.Position{X: x, Y: y}}
}

func TestCombatDetector_SamePosition(t *testing.T) {
	d := New(DefaultCombatRadius)
	local := wire.Position{X: 0, Y: 0}

	got := d.FindNearby(local, []spatial.Candidate{candidateAt("b", 0, 0)})
	if len(got) != 1 || got[0].ID != "b" || got[0].Distance != 0 {
		t.Fatalf("want [b @ 0], got %+v", got)
	}
}

func TestCombatOutOfRangeChatStillInRange(t *testing.T) {
	combat := New(DefaultCombatRadius)
	chat, err := NewHysteresis(DefaultChatJoinRadius, DefaultChatLeaveRadius)
	if err != nil {
		t.Fatalf("NewHysteresis: %v", err)
	}
	local := wire.Position{}
	cands := []spatial.Candidate{candidateAt("b", 101, 0)}

	if got := combat.FindNearby(local, cands); len(got) != 0 {
		t.Fatalf("101 > inclusive 100: combat should see nobody, got %+v", got)
	}
	if got := chat.FindNearby(local, cands); len(got) != 1 {
		t.Fatalf("101 <= 150: chat should see b, got %+v", got)
	}
}

func TestHysteresisBand(t *testing.T) {
	chat, err := NewHysteresis(150, 200)
	if err != nil {
		t.Fatalf("NewHysteresis: %v", err)
	}
	local := wire.Position{}
	cands := []spatial.Candidate{candidateAt("b", 180, 0)}

	// At distance 180 an entity is outside the join radius but inside the
	// leave radius: not eligible to join, yet an active session must not leave.
	if got := chat.FindNearby(local, cands); len(got) != 0 {
		t.Fatalf("distance 180 must be outside join radius 150, got %+v", got)
	}
	if got := chat.FindWithinLeaveRadius(local, cands); len(got) != 1 {
		t.Fatalf("distance 180 must be inside leave radius 200, got %+v", got)
	}
}

func TestHysteresisRejectsInvertedRadii(t *testing.T) {
	if _, err := NewHysteresis(200, 150); err == nil {
		t.Fatalf("expected error for leave < join")
	}
}
