package combat

import (
	"testing"
	"time"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func TestDisplayWalksWinnerSequence(t *testing.T) {
	d := NewDisplayWith(100*time.Millisecond, 200*time.Millisecond, 300*time.Millisecond)
	var phases []DisplayPhase
	d.Changed.Subscribe(func(p DisplayPhase) { phases = append(phases, p) })

	d.Begin(true, t0)
	if d.Phase() != DisplayFrozen {
		t.Fatalf("want frozen after begin, got %v", d.Phase())
	}

	d.Advance(t0.Add(50 * time.Millisecond)) // not due yet
	if d.Phase() != DisplayFrozen {
		t.Fatalf("early advance must not transition")
	}

	d.Advance(t0.Add(100 * time.Millisecond))
	if d.Phase() != DisplayFighting {
		t.Fatalf("want fighting, got %v", d.Phase())
	}

	d.Advance(t0.Add(300 * time.Millisecond))
	if d.Phase() != DisplayWinner {
		t.Fatalf("want winner pose, got %v", d.Phase())
	}

	d.Advance(t0.Add(600 * time.Millisecond))
	if d.Phase() != DisplayIdle {
		t.Fatalf("want idle after pose window, got %v", d.Phase())
	}

	want := []DisplayPhase{DisplayFrozen, DisplayFighting, DisplayWinner, DisplayIdle}
	if len(phases) != len(want) {
		t.Fatalf("phase notifications: got %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phase %d: got %v, want %v", i, phases[i], want[i])
		}
	}
}

func TestDisplayLoserPose(t *testing.T) {
	d := NewDisplayWith(time.Millisecond, time.Millisecond, time.Millisecond)
	d.Begin(false, t0)
	d.Advance(t0.Add(time.Millisecond))
	d.Advance(t0.Add(2 * time.Millisecond))
	if d.Phase() != DisplayLoser {
		t.Fatalf("want loser pose, got %v", d.Phase())
	}
}

func TestCancelMidSequenceStaysIdle(t *testing.T) {
	d := NewDisplay()
	d.Begin(true, t0)
	d.Cancel()

	if d.Active() {
		t.Fatalf("cancel must return to idle")
	}

	// Ticks that were already "scheduled" must do nothing after cancel.
	var fired int
	d.Changed.Subscribe(func(DisplayPhase) { fired++ })
	d.Advance(t0.Add(time.Hour))
	if fired != 0 || d.Phase() != DisplayIdle {
		t.Fatalf("cancelled display must ignore further ticks")
	}
}

func TestBeginRestartsRunningSequence(t *testing.T) {
	d := NewDisplayWith(100*time.Millisecond, 0, 0)
	d.Begin(true, t0)
	d.Advance(t0.Add(100 * time.Millisecond)) // fighting

	d.Begin(false, t0.Add(150*time.Millisecond))
	if d.Phase() != DisplayFrozen {
		t.Fatalf("newest resolution must restart the sequence, got %v", d.Phase())
	}
}
