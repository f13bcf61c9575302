package combat

import (
	"time"

	"github.com/floorlink/floorlink/internal/pubsub"
)

// DisplayPhase names one step of the duel outcome sequence shown to an
// involved entity: freeze both avatars, play the fight animation, hold the
// winner/loser pose, then reset.
type DisplayPhase int

const (
	DisplayIdle DisplayPhase = iota
	DisplayFrozen
	DisplayFighting
	DisplayWinner
	DisplayLoser
)

func (p DisplayPhase) String() string {
	switch p {
	case DisplayFrozen:
		return "frozen"
	case DisplayFighting:
		return "fighting"
	case DisplayWinner:
		return "winner"
	case DisplayLoser:
		return "loser"
	default:
		return "idle"
	}
}

// Default phase durations.
const (
	DefaultFreezeFor = 600 * time.Millisecond
	DefaultFightFor  = 1400 * time.Millisecond
	DefaultPoseFor   = 2200 * time.Millisecond
)

// Display is the duel outcome sequence as an explicit FSM with timed,
// deadline-driven transitions. The session loop calls Advance on its tick;
// Cancel aborts the sequence at any point (session teardown mid-animation),
// which is the liveness guard the chained-timer design lacked.
type Display struct {
	phase DisplayPhase
	until time.Time
	won   bool

	freezeFor time.Duration
	fightFor  time.Duration
	poseFor   time.Duration

	Changed pubsub.Emitter[DisplayPhase]
}

func NewDisplay() *Display {
	return &Display{
		freezeFor: DefaultFreezeFor,
		fightFor:  DefaultFightFor,
		poseFor:   DefaultPoseFor,
	}
}

// NewDisplayWith overrides the phase durations (zero values keep defaults).
func NewDisplayWith(freeze, fight, pose time.Duration) *Display {
	d := NewDisplay()
	if freeze > 0 {
		d.freezeFor = freeze
	}
	if fight > 0 {
		d.fightFor = fight
	}
	if pose > 0 {
		d.poseFor = pose
	}
	return d
}

func (d *Display) Phase() DisplayPhase { return d.phase }

// Active reports whether a sequence is running.
func (d *Display) Active() bool { return d.phase != DisplayIdle }

// Begin starts the sequence. A sequence already running is restarted; the
// newest resolution wins.
func (d *Display) Begin(won bool, now time.Time) {
	d.won = won
	d.set(DisplayFrozen, now.Add(d.freezeFor))
}

// Advance performs any due timed transition. Idle displays ignore it, which
// makes a cancelled sequence inert no matter how many ticks still arrive.
func (d *Display) Advance(now time.Time) {
	if d.phase == DisplayIdle || now.Before(d.until) {
		return
	}
	switch d.phase {
	case DisplayFrozen:
		d.set(DisplayFighting, now.Add(d.fightFor))
	case DisplayFighting:
		pose := DisplayLoser
		if d.won {
			pose = DisplayWinner
		}
		d.set(pose, now.Add(d.poseFor))
	case DisplayWinner, DisplayLoser:
		d.set(DisplayIdle, time.Time{})
	}
}

// Cancel aborts the sequence immediately without emitting further phases.
func (d *Display) Cancel() {
	d.phase = DisplayIdle
	d.until = time.Time{}
}

func (d *Display) set(p DisplayPhase, until time.Time) {
	d.phase = p
	d.until = until
	d.Changed.Emit(p)
}
