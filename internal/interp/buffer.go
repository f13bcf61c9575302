// Package interp turns sparse network position updates into smooth per-entity
// motion. Each remote entity keeps at most two samples (previous, current);
// render ticks interpolate between them so that motion is independent of
// network arrival jitter.
package interp

import (
	"math"
	"time"

	"github.com/floorlink/floorlink/pkg/wire"
)

// CatchUpGrace is how long past the current sample's timestamp an entity keeps
// its previous sample. Once the grace elapses the entity is considered caught
// up and holds at the current sample until a new push arrives.
const CatchUpGrace = 100 * time.Millisecond

// Sample is one authoritative position observation for an entity.
type Sample struct {
	Pos     wire.Position
	Heading float64 // degrees
	At      time.Time
}

type entry struct {
	prev     *Sample
	cur      Sample
	rendered Sample
}

// Buffer holds the two-sample interpolation state for every tracked entity.
// It is owned and mutated exclusively by the channel adapter; readers get
// value copies.
type Buffer struct {
	entries map[string]*entry
	grace   time.Duration
}

func NewBuffer() *Buffer {
	return &Buffer{entries: make(map[string]*entry), grace: CatchUpGrace}
}

// Push shifts the entity's buffer: previous ← current, current ← s. On first
// observation the rendered position snaps to the sample immediately.
func (b *Buffer) Push(id string, s Sample) {
	e, ok := b.entries[id]
	if !ok {
		b.entries[id] = &entry{cur: s, rendered: s}
		return
	}
	prev := e.cur
	e.prev = &prev
	e.cur = s
}

// Tick advances interpolation for every entity with two samples. Progress is
// clamped to [0, 1] over the inter-sample span (at least 1 ms to avoid a zero
// divisor). Heading interpolates along the shortest angular path so that e.g.
// 350° → 10° passes through 0°, not 180°.
func (b *Buffer) Tick(now time.Time) {
	for _, e := range b.entries {
		if e.prev == nil {
			e.rendered = e.cur
			continue
		}
		span := e.cur.At.Sub(e.prev.At)
		if span < time.Millisecond {
			span = time.Millisecond
		}
		progress := float64(now.Sub(e.prev.At)) / float64(span)
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}

		e.rendered = Sample{
			Pos: wire.Position{
				X: e.prev.Pos.X + (e.cur.Pos.X-e.prev.Pos.X)*progress,
				Y: e.prev.Pos.Y + (e.cur.Pos.Y-e.prev.Pos.Y)*progress,
			},
			Heading: lerpHeading(e.prev.Heading, e.cur.Heading, progress),
			At:      now,
		}

		if progress >= 1 && now.Sub(e.cur.At) >= b.grace {
			e.prev = nil
			e.rendered = e.cur
		}
	}
}

// Current returns the last rendered position and heading for an entity, or the
// most recent raw sample if interpolation has not run yet. Unknown ids report
// ok=false rather than an error; callers must tolerate entities that just left.
func (b *Buffer) Current(id string) (wire.Position, float64, bool) {
	e, ok := b.entries[id]
	if !ok {
		return wire.Position{}, 0, false
	}
	return e.rendered.Pos, e.rendered.Heading, true
}

// Tracked reports whether the entity has any samples.
func (b *Buffer) Tracked(id string) bool {
	_, ok := b.entries[id]
	return ok
}

// Remove drops all samples for an entity. Safe on unknown ids.
func (b *Buffer) Remove(id string) {
	delete(b.entries, id)
}

// Reset drops every entity, used on session teardown and presence resync.
func (b *Buffer) Reset() {
	clear(b.entries)
}

// lerpHeading interpolates between two headings in degrees taking the shortest
// angular path. A delta beyond ±180° is wrapped before interpolating.
func lerpHeading(from, to, t float64) float64 {
	delta := to - from
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	h := math.Mod(from+delta*t, 360)
	if h < 0 {
		h += 360
	}
	return h
}
