// Package presence tracks the set of connected entities and their last
// announced (non-interpolated) state, driven by transport presence events.
package presence

import (
	"time"

	"github.com/floorlink/floorlink/internal/interp"
	"github.com/floorlink/floorlink/pkg/wire"
)

// Registry is the authoritative membership view. It keeps the interpolation
// buffer's tracked set consistent with its own: every remote entity in the
// registry has a seed sample in the buffer, and entities that leave are
// removed from both.
//
// The registry is mutated only by the channel adapter, on the session loop.
type Registry struct {
	localID  string
	entities map[string]wire.Entity
	buf      *interp.Buffer
}

func NewRegistry(localID string, buf *interp.Buffer) *Registry {
	return &Registry{
		localID:  localID,
		entities: make(map[string]wire.Entity),
		buf:      buf,
	}
}

// OnSync replaces the entire registry with the snapshot. Sync is the source of
// truth after a reconnect: entities absent from the snapshot are dropped from
// the interpolation buffer, new remote entities are seeded at their announced
// position.
func (r *Registry) OnSync(snapshot map[string]wire.PresenceState, now time.Time) {
	next := make(map[string]wire.Entity, len(snapshot))
	for id, st := range snapshot {
		next[id] = st.Entity()
	}

	for id := range r.entities {
		if _, ok := next[id]; !ok {
			r.buf.Remove(id)
		}
	}
	for id, ent := range next {
		if id == r.localID {
			continue
		}
		if !r.buf.Tracked(id) {
			r.buf.Push(id, interp.Sample{Pos: ent.Pos, Heading: ent.Heading, At: now})
		}
	}
	r.entities = next
}

// OnJoin inserts or overwrites a single entity. A newly seen remote entity is
// also registered with the interpolation buffer at its initial position, so
// its first rendered frame snaps rather than interpolates.
func (r *Registry) OnJoin(id string, st wire.PresenceState, now time.Time) {
	r.entities[id] = st.Entity()
	if id == r.localID {
		return
	}
	if !r.buf.Tracked(id) {
		r.buf.Push(id, interp.Sample{Pos: st.Pos, Heading: st.Heading, At: now})
	}
}

// OnLeave removes the entity from the registry and the interpolation buffer.
func (r *Registry) OnLeave(id string) {
	delete(r.entities, id)
	r.buf.Remove(id)
}

// Snapshot returns a point-in-time copy of the registry, local entity included.
func (r *Registry) Snapshot() map[string]wire.Entity {
	out := make(map[string]wire.Entity, len(r.entities))
	for id, ent := range r.entities {
		out[id] = ent
	}
	return out
}

// Remotes returns every entity except the local one, for proximity ticks.
func (r *Registry) Remotes() []wire.Entity {
	out := make([]wire.Entity, 0, len(r.entities))
	for id, ent := range r.entities {
		if id == r.localID {
			continue
		}
		out = append(out, ent)
	}
	return out
}

// Get looks up one entity.
func (r *Registry) Get(id string) (wire.Entity, bool) {
	ent, ok := r.entities[id]
	return ent, ok
}

// Len reports current membership size, local entity included.
func (r *Registry) Len() int { return len(r.entities) }

// Reset drops all entities and their interpolation state.
func (r *Registry) Reset() {
	clear(r.entities)
	r.buf.Reset()
}
