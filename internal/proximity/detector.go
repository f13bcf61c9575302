// Package proximity wraps the spatial primitives with per-subsystem radius
// policy. Combat uses a single symmetric radius; chat uses a smaller join
// radius and a larger leave radius so that an entity hovering at the boundary
// does not flap between joined and left (hysteresis).
package proximity

import (
	"fmt"

	"github.com/floorlink/floorlink/internal/spatial"
	"github.com/floorlink/floorlink/pkg/wire"
)

// Default radii in floor units. Configuration, not law: override via the
// constructors.
const (
	DefaultCombatRadius    = 100.0
	DefaultChatJoinRadius  = 150.0
	DefaultChatLeaveRadius = 200.0
)

// Detector answers "who is near me" for one subsystem.
type Detector struct {
	joinRadius  float64
	leaveRadius float64
}

// New builds a single-radius detector (combat): join and leave thresholds
// coincide.
func New(radius float64) *Detector {
	return &Detector{joinRadius: radius, leaveRadius: radius}
}

// NewHysteresis builds a dual-radius detector (chat). leave must be at least
// join, otherwise the hysteresis band would be inverted.
func NewHysteresis(join, leave float64) (*Detector, error) {
	if leave < join {
		return nil, fmt.Errorf("proximity: leave radius %v smaller than join radius %v", leave, join)
	}
	return &Detector{joinRadius: join, leaveRadius: leave}, nil
}

// FindNearby returns candidates within the join radius, sorted ascending by
// distance from local.
func (d *Detector) FindNearby(local wire.Position, candidates []spatial.Candidate) []spatial.Neighbor {
	return spatial.NearestWithinRadius(local, candidates, d.joinRadius)
}

// FindWithinLeaveRadius returns candidates within the (larger) leave radius.
// For single-radius detectors this equals FindNearby.
func (d *Detector) FindWithinLeaveRadius(local wire.Position, candidates []spatial.Candidate) []spatial.Neighbor {
	return spatial.NearestWithinRadius(local, candidates, d.leaveRadius)
}

// JoinRadius returns the configured join/primary radius.
func (d *Detector) JoinRadius() float64 { return d.joinRadius }

// LeaveRadius returns the configured release radius.
func (d *Detector) LeaveRadius() float64 { return d.leaveRadius }
