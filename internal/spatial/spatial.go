// Package spatial provides the geometry primitives used by the proximity
// detectors: distance queries and radius-based neighbor filtering over 2D
// points.
package spatial

import (
	"math"
	"sort"

	"github.com/floorlink/floorlink/pkg/wire"
)

// Candidate is an entity position offered to a radius query.
type Candidate struct {
	ID   string
	Name string
	Pos  wire.Position
}

// Neighbor is a candidate that passed a radius query, annotated with its
// distance from the reference point.
type Neighbor struct {
	ID       string
	Name     string
	Pos      wire.Position
	Distance float64
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b wire.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// WithinRadius reports whether p lies within radius of ref. The boundary is
// inclusive: a point at exactly radius is within.
func WithinRadius(ref, p wire.Position, radius float64) bool {
	return Distance(ref, p) <= radius
}

// NearestWithinRadius filters candidates to those within radius of ref and
// returns them sorted ascending by distance. The sort is stable, so ties keep
// input order. An empty candidate set yields an empty result.
func NearestWithinRadius(ref wire.Position, candidates []Candidate, radius float64) []Neighbor {
	out := make([]Neighbor, 0, len(candidates))
	for _, c := range candidates {
		d := Distance(ref, c.Pos)
		if d <= radius {
			out = append(out, Neighbor{ID: c.ID, Name: c.Name, Pos: c.Pos, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}
