package interp

import (
	"testing"
	"time"

	"github.com/floorlink/floorlink/pkg/wire"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func TestFirstObservationSnaps(t *testing.T) {
	b := NewBuffer()
	b.Push("b", Sample{Pos: wire.Position{X: 42, Y: 7}, Heading: 90, At: t0})

	// Even before any tick, the rendered position is the raw sample.
	pos, heading, ok := b.Current("b")
	if !ok {
		t.Fatalf("entity should be tracked after push")
	}
	if pos.X != 42 || pos.Y != 7 || heading != 90 {
		t.Fatalf("want snap to (42,7,90), got (%v,%v,%v)", pos.X, pos.Y, heading)
	}

	// A tick at the sample timestamp holds the same position.
	b.Tick(t0)
	pos, _, _ = b.Current("b")
	if pos.X != 42 || pos.Y != 7 {
		t.Fatalf("tick moved a single-sample entity: %+v", pos)
	}
}

func TestLinearInterpolationMidpoint(t *testing.T) {
	b := NewBuffer()
	b.Push("b", Sample{Pos: wire.Position{X: 0, Y: 0}, At: t0})
	b.Push("b", Sample{Pos: wire.Position{X: 100, Y: 0}, At: t0.Add(100 * time.Millisecond)})

	b.Tick(t0.Add(50 * time.Millisecond))
	pos, _, ok := b.Current("b")
	if !ok {
		t.Fatalf("entity not tracked")
	}
	if pos.X != 50 || pos.Y != 0 {
		t.Fatalf("at t=50ms want x=50 y=0, got (%v,%v)", pos.X, pos.Y)
	}
}

func TestProgressClampsPastCurrentSample(t *testing.T) {
	b := NewBuffer()
	b.Push("b", Sample{Pos: wire.Position{X: 0, Y: 0}, At: t0})
	b.Push("b", Sample{Pos: wire.Position{X: 100, Y: 0}, At: t0.Add(100 * time.Millisecond)})

	// Past the current sample but inside the grace window: held at 100, prev kept.
	b.Tick(t0.Add(150 * time.Millisecond))
	pos, _, _ := b.Current("b")
	if pos.X != 100 {
		t.Fatalf("want clamp at x=100, got %v", pos.X)
	}
}

func TestHeadingTakesShortestPath(t *testing.T) {
	cases := []struct {
		name       string
		from, to   float64
		t          float64
		want       float64
	}{
		{name: "wrap through zero", from: 350, to: 10, t: 0.5, want: 0},
		{name: "no wrap needed", from: 10, to: 90, t: 0.5, want: 50},
		{name: "wrap downward", from: 10, to: 350, t: 0.5, want: 0},
		{name: "endpoint", from: 350, to: 10, t: 1, want: 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := lerpHeading(tc.from, tc.to, tc.t)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("lerpHeading(%v, %v, %v) = %v, want %v", tc.from, tc.to, tc.t, got, tc.want)
			}
		})
	}
}

func TestCatchUpClearsPreviousAfterGrace(t *testing.T) {
	b := NewBuffer()
	b.Push("b", Sample{Pos: wire.Position{X: 0, Y: 0}, At: t0})
	cur := Sample{Pos: wire.Position{X: 100, Y: 0}, At: t0.Add(100 * time.Millisecond)}
	b.Push("b", cur)

	// Grace elapsed: entity is caught up and holds at the current sample.
	b.Tick(cur.At.Add(CatchUpGrace))
	pos, _, _ := b.Current("b")
	if pos.X != 100 {
		t.Fatalf("want hold at current sample, got x=%v", pos.X)
	}

	// Further ticks keep holding; a stale prev would drag the position back.
	b.Tick(cur.At.Add(10 * time.Second))
	pos, _, _ = b.Current("b")
	if pos.X != 100 {
		t.Fatalf("caught-up entity moved: x=%v", pos.X)
	}
}

func TestUnknownEntityIsNoOp(t *testing.T) {
	b := NewBuffer()
	if _, _, ok := b.Current("ghost"); ok {
		t.Fatalf("unknown entity should report ok=false")
	}
	b.Remove("ghost") // must not panic
	b.Tick(t0)
}

func TestRemoveDropsEntity(t *testing.T) {
	b := NewBuffer()
	b.Push("b", Sample{Pos: wire.Position{X: 1, Y: 1}, At: t0})
	b.Remove("b")
	if b.Tracked("b") {
		t.Fatalf("entity still tracked after remove")
	}
}
