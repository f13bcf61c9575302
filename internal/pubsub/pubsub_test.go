package pubsub

import "testing"

func TestEmitterDeliversToAllSubscribers(t *testing.T) {
	var e Emitter[int]
	var a, b []int
	e.Subscribe(func(v int) { a = append(a, v) })
	e.Subscribe(func(v int) { b = append(b, v) })

	e.Emit(1)
	e.Emit(2)

	if len(a) != 2 || len(b) != 2 || a[1] != 2 || b[0] != 1 {
		t.Fatalf("both subscribers must see every event: a=%v b=%v", a, b)
	}
}

func TestEmitterZeroValueIsUsable(t *testing.T) {
	var e Emitter[string]
	e.Emit("nobody listening") // must not panic
	if e.Len() != 0 {
		t.Fatalf("want 0 subscribers, got %d", e.Len())
	}
}
