// Package pubsub provides a minimal typed event emitter with multiple
// subscribers, replacing single-slot "onX(callback)" registration where a
// later registration would silently drop an earlier one.
package pubsub

// Emitter fans one event value out to every subscriber, in subscription
// order. It is not safe for concurrent use: subscribe during session setup,
// emit from the session loop. The zero value is ready to use.
type Emitter[T any] struct {
	subs []func(T)
}

// Subscribe registers a handler. Handlers run synchronously on the emitting
// goroutine and must not block.
func (e *Emitter[T]) Subscribe(fn func(T)) {
	e.subs = append(e.subs, fn)
}

// Emit delivers v to every subscriber.
func (e *Emitter[T]) Emit(v T) {
	for _, fn := range e.subs {
		fn(v)
	}
}

// Len reports the number of subscribers.
func (e *Emitter[T]) Len() int { return len(e.subs) }
