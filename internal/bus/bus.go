// Package bus is the in-process event hub. Every component emits live
// events into it or listens on it; emission is synchronous and a failing
// listener never takes down the caller or its peers.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/totalaud/agentcore/pkg/models"
)

// DefaultHistorySize bounds the diagnostic ring buffer.
const DefaultHistorySize = 100

// Listener receives events synchronously on the emitter's goroutine.
// A panicking listener is recovered and logged; it does not affect other
// listeners or the emitter.
type Listener func(event models.LiveEvent)

// Unsubscribe removes a previously registered listener. Safe to call more
// than once.
type Unsubscribe func()

type subscription struct {
	id       uint64
	types    map[models.EventType]bool // nil means all types
	listener Listener
}

// Bus fans live events out to subscribed listeners and keeps a bounded
// history ring for recency queries. All methods are safe for concurrent use.
//
// Listeners for a given type see events of that type in emission order;
// no ordering is guaranteed across independent listeners.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    []subscription
	history []models.LiveEvent // ring, oldest evicted
	cap     int
}

// New creates a bus with the default history size.
func New() *Bus {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory creates a bus whose history ring holds up to size events.
func NewWithHistory(size int) *Bus {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Bus{cap: size}
}

// Subscribe registers a listener for the given event types. With no types
// the listener receives every event. The returned Unsubscribe removes it.
func (b *Bus) Subscribe(listener Listener, types ...models.EventType) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, listener: listener}
	if len(types) > 0 {
		sub.types = make(map[models.EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	id := sub.id
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit fans the event out synchronously to all matching listeners and
// records it in the history ring. Listener panics are recovered and logged.
func (b *Bus) Emit(event models.LiveEvent) {
	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.cap {
		b.history = b.history[len(b.history)-b.cap:]
	}
	// Snapshot under lock so listeners run without holding it.
	matched := make([]Listener, 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil || s.types[event.Type] {
			matched = append(matched, s.listener)
		}
	}
	b.mu.Unlock()

	for _, l := range matched {
		b.deliver(l, event)
	}
}

func (b *Bus) deliver(l Listener, event models.LiveEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Str("entity_id", event.EntityID).
				Msg("⚠️ Event listener panicked")
		}
	}()
	l(event)
}

// History returns up to limit recent events, newest first. An empty type
// matches all; limit <= 0 returns everything retained.
func (b *Bus) History(eventType models.EventType, limit int) []models.LiveEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.LiveEvent
	for i := len(b.history) - 1; i >= 0; i-- {
		e := b.history[i]
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
