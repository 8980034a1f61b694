// Package bus implements the typed publish/subscribe hub that all
// inter-component communication flows through. Delivery is synchronous and
// in-order: within one bus, events are dispatched in emission order and the
// handlers for a topic run in subscription order. There are no
// request/response semantics; producers never wait on consumers.
package bus

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Event is a single immutable occurrence on the bus. Handlers must not
// mutate the payload; pipeline plugins that transform an event return a
// mutated copy instead.
type Event struct {
	ID        string
	Topic     string
	Payload   any
	Timestamp time.Time
}

// Handler consumes one event. A returned error is logged per handler and
// never stops delivery to the remaining handlers, and never reaches the
// emitter.
type Handler func(Event) error

// Bus is the hub. The zero value is not usable; construct with New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers handler for topic. Handlers run in registration order.
// There is no retroactive delivery of past events.
func (b *Bus) Subscribe(topic string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Emit delivers payload to every current subscriber of topic, synchronously
// and in subscription order, then returns the emitted event. Handler errors
// and panics are contained per handler.
func (b *Bus) Emit(topic string, payload any) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	// Snapshot under the lock, dispatch outside it so handlers may
	// subscribe or emit without deadlocking.
	b.mu.RLock()
	registered := b.handlers[topic]
	handlers := make([]Handler, len(registered))
	copy(handlers, registered)
	b.mu.RUnlock()

	for i, handler := range handlers {
		b.dispatch(ev, i, handler)
	}
	return ev
}

// HandlerCount returns the number of handlers registered for topic.
func (b *Bus) HandlerCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

func (b *Bus) dispatch(ev Event, index int, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panicked",
				"topic", ev.Topic,
				"handler", index,
				"panic", r)
		}
	}()

	if err := handler(ev); err != nil {
		log.Warn("event handler failed",
			"topic", ev.Topic,
			"handler", index,
			"event", ev.ID,
			"error", err)
	}
}
