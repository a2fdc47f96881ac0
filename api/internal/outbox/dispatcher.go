package outbox

import (
	"context"
	"fmt"
	"sync"

	"missionboard/api/internal/domain"
)

// Subscriber handles one decoded domain event. Delivery is at-least-once;
// side-effecting subscribers must deduplicate on the event id.
type Subscriber func(ctx context.Context, event domain.Event) error

// Dispatcher fans decoded events out to in-process subscribers. Matching is
// by exact event name; subscribers run sequentially in registration order
// and the first failure aborts the rest of the batch.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subscribers: make(map[string][]Subscriber)}
}

func (d *Dispatcher) Subscribe(eventName string, fn Subscriber) {
	d.mu.Lock()
	d.subscribers[eventName] = append(d.subscribers[eventName], fn)
	d.mu.Unlock()
}

// Dispatch delivers each event, in input order, to every matching
// subscriber. Zero matches is a no-op. Fail-fast: a subscriber error stops
// the remaining subscribers for that event and the remaining events.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.Event) error {
	for _, event := range events {
		d.mu.RLock()
		matched := d.subscribers[event.EventName()]
		d.mu.RUnlock()
		for _, fn := range matched {
			if err := fn(ctx, event); err != nil {
				return fmt.Errorf("dispatch %s: %w", event.EventName(), err)
			}
		}
	}
	return nil
}
