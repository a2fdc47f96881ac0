package domain

// AggregateRoot is the part of an aggregate the outbox harvest needs: the
// pending domain events raised since the aggregate was loaded.
type AggregateRoot interface {
	PendingEvents() []Event
	ClearPendingEvents()
}

// AggregateBase holds the append-only pending-event list shared by all
// aggregates. Events are cleared only after the transaction that captured
// them into outbox envelopes has committed.
type AggregateBase struct {
	pending []Event
}

func (a *AggregateBase) raise(e Event) {
	a.pending = append(a.pending, e)
}

func (a *AggregateBase) PendingEvents() []Event {
	out := make([]Event, len(a.pending))
	copy(out, a.pending)
	return out
}

func (a *AggregateBase) ClearPendingEvents() {
	a.pending = nil
}
