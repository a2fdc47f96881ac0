package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEventType marks an event_type with no registered factory.
	// Permanent: the processor dead-letters without retrying.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrPayloadDecode marks a payload that does not decode into the
	// registered shape. Permanent as well.
	ErrPayloadDecode = errors.New("payload decode failed")
)

type Serializer struct {
	registry *Registry
}

func NewSerializer(registry *Registry) *Serializer {
	return &Serializer{registry: registry}
}

// Serialize returns the versioned type name and JSON body stored in an
// outbox envelope.
func (s *Serializer) Serialize(e Event) (string, []byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s: %w", e.EventName(), err)
	}
	return AppendVersion(e.EventName(), ResolveVersion(s.registry, e)), payload, nil
}

// Deserialize reconstructs a typed event from a stored envelope. The parsed
// version is informational for now; both versioned and legacy unversioned
// type names are accepted.
func (s *Serializer) Deserialize(eventType string, payload []byte) (Event, error) {
	name, _ := ParseVersionedName(eventType)
	e, ok := s.registry.New(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, name)
	}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadDecode, name, err)
	}
	return e, nil
}
