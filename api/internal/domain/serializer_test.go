package domain

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestSerializeTagsVersionedName(t *testing.T) {
	ser := NewSerializer(DefaultRegistry())

	orgID := uuid.New()
	checkIn := &CheckInRecorded{
		EventBase: newEventBase(orgID, uuid.New()),
		MetricID:  uuid.New(),
		Value:     42.5,
		Note:      "weekly sync",
	}
	eventType, _, err := ser.Serialize(checkIn)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if eventType != "CheckInRecorded|v2" {
		t.Fatalf("expected CheckInRecorded|v2, got %q", eventType)
	}

	created := &MissionCreated{EventBase: newEventBase(orgID, uuid.New()), Name: "q3"}
	eventType, _, err = ser.Serialize(created)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if eventType != "MissionCreated|v1" {
		t.Fatalf("expected MissionCreated|v1, got %q", eventType)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	registry := DefaultRegistry()
	ser := NewSerializer(registry)
	orgID := uuid.New()

	events := []Event{
		&MissionCreated{EventBase: newEventBase(orgID, uuid.New()), WorkspaceID: uuid.New(), Name: "launch"},
		&MissionCompleted{EventBase: newEventBase(orgID, uuid.New()), CompletedBy: uuid.New()},
		&CheckInRecorded{EventBase: newEventBase(orgID, uuid.New()), MetricID: uuid.New(), Value: 3.25, Note: "n", Confidence: 8},
		&MetricTargetChanged{EventBase: newEventBase(orgID, uuid.New()), MetricID: uuid.New(), OldTarget: 10, NewTarget: 20},
		&OrganizationCreated{EventBase: newEventBase(orgID, orgID), Slug: "acme", Name: "Acme"},
		&WorkspaceArchived{EventBase: newEventBase(orgID, uuid.New()), ArchivedBy: uuid.New()},
		&TeamMemberAdded{EventBase: newEventBase(orgID, uuid.New()), CollaboratorID: uuid.New(), Role: "lead"},
		&CollaboratorInvited{EventBase: newEventBase(orgID, orgID), Email: "a@b.c", Role: "member"},
		&MissionTemplatePublished{EventBase: newEventBase(orgID, uuid.New()), Title: "OKR starter"},
	}
	for _, original := range events {
		eventType, payload, err := ser.Serialize(original)
		if err != nil {
			t.Fatalf("%s: serialize: %v", original.EventName(), err)
		}
		decoded, err := ser.Deserialize(eventType, payload)
		if err != nil {
			t.Fatalf("%s: deserialize: %v", original.EventName(), err)
		}
		if !reflect.DeepEqual(original, decoded) {
			t.Fatalf("%s: round trip mismatch:\n  in:  %#v\n  out: %#v", original.EventName(), original, decoded)
		}
	}
}

func TestDeserializeLegacyUnversionedName(t *testing.T) {
	ser := NewSerializer(DefaultRegistry())
	original := &MissionCreated{EventBase: newEventBase(uuid.New(), uuid.New()), Name: "legacy"}
	_, payload, err := ser.Serialize(original)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	decoded, err := ser.Deserialize("MissionCreated", payload)
	if err != nil {
		t.Fatalf("deserialize legacy: %v", err)
	}
	if decoded.(*MissionCreated).Name != "legacy" {
		t.Fatalf("unexpected decode: %#v", decoded)
	}
}

func TestDeserializeUnknownType(t *testing.T) {
	ser := NewSerializer(DefaultRegistry())
	_, err := ser.Deserialize("RobotDetonated|v1", []byte(`{}`))
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestDeserializeMalformedPayload(t *testing.T) {
	ser := NewSerializer(DefaultRegistry())
	_, err := ser.Deserialize("MissionCreated|v1", []byte(`{"name":`))
	if !errors.Is(err, ErrPayloadDecode) {
		t.Fatalf("expected ErrPayloadDecode, got %v", err)
	}
}
