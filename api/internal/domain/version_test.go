package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestAppendParseRoundTrip(t *testing.T) {
	for _, version := range []int{1, 2, 7} {
		encoded := AppendVersion("CheckInRecorded", version)
		name, got := ParseVersionedName(encoded)
		if name != "CheckInRecorded" || got != version {
			t.Fatalf("round trip v%d: got (%q, %d)", version, name, got)
		}
	}
}

func TestAppendVersionClampsToOne(t *testing.T) {
	if got := AppendVersion("SomeEvent", 0); got != "SomeEvent|v1" {
		t.Fatalf("expected SomeEvent|v1, got %q", got)
	}
	if got := AppendVersion("SomeEvent", -3); got != "SomeEvent|v1" {
		t.Fatalf("expected SomeEvent|v1, got %q", got)
	}
}

func TestParseLegacyName(t *testing.T) {
	name, version := ParseVersionedName("SomeEvent")
	if name != "SomeEvent" || version != 1 {
		t.Fatalf("expected (SomeEvent, 1), got (%q, %d)", name, version)
	}
}

func TestParseBadSuffixFallsBack(t *testing.T) {
	for _, raw := range []string{"SomeEvent|vx", "SomeEvent|v0", "SomeEvent|v-2"} {
		name, version := ParseVersionedName(raw)
		if name != raw || version != 1 {
			t.Fatalf("%q: expected (%q, 1), got (%q, %d)", raw, raw, name, version)
		}
	}
}

func TestParseSplitsOnLastSeparator(t *testing.T) {
	name, version := ParseVersionedName("Weird|vName|v3")
	if name != "Weird|vName" || version != 3 {
		t.Fatalf("expected (Weird|vName, 3), got (%q, %d)", name, version)
	}
}

type annotatedOnlyEvent struct{ EventBase }

func (annotatedOnlyEvent) EventName() string { return "AnnotatedOnly" }

type plainEvent struct{ EventBase }

func (plainEvent) EventName() string { return "Plain" }

func TestResolveVersionPrecedence(t *testing.T) {
	r := NewRegistry()
	r.RegisterVersioned("AnnotatedOnly", 3, func() Event { return &annotatedOnlyEvent{} })
	r.Register("Plain", func() Event { return &plainEvent{} })
	// Conflicting type-level annotation; the instance capability must win.
	r.RegisterVersioned(EventCheckInRecorded, 9, func() Event { return &CheckInRecorded{} })

	checkIn := &CheckInRecorded{EventBase: newEventBase(uuid.New(), uuid.New())}
	if got := ResolveVersion(r, checkIn); got != 2 {
		t.Fatalf("instance version: expected 2, got %d", got)
	}

	if got := ResolveVersion(r, &annotatedOnlyEvent{}); got != 3 {
		t.Fatalf("type annotation: expected 3, got %d", got)
	}
	if got := ResolveVersion(r, &plainEvent{}); got != 1 {
		t.Fatalf("default: expected 1, got %d", got)
	}
}
