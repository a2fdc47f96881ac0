package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// versionSeparator joins a logical event name and its schema version in the
// stored event_type column, e.g. "CheckInRecorded|v2". Rows written before
// versioning existed have no separator and decode as version 1.
const versionSeparator = "|v"

// ResolveVersion returns the schema version for an event instance: an
// instance-level Versioned value wins, then the registered type version,
// then 1.
func ResolveVersion(r *Registry, e Event) int {
	if v, ok := e.(Versioned); ok {
		if ver := v.EventVersion(); ver >= 1 {
			return ver
		}
		return 1
	}
	if r != nil {
		return r.TypeVersion(e.EventName())
	}
	return 1
}

func AppendVersion(name string, version int) string {
	if version < 1 {
		version = 1
	}
	return fmt.Sprintf("%s%s%d", name, versionSeparator, version)
}

// ParseVersionedName splits a stored event type on the last version
// separator. Anything that does not parse as a positive version falls back
// to (input, 1).
func ParseVersionedName(eventType string) (string, int) {
	idx := strings.LastIndex(eventType, versionSeparator)
	if idx < 0 {
		return eventType, 1
	}
	version, err := strconv.Atoi(eventType[idx+len(versionSeparator):])
	if err != nil || version < 1 {
		return eventType, 1
	}
	return eventType[:idx], version
}
