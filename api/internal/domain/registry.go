package domain

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps logical event names to factories so envelopes can be decoded
// without reflection. Populated once at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Event
	versions  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func() Event),
		versions:  make(map[string]int),
	}
}

func (r *Registry) Register(name string, fn func() Event) {
	r.RegisterVersioned(name, 1, fn)
}

// RegisterVersioned registers an event whose declared type carries a schema
// version. An instance-level Versioned value still takes precedence.
func (r *Registry) RegisterVersioned(name string, version int, fn func() Event) {
	if fn == nil {
		panic(fmt.Sprintf("nil factory for event %q", name))
	}
	if version < 1 {
		version = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}
	r.factories[name] = fn
	r.versions[name] = version
}

func (r *Registry) New(name string) (Event, bool) {
	r.mu.RLock()
	fn, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return fn(), true
}

// TypeVersion returns the declared schema version for a registered event
// name, or 1 when the name is unknown or unannotated.
func (r *Registry) TypeVersion(name string) int {
	r.mu.RLock()
	v, ok := r.versions[name]
	r.mu.RUnlock()
	if !ok || v < 1 {
		return 1
	}
	return v
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every event this service emits.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(EventMissionCreated, func() Event { return &MissionCreated{} })
	r.Register(EventMissionCompleted, func() Event { return &MissionCompleted{} })
	r.Register(EventCheckInRecorded, func() Event { return &CheckInRecorded{} })
	r.RegisterVersioned(EventMetricTargetChanged, 2, func() Event { return &MetricTargetChanged{} })
	r.Register(EventOrganizationCreated, func() Event { return &OrganizationCreated{} })
	r.Register(EventWorkspaceArchived, func() Event { return &WorkspaceArchived{} })
	r.Register(EventTeamMemberAdded, func() Event { return &TeamMemberAdded{} })
	r.Register(EventCollaboratorInvited, func() Event { return &CollaboratorInvited{} })
	r.Register(EventMissionTemplatePublished, func() Event { return &MissionTemplatePublished{} })
	return r
}
