package domain

import (
	"github.com/google/uuid"
)

const (
	EventMissionCreated           = "MissionCreated"
	EventMissionCompleted         = "MissionCompleted"
	EventCheckInRecorded          = "CheckInRecorded"
	EventMetricTargetChanged      = "MetricTargetChanged"
	EventOrganizationCreated      = "OrganizationCreated"
	EventWorkspaceArchived        = "WorkspaceArchived"
	EventTeamMemberAdded          = "TeamMemberAdded"
	EventCollaboratorInvited      = "CollaboratorInvited"
	EventMissionTemplatePublished = "MissionTemplatePublished"
)

type MissionCreated struct {
	EventBase
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name"`
}

func (MissionCreated) EventName() string { return EventMissionCreated }

type MissionCompleted struct {
	EventBase
	CompletedBy uuid.UUID `json:"completed_by"`
}

func (MissionCompleted) EventName() string { return EventMissionCompleted }

// CheckInRecorded is on its second schema: v1 carried only the raw value,
// v2 added the confidence score.
type CheckInRecorded struct {
	EventBase
	MetricID   uuid.UUID `json:"metric_id"`
	Value      float64   `json:"value"`
	Note       string    `json:"note,omitempty"`
	Confidence int       `json:"confidence"`
}

func (CheckInRecorded) EventName() string { return EventCheckInRecorded }
func (CheckInRecorded) EventVersion() int { return 2 }

type MetricTargetChanged struct {
	EventBase
	MetricID  uuid.UUID `json:"metric_id"`
	OldTarget float64   `json:"old_target"`
	NewTarget float64   `json:"new_target"`
}

func (MetricTargetChanged) EventName() string { return EventMetricTargetChanged }

type OrganizationCreated struct {
	EventBase
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (OrganizationCreated) EventName() string { return EventOrganizationCreated }

type WorkspaceArchived struct {
	EventBase
	ArchivedBy uuid.UUID `json:"archived_by"`
}

func (WorkspaceArchived) EventName() string { return EventWorkspaceArchived }

type TeamMemberAdded struct {
	EventBase
	CollaboratorID uuid.UUID `json:"collaborator_id"`
	Role           string    `json:"role"`
}

func (TeamMemberAdded) EventName() string { return EventTeamMemberAdded }

type CollaboratorInvited struct {
	EventBase
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (CollaboratorInvited) EventName() string { return EventCollaboratorInvited }

type MissionTemplatePublished struct {
	EventBase
	Title string `json:"title"`
}

func (MissionTemplatePublished) EventName() string { return EventMissionTemplatePublished }
