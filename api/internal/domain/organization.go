package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrgSlugRequired       = errors.New("organization slug is required")
	ErrOrgNameRequired       = errors.New("organization name is required")
	ErrEmailRequired         = errors.New("collaborator email is required")
	ErrWorkspaceIDRequired   = errors.New("workspace id is required")
	ErrTeamMemberRequired    = errors.New("team and collaborator ids are required")
	ErrTemplateTitleRequired = errors.New("template title is required")
)

// Organization is the tenancy root. Workspaces, teams and collaborators hang
// off it; missions reference it on every row.
type Organization struct {
	AggregateBase

	OrganizationID uuid.UUID
	Slug           string
	Name           string
	CreatedAt      time.Time
}

func NewOrganization(slug string, name string) (*Organization, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	name = strings.TrimSpace(name)
	if slug == "" {
		return nil, ErrOrgSlugRequired
	}
	if name == "" {
		return nil, ErrOrgNameRequired
	}
	o := &Organization{
		OrganizationID: uuid.New(),
		Slug:           slug,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	o.raise(&OrganizationCreated{
		EventBase: newEventBase(o.OrganizationID, o.OrganizationID),
		Slug:      slug,
		Name:      name,
	})
	return o, nil
}

func (o *Organization) InviteCollaborator(email string, role string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrEmailRequired
	}
	o.raise(&CollaboratorInvited{
		EventBase: newEventBase(o.OrganizationID, o.OrganizationID),
		Email:     email,
		Role:      strings.TrimSpace(role),
	})
	return nil
}

func (o *Organization) ArchiveWorkspace(workspaceID uuid.UUID, archivedBy uuid.UUID) error {
	if workspaceID == uuid.Nil {
		return ErrWorkspaceIDRequired
	}
	o.raise(&WorkspaceArchived{
		EventBase:  newEventBase(o.OrganizationID, workspaceID),
		ArchivedBy: archivedBy,
	})
	return nil
}

func (o *Organization) AddTeamMember(teamID uuid.UUID, collaboratorID uuid.UUID, role string) error {
	if teamID == uuid.Nil || collaboratorID == uuid.Nil {
		return ErrTeamMemberRequired
	}
	o.raise(&TeamMemberAdded{
		EventBase:      newEventBase(o.OrganizationID, teamID),
		CollaboratorID: collaboratorID,
		Role:           strings.TrimSpace(role),
	})
	return nil
}

// PublishMissionTemplate mints the template id; templates have no stored
// aggregate, the event stream is the system of record.
func (o *Organization) PublishMissionTemplate(title string) (uuid.UUID, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return uuid.Nil, ErrTemplateTitleRequired
	}
	templateID := uuid.New()
	o.raise(&MissionTemplatePublished{
		EventBase: newEventBase(o.OrganizationID, templateID),
		Title:     title,
	})
	return templateID, nil
}
