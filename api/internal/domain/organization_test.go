package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewOrganizationRaisesCreated(t *testing.T) {
	o, err := NewOrganization("  Acme  ", "Acme Inc")
	if err != nil {
		t.Fatalf("new organization: %v", err)
	}
	if o.Slug != "acme" {
		t.Fatalf("expected lower-cased slug, got %q", o.Slug)
	}
	pending := o.PendingEvents()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	created, ok := pending[0].(*OrganizationCreated)
	if !ok || created.Slug != "acme" {
		t.Fatalf("unexpected event: %#v", pending[0])
	}
}

func TestInviteCollaboratorNormalizesEmail(t *testing.T) {
	o, _ := NewOrganization("acme", "Acme Inc")
	if err := o.InviteCollaborator("  Dana@Acme.COM ", "editor"); err != nil {
		t.Fatalf("invite: %v", err)
	}
	pending := o.PendingEvents()
	invited, ok := pending[1].(*CollaboratorInvited)
	if !ok || invited.Email != "dana@acme.com" || invited.Role != "editor" {
		t.Fatalf("unexpected event: %#v", pending[1])
	}
	if err := o.InviteCollaborator("   ", "editor"); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
}

func TestArchiveWorkspaceRaisesEvent(t *testing.T) {
	o, _ := NewOrganization("acme", "Acme Inc")
	workspaceID := uuid.New()
	archivedBy := uuid.New()
	if err := o.ArchiveWorkspace(workspaceID, archivedBy); err != nil {
		t.Fatalf("archive workspace: %v", err)
	}
	archived, ok := o.PendingEvents()[1].(*WorkspaceArchived)
	if !ok {
		t.Fatalf("expected WorkspaceArchived, got %T", o.PendingEvents()[1])
	}
	if archived.AggregateID() != workspaceID || archived.ArchivedBy != archivedBy {
		t.Fatalf("unexpected event scope: %#v", archived)
	}
	if err := o.ArchiveWorkspace(uuid.Nil, archivedBy); !errors.Is(err, ErrWorkspaceIDRequired) {
		t.Fatalf("expected ErrWorkspaceIDRequired, got %v", err)
	}
}

func TestAddTeamMemberRaisesEvent(t *testing.T) {
	o, _ := NewOrganization("acme", "Acme Inc")
	teamID := uuid.New()
	collaboratorID := uuid.New()
	if err := o.AddTeamMember(teamID, collaboratorID, " lead "); err != nil {
		t.Fatalf("add team member: %v", err)
	}
	added, ok := o.PendingEvents()[1].(*TeamMemberAdded)
	if !ok {
		t.Fatalf("expected TeamMemberAdded, got %T", o.PendingEvents()[1])
	}
	if added.AggregateID() != teamID || added.CollaboratorID != collaboratorID || added.Role != "lead" {
		t.Fatalf("unexpected event: %#v", added)
	}
	if err := o.AddTeamMember(uuid.Nil, collaboratorID, "lead"); !errors.Is(err, ErrTeamMemberRequired) {
		t.Fatalf("expected ErrTeamMemberRequired, got %v", err)
	}
}

func TestPublishMissionTemplateRaisesEvent(t *testing.T) {
	o, _ := NewOrganization("acme", "Acme Inc")
	templateID, err := o.PublishMissionTemplate("  Quarterly OKR  ")
	if err != nil {
		t.Fatalf("publish template: %v", err)
	}
	published, ok := o.PendingEvents()[1].(*MissionTemplatePublished)
	if !ok {
		t.Fatalf("expected MissionTemplatePublished, got %T", o.PendingEvents()[1])
	}
	if published.AggregateID() != templateID || published.Title != "Quarterly OKR" {
		t.Fatalf("unexpected event: %#v", published)
	}
	if _, err := o.PublishMissionTemplate(" "); !errors.Is(err, ErrTemplateTitleRequired) {
		t.Fatalf("expected ErrTemplateTitleRequired, got %v", err)
	}
}
