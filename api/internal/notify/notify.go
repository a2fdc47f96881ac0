package notify

import (
	"context"
	"fmt"

	"missionboard/api/internal/domain"
	"missionboard/api/internal/models"
	"missionboard/api/internal/outbox"
	"missionboard/api/internal/repos"
)

// Subscriber turns dispatched events into in-app notification rows. Inserts
// are keyed on event_id, so a redelivered envelope is a no-op.
type Subscriber struct {
	notifications *repos.NotificationsRepo
}

func NewSubscriber(notifications *repos.NotificationsRepo) *Subscriber {
	return &Subscriber{notifications: notifications}
}

func (s *Subscriber) Register(d *outbox.Dispatcher) {
	d.Subscribe(domain.EventMissionCompleted, s.handle)
	d.Subscribe(domain.EventCollaboratorInvited, s.handle)
	d.Subscribe(domain.EventTeamMemberAdded, s.handle)
	d.Subscribe(domain.EventWorkspaceArchived, s.handle)
}

func (s *Subscriber) handle(ctx context.Context, e domain.Event) error {
	n := models.Notification{
		OrgID:   e.OrgID(),
		EventID: e.EventID(),
		Kind:    e.EventName(),
	}

	switch t := e.(type) {
	case *domain.MissionCompleted:
		n.Title = "Mission completed"
		n.Body = fmt.Sprintf("Mission %s was completed", t.AggregateID())
	case *domain.CollaboratorInvited:
		n.Title = "Collaborator invited"
		n.Body = fmt.Sprintf("%s was invited as %s", t.Email, t.Role)
	case *domain.TeamMemberAdded:
		n.Title = "Team member added"
		n.Body = fmt.Sprintf("Collaborator %s joined as %s", t.CollaboratorID, t.Role)
	case *domain.WorkspaceArchived:
		n.Title = "Workspace archived"
		n.Body = fmt.Sprintf("Workspace %s was archived", t.AggregateID())
	default:
		n.Title = e.EventName()
	}

	return s.notifications.Insert(ctx, n)
}
