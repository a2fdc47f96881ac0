package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"missionboard/api/internal/models"
)

type NotificationsRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationsRepo(pool *pgxpool.Pool) *NotificationsRepo {
	return &NotificationsRepo{pool: pool}
}

// Insert is idempotent on event_id: outbox delivery is at-least-once, so a
// redelivered event must not produce a second notification.
func (r *NotificationsRepo) Insert(ctx context.Context, n models.Notification) error {
	if n.NotificationID == uuid.Nil {
		n.NotificationID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, org_id, event_id, kind, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, n.NotificationID, n.OrgID, n.EventID, n.Kind, n.Title, n.Body, n.CreatedAt)
	return err
}

func (r *NotificationsRepo) ListForOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT notification_id, org_id, event_id, kind, title, body, created_at
		FROM notifications
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.NotificationID, &n.OrgID, &n.EventID, &n.Kind, &n.Title, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
