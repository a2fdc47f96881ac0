package repos

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"missionboard/api/internal/domain"
)

type MissionsRepo struct {
	pool       *pgxpool.Pool
	outbox     *OutboxRepo
	serializer *domain.Serializer
}

func NewMissionsRepo(pool *pgxpool.Pool, outbox *OutboxRepo, serializer *domain.Serializer) *MissionsRepo {
	return &MissionsRepo{pool: pool, outbox: outbox, serializer: serializer}
}

// Create persists a new mission and its pending events in one transaction:
// the events are durable if and only if the state change committed.
func (r *MissionsRepo) Create(ctx context.Context, mission *domain.Mission) error {
	metrics, err := json.Marshal(mission.Metrics)
	if err != nil {
		return err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO missions (mission_id, org_id, workspace_id, name, status, metrics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, mission.MissionID, mission.OrgID, mission.WorkspaceID, mission.Name, mission.Status, metrics, mission.CreatedAt, mission.UpdatedAt)
	if err != nil {
		return err
	}
	if err := r.outbox.AppendPending(ctx, tx, r.serializer, mission); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	mission.ClearPendingEvents()
	return nil
}

// Save writes back a mutated mission plus whatever events the mutation
// raised, again atomically.
func (r *MissionsRepo) Save(ctx context.Context, mission *domain.Mission) error {
	metrics, err := json.Marshal(mission.Metrics)
	if err != nil {
		return err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE missions
		SET name = $3, status = $4, metrics = $5, updated_at = $6
		WHERE org_id = $1 AND mission_id = $2
	`, mission.OrgID, mission.MissionID, mission.Name, mission.Status, metrics, mission.UpdatedAt)
	if err != nil {
		return err
	}
	if err := r.outbox.AppendPending(ctx, tx, r.serializer, mission); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	mission.ClearPendingEvents()
	return nil
}

func (r *MissionsRepo) Get(ctx context.Context, orgID uuid.UUID, missionID uuid.UUID) (*domain.Mission, error) {
	var (
		mission domain.Mission
		metrics []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT mission_id, org_id, workspace_id, name, status, metrics, created_at, updated_at
		FROM missions
		WHERE org_id = $1 AND mission_id = $2
	`, orgID, missionID).
		Scan(&mission.MissionID, &mission.OrgID, &mission.WorkspaceID, &mission.Name, &mission.Status, &metrics, &mission.CreatedAt, &mission.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &mission.Metrics); err != nil {
			return nil, err
		}
	}
	return &mission, nil
}

func (r *MissionsRepo) List(ctx context.Context, orgID uuid.UUID, limit int, offset int) ([]*domain.Mission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT mission_id, org_id, workspace_id, name, status, metrics, created_at, updated_at
		FROM missions
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []*domain.Mission
	for rows.Next() {
		var (
			mission domain.Mission
			metrics []byte
		)
		if err := rows.Scan(&mission.MissionID, &mission.OrgID, &mission.WorkspaceID, &mission.Name, &mission.Status, &metrics, &mission.CreatedAt, &mission.UpdatedAt); err != nil {
			return nil, err
		}
		if len(metrics) > 0 {
			if err := json.Unmarshal(metrics, &mission.Metrics); err != nil {
				return nil, err
			}
		}
		missions = append(missions, &mission)
	}
	return missions, rows.Err()
}
