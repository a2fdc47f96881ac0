package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"missionboard/api/internal/domain"
	"missionboard/api/internal/models"
)

type OrganizationsRepo struct {
	pool       *pgxpool.Pool
	outbox     *OutboxRepo
	serializer *domain.Serializer
}

func NewOrganizationsRepo(pool *pgxpool.Pool, outbox *OutboxRepo, serializer *domain.Serializer) *OrganizationsRepo {
	return &OrganizationsRepo{pool: pool, outbox: outbox, serializer: serializer}
}

func (r *OrganizationsRepo) Create(ctx context.Context, org *domain.Organization) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO organizations (org_id, slug, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, org.OrganizationID, org.Slug, org.Name, org.CreatedAt)
	if err != nil {
		return err
	}
	if err := r.outbox.AppendPending(ctx, tx, r.serializer, org); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	org.ClearPendingEvents()
	return nil
}

// Load rehydrates the aggregate for a mutation. Organization state is tiny;
// the interesting part of a mutation is the events it raises.
func (r *OrganizationsRepo) Load(ctx context.Context, orgID uuid.UUID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.pool.QueryRow(ctx, `
		SELECT org_id, slug, name, created_at
		FROM organizations
		WHERE org_id = $1
	`, orgID).Scan(&org.OrganizationID, &org.Slug, &org.Name, &org.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Save flushes whatever events a loaded aggregate has raised into the outbox
// in one transaction.
func (r *OrganizationsRepo) Save(ctx context.Context, org *domain.Organization) error {
	if len(org.PendingEvents()) == 0 {
		return nil
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.outbox.AppendPending(ctx, tx, r.serializer, org); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	org.ClearPendingEvents()
	return nil
}

func (r *OrganizationsRepo) GetByID(ctx context.Context, orgID uuid.UUID) (models.Organization, error) {
	var org models.Organization
	err := r.pool.QueryRow(ctx, `
		SELECT org_id, slug, name, created_at
		FROM organizations
		WHERE org_id = $1
	`, orgID).Scan(&org.OrganizationID, &org.Slug, &org.Name, &org.CreatedAt)
	return org, err
}

func (r *OrganizationsRepo) GetBySlug(ctx context.Context, slug string) (models.Organization, error) {
	var org models.Organization
	err := r.pool.QueryRow(ctx, `
		SELECT org_id, slug, name, created_at
		FROM organizations
		WHERE slug = $1
	`, slug).Scan(&org.OrganizationID, &org.Slug, &org.Name, &org.CreatedAt)
	return org, err
}
