package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/store"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	db *DB
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
func NewOrganizationStore(db *DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

const organizationColumns = `org_id, name, slug, private, individual, plan, max_users, created_at, updated_at`

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	if err := outbox.Record(ctx, models.EntityOrganization, org.OrgID.String(), models.SyncActionCreate); err != nil {
		return err
	}

	_, err := s.db.q(ctx).Exec(ctx, `
		INSERT INTO organizations (`+organizationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		org.OrgID,
		org.Name,
		org.Slug,
		org.Private,
		org.Individual,
		org.Plan,
		org.MaxUsers,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err, store.ErrOrganizationAlreadyExists, nil))
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("slug", org.Slug).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.getWhere(ctx, `org_id = $1`, orgID)
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return s.getWhere(ctx, `slug = $1`, slug)
}

func (s *OrganizationStore) getWhere(ctx context.Context, where string, arg any) (*models.Organization, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var org models.Organization
	err := s.db.q(ctx).QueryRow(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE `+where, arg).Scan(
		&org.OrgID,
		&org.Name,
		&org.Slug,
		&org.Private,
		&org.Individual,
		&org.Plan,
		&org.MaxUsers,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err, nil, nil))
	}

	return &org, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	if err := outbox.Record(ctx, models.EntityOrganization, org.OrgID.String(), models.SyncActionUpdate); err != nil {
		return err
	}

	result, err := s.db.q(ctx).Exec(ctx, `
		UPDATE organizations SET
			name = $2,
			slug = $3,
			private = $4,
			individual = $5,
			plan = $6,
			max_users = $7,
			updated_at = $8
		WHERE org_id = $1
	`,
		org.OrgID,
		org.Name,
		org.Slug,
		org.Private,
		org.Individual,
		org.Plan,
		org.MaxUsers,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err, store.ErrOrganizationAlreadyExists, nil))
	}
	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Msg("Updated organization")

	return nil
}

// Delete deletes an organization. Memberships and invitations cascade.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	if err := outbox.Record(ctx, models.EntityOrganization, orgID.String(), models.SyncActionDelete); err != nil {
		return err
	}

	rows, err := s.db.q(ctx).Query(ctx, `DELETE FROM memberships WHERE org_id = $1 RETURNING user_id`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete memberships: %w", mapPostgresError(err, nil, nil))
	}
	var removed []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan membership: %w", err)
		}
		removed = append(removed, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", mapPostgresError(err, nil, nil))
	}

	result, err := s.db.q(ctx).Exec(ctx, `DELETE FROM organizations WHERE org_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err, nil, nil))
	}
	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	for _, userID := range removed {
		if err := outbox.Record(ctx, models.EntityMembership, models.MembershipKey(orgID, userID), models.SyncActionDelete); err != nil {
			return err
		}
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Int("memberships", len(removed)).
		Msg("Deleted organization")

	return nil
}
