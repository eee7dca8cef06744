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

// MembershipStore implements store.MembershipStore using PostgreSQL.
type MembershipStore struct {
	db *DB
}

func NewMembershipStore(db *DB) *MembershipStore {
	return &MembershipStore{db: db}
}

func (s *MembershipStore) Create(ctx context.Context, m *models.Membership) error {
	if err := outbox.Record(ctx, models.EntityMembership, m.Key(), models.SyncActionCreate); err != nil {
		return err
	}

	_, err := s.db.q(ctx).Exec(ctx, `
		INSERT INTO memberships (org_id, user_id, admin, created_at)
		VALUES ($1, $2, $3, $4)
	`, m.OrgID, m.UserID, m.Admin, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w",
			mapPostgresError(err, store.ErrMembershipAlreadyExists, store.ErrOrganizationNotFound))
	}

	log.Debug().
		Str("org_id", m.OrgID.String()).
		Str("user_id", m.UserID.String()).
		Bool("admin", m.Admin).
		Msg("Created membership")

	return nil
}

func (s *MembershipStore) Get(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var m models.Membership
	err := s.db.q(ctx).QueryRow(ctx, `
		SELECT org_id, user_id, admin, created_at
		FROM memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&m.OrgID, &m.UserID, &m.Admin, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", mapPostgresError(err, nil, nil))
	}

	return &m, nil
}

func (s *MembershipStore) Update(ctx context.Context, m *models.Membership) error {
	if err := outbox.Record(ctx, models.EntityMembership, m.Key(), models.SyncActionUpdate); err != nil {
		return err
	}

	result, err := s.db.q(ctx).Exec(ctx, `
		UPDATE memberships SET admin = $3
		WHERE org_id = $1 AND user_id = $2
	`, m.OrgID, m.UserID, m.Admin)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", mapPostgresError(err, nil, nil))
	}
	if result.RowsAffected() == 0 {
		return store.ErrMembershipNotFound
	}

	return nil
}

func (s *MembershipStore) Delete(ctx context.Context, orgID, userID uuid.UUID) error {
	if err := outbox.Record(ctx, models.EntityMembership, models.MembershipKey(orgID, userID), models.SyncActionDelete); err != nil {
		return err
	}

	result, err := s.db.q(ctx).Exec(ctx, `DELETE FROM memberships WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", mapPostgresError(err, nil, nil))
	}
	if result.RowsAffected() == 0 {
		return store.ErrMembershipNotFound
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Str("user_id", userID.String()).
		Msg("Deleted membership")

	return nil
}

func (s *MembershipStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	return s.list(ctx, `
		SELECT org_id, user_id, admin, created_at
		FROM memberships
		WHERE org_id = $1
		ORDER BY created_at, user_id
	`, orgID)
}

func (s *MembershipStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	return s.list(ctx, `
		SELECT org_id, user_id, admin, created_at
		FROM memberships
		WHERE user_id = $1
		ORDER BY created_at, org_id
	`, userID)
}

func (s *MembershipStore) list(ctx context.Context, query string, arg uuid.UUID) ([]*models.Membership, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.q(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", mapPostgresError(err, nil, nil))
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Admin, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err, nil, nil)
	}

	return out, nil
}
