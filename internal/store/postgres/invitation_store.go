package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/store"
)

// InvitationStore implements store.InvitationStore using PostgreSQL.
type InvitationStore struct {
	db *DB
}

func NewInvitationStore(db *DB) *InvitationStore {
	return &InvitationStore{db: db}
}

const invitationColumns = `invitation_id, org_id, user_id, email, request, status, created_at`

func (s *InvitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	_, err := s.db.q(ctx).Exec(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, inv.InvitationID, inv.OrgID, inv.UserID, inv.Email, inv.Request, inv.Status, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w",
			mapPostgresError(err, store.ErrInvitationAlreadyExists, store.ErrOrganizationNotFound))
	}
	return nil
}

func (s *InvitationStore) Get(ctx context.Context, invitationID uuid.UUID) (*models.Invitation, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	inv, err := scanInvitation(s.db.q(ctx).QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE invitation_id = $1
	`, invitationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", mapPostgresError(err, nil, nil))
	}
	return inv, nil
}

func (s *InvitationStore) Delete(ctx context.Context, invitationID uuid.UUID) error {
	result, err := s.db.q(ctx).Exec(ctx, `DELETE FROM invitations WHERE invitation_id = $1`, invitationID)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", mapPostgresError(err, nil, nil))
	}
	if result.RowsAffected() == 0 {
		return store.ErrInvitationNotFound
	}
	return nil
}

func (s *InvitationStore) ListPending(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.q(ctx).Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE org_id = $1 AND status = $2
		ORDER BY created_at
	`, orgID, models.InvitationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", mapPostgresError(err, nil, nil))
	}
	defer rows.Close()

	var out []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err, nil, nil)
	}
	return out, nil
}

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	var inv models.Invitation
	err := row.Scan(
		&inv.InvitationID,
		&inv.OrgID,
		&inv.UserID,
		&inv.Email,
		&inv.Request,
		&inv.Status,
		&inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
