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

// UserStore implements store.UserStore using PostgreSQL.
// Email addresses are stored in their own table and replaced wholesale on update.
type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	if err := outbox.Record(ctx, models.EntityUser, user.UserID.String(), models.SyncActionCreate); err != nil {
		return err
	}

	_, err := s.db.q(ctx).Exec(ctx, `
		INSERT INTO users (user_id, username, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.UserID, user.Username, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err, store.ErrUserAlreadyExists, nil))
	}

	if err := s.writeEmails(ctx, user); err != nil {
		return err
	}

	log.Debug().Str("user_id", user.UserID.String()).Str("username", user.Username).Msg("Created user")
	return nil
}

func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var user models.User
	err := s.db.q(ctx).QueryRow(ctx, `
		SELECT user_id, username, name, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&user.UserID, &user.Username, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err, nil, nil))
	}

	rows, err := s.db.q(ctx).Query(ctx, `
		SELECT email, verified, is_primary
		FROM email_addresses
		WHERE user_id = $1
		ORDER BY is_primary DESC, email
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user emails: %w", mapPostgresError(err, nil, nil))
	}
	defer rows.Close()

	for rows.Next() {
		var e models.EmailAddress
		if err := rows.Scan(&e.Email, &e.Verified, &e.Primary); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		user.Emails = append(user.Emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err, nil, nil)
	}

	return &user, nil
}

func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	if err := outbox.Record(ctx, models.EntityUser, user.UserID.String(), models.SyncActionUpdate); err != nil {
		return err
	}

	result, err := s.db.q(ctx).Exec(ctx, `
		UPDATE users SET username = $2, name = $3, updated_at = $4
		WHERE user_id = $1
	`, user.UserID, user.Username, user.Name, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", mapPostgresError(err, store.ErrUserAlreadyExists, nil))
	}
	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	if _, err := s.db.q(ctx).Exec(ctx, `DELETE FROM email_addresses WHERE user_id = $1`, user.UserID); err != nil {
		return fmt.Errorf("failed to replace user emails: %w", mapPostgresError(err, nil, nil))
	}
	return s.writeEmails(ctx, user)
}

func (s *UserStore) writeEmails(ctx context.Context, user *models.User) error {
	for _, e := range user.Emails {
		_, err := s.db.q(ctx).Exec(ctx, `
			INSERT INTO email_addresses (user_id, email, verified, is_primary)
			VALUES ($1, $2, $3, $4)
		`, user.UserID, e.Email, e.Verified, e.Primary)
		if err != nil {
			return fmt.Errorf("failed to write email %s: %w", e.Email, mapPostgresError(err, nil, store.ErrUserNotFound))
		}
	}
	return nil
}

// TokenStore implements store.TokenStore using PostgreSQL.
type TokenStore struct {
	db *DB
}

func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Create(ctx context.Context, token *models.OAuth2Token) error {
	_, err := s.db.q(ctx).Exec(ctx, `
		INSERT INTO oauth2_tokens (token_id, user_id, fingerprint, scope, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.TokenID, token.UserID, token.Fingerprint, token.Scope, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", mapPostgresError(err, nil, store.ErrUserNotFound))
	}
	return nil
}

func (s *TokenStore) GetByFingerprint(ctx context.Context, fingerprint string) (*models.OAuth2Token, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	var token models.OAuth2Token
	err := s.db.q(ctx).QueryRow(ctx, `
		SELECT token_id, user_id, fingerprint, scope, expires_at, created_at
		FROM oauth2_tokens
		WHERE fingerprint = $1
	`, fingerprint).Scan(&token.TokenID, &token.UserID, &token.Fingerprint, &token.Scope, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", mapPostgresError(err, nil, nil))
	}
	return &token, nil
}
