package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	return s.db.view(ctx, func(st *state) error {
		if _, exists := st.users[user.UserID]; exists {
			return store.ErrUserAlreadyExists
		}
		for _, existing := range st.users {
			if existing.Username == user.Username {
				return store.ErrUserAlreadyExists
			}
		}

		if err := outbox.Record(ctx, models.EntityUser, user.UserID.String(), models.SyncActionCreate); err != nil {
			return err
		}
		st.users[user.UserID] = cloneUser(*user)
		return nil
	})
}

func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.view(ctx, func(st *state) error {
		found, ok := st.users[userID]
		if !ok {
			return store.ErrUserNotFound
		}
		user = cloneUser(found)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	return s.db.view(ctx, func(st *state) error {
		if _, ok := st.users[user.UserID]; !ok {
			return store.ErrUserNotFound
		}
		for id, existing := range st.users {
			if id != user.UserID && existing.Username == user.Username {
				return store.ErrUserAlreadyExists
			}
		}

		if err := outbox.Record(ctx, models.EntityUser, user.UserID.String(), models.SyncActionUpdate); err != nil {
			return err
		}
		st.users[user.UserID] = cloneUser(*user)
		return nil
	})
}

// TokenStore implements store.TokenStore using in-memory storage.
type TokenStore struct {
	db *DB
}

func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Create(ctx context.Context, token *models.OAuth2Token) error {
	return s.db.view(ctx, func(st *state) error {
		st.tokens[token.Fingerprint] = *token
		return nil
	})
}

func (s *TokenStore) GetByFingerprint(ctx context.Context, fingerprint string) (*models.OAuth2Token, error) {
	var token models.OAuth2Token
	err := s.db.view(ctx, func(st *state) error {
		found, ok := st.tokens[fingerprint]
		if !ok {
			return store.ErrTokenNotFound
		}
		token = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}
