package commands

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/wolfeidau/accounts/internal/account"
	"github.com/wolfeidau/accounts/internal/auth"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
)

type UsersCmd struct {
	Create UsersCreateCmd `cmd:"" help:"Sign up a user and print an access token"`
}

type UsersCreateCmd struct {
	Username string        `arg:"" help:"username, also the slug of the individual organization"`
	Email    string        `help:"primary email address" required:""`
	Name     string        `help:"display name"`
	TokenTTL time.Duration `help:"lifetime of the printed access token" default:"720h"`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Sync          SyncFlags          `embed:"" prefix:"sync-"`
}

func (c *UsersCreateCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	// The dispatcher must know the targets so the signup is queued for sync.
	targets, err := c.Sync.load()
	if err != nil {
		return err
	}

	b, err := openPostgres(ctx, log, &c.PostgresStore, outbox.NewDispatcher(targets.Registry(), targets.Lanes))
	if err != nil {
		return err
	}
	defer b.close()

	user, token, err := createUser(ctx, b, b.services(), account.SignUpParams{
		Username:      c.Username,
		Name:          c.Name,
		Email:         c.Email,
		EmailVerified: true,
	}, c.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", c.Username, err)
	}

	log.Info().Str("user_id", user.UserID.String()).Str("username", user.Username).Msg("Created user")
	fmt.Println(token)
	return nil
}

// createUser signs up a user and issues an access token for them.
func createUser(ctx context.Context, b *backend, svc *services, params account.SignUpParams, ttl time.Duration) (*models.User, string, error) {
	user, _, err := svc.accounts.SignUp(ctx, params)
	if err != nil {
		return nil, "", err
	}
	token, err := issueToken(ctx, b, user.UserID, ttl)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// issueToken stores the fingerprint of a new random access token and returns the token.
func issueToken(ctx context.Context, b *backend, userID uuid.UUID, ttl time.Duration) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base58.Encode(buf)

	now := time.Now().UTC()
	err := b.tokens.Create(ctx, &models.OAuth2Token{
		TokenID:     uuid.New(),
		UserID:      userID,
		Fingerprint: auth.Fingerprint(token),
		Scope:       "read write",
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}
