package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/accounts/internal/account"
	"github.com/wolfeidau/accounts/internal/auth"
	"github.com/wolfeidau/accounts/internal/organization"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/permission"
	"github.com/wolfeidau/accounts/internal/store"
)

func TestSyncFlags_load(t *testing.T) {
	t.Run("no targets file", func(t *testing.T) {
		flags := &SyncFlags{}
		targets, err := flags.load()
		require.NoError(t, err)
		require.Empty(t, targets.Targets)
		require.Equal(t, outbox.DefaultLanes, targets.Lanes)
	})

	t.Run("targets file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "targets.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
lanes: 4
targets:
  - name: documents
    base_url: https://documents.example.com
    token: secret
    entities: [organization, user]
`), 0o600))

		flags := &SyncFlags{Targets: path}
		targets, err := flags.load()
		require.NoError(t, err)
		require.Equal(t, 4, targets.Lanes)
		require.Len(t, targets.Targets, 1)
	})
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	b := openMemory(outbox.NewDispatcher(outbox.NewRegistry(), outbox.DefaultLanes))
	svc := b.services()

	user, token, err := createUser(ctx, b, svc, account.SignUpParams{
		Username:      "alice",
		Email:         "alice@example.com",
		EmailVerified: true,
	}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := auth.NewTokenAuthenticator(b.tokens, b.users, b.memberships).AuthenticateToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.UserID, id.User.UserID)
}

func TestSetPlan(t *testing.T) {
	ctx := context.Background()
	b := openMemory(outbox.NewDispatcher(outbox.NewRegistry(), outbox.DefaultLanes))
	svc := b.services()

	user, _, err := svc.accounts.SignUp(ctx, account.SignUpParams{Username: "alice", Email: "alice@example.com", EmailVerified: true})
	require.NoError(t, err)
	_, err = svc.organizations.Create(ctx, permission.NewSubject(user, nil), organization.CreateParams{Name: "Acme"})
	require.NoError(t, err)

	org, err := setPlan(ctx, b, svc, "acme", "team", 25)
	require.NoError(t, err)
	require.Equal(t, "team", org.Plan)
	require.Equal(t, 25, org.MaxUsers)

	_, err = setPlan(ctx, b, svc, "missing", "team", 25)
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)

	_, err = setPlan(ctx, b, svc, "alice", "team", 25)
	require.ErrorIs(t, err, organization.ErrInvalidArgument)
}

func TestWorkerPoolWithoutTargets(t *testing.T) {
	b := openMemory(outbox.NewDispatcher(outbox.NewRegistry(), outbox.DefaultLanes))

	flags := &SyncFlags{}
	targets, err := flags.load()
	require.NoError(t, err)

	pool, err := b.workerPool(targets, flags.config())
	require.NoError(t, err)
	require.Equal(t, 0, pool.Drain(context.Background()))
}

func TestWithCORS(t *testing.T) {
	h := withCORS([]string{" https://app.example.com ", ""}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/users/me", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
