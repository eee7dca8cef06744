package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/accounts/internal/auth"
	"github.com/wolfeidau/accounts/internal/models"
)

func TestClient_Send(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotType string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody = nil
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(TargetConfig{Name: "documents", BaseURL: srv.URL + "/", Token: "s3cret", AuthScheme: "Token", TimeoutSeconds: 5}, nil)
	require.NoError(t, err)
	require.Equal(t, "documents", c.Name())

	t.Run("patch with body", func(t *testing.T) {
		err := c.Send(context.Background(), http.MethodPatch, "organizations/abc", map[string]any{"name": "Acme"})
		require.NoError(t, err)
		require.Equal(t, http.MethodPatch, gotMethod)
		require.Equal(t, "/api/organizations/abc/", gotPath)
		require.Equal(t, "Token s3cret", gotAuth)
		require.Equal(t, "application/json", gotType)
		require.Equal(t, "Acme", gotBody["name"])
	})

	t.Run("delete without body", func(t *testing.T) {
		err := c.Send(context.Background(), http.MethodDelete, "/users/u1/", nil)
		require.NoError(t, err)
		require.Equal(t, http.MethodDelete, gotMethod)
		require.Equal(t, "/api/users/u1/", gotPath)
		require.Empty(t, gotType)
		require.Nil(t, gotBody)
	})
}

func TestClient_StatusError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		notFound bool
	}{
		{name: "not found", status: http.StatusNotFound, notFound: true},
		{name: "server error", status: http.StatusBadGateway},
		{name: "bad request", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c, err := New(TargetConfig{Name: "foia", BaseURL: srv.URL, Token: "t", AuthScheme: "Token", TimeoutSeconds: 5}, nil)
			require.NoError(t, err)

			err = c.Send(context.Background(), http.MethodPost, "users/u1", map[string]string{"name": "x"})
			require.Error(t, err)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tt.status, se.StatusCode)
			require.Equal(t, "nope", se.Body)
			require.Equal(t, tt.notFound, IsNotFound(err))
		})
	}
}

func TestClient_SignedAssertion(t *testing.T) {
	t.Setenv("FOIA_SIGNING_SECRET", "shared-secret")

	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	c, err := New(TargetConfig{Name: "foia", BaseURL: srv.URL, SigningSecretEnv: "FOIA_SIGNING_SECRET", TimeoutSeconds: 5}, nil)
	require.NoError(t, err)

	for range 2 {
		require.NoError(t, c.Send(context.Background(), http.MethodPost, "organizations/o1", map[string]string{}))
	}

	require.Len(t, tokens, 2)
	require.Equal(t, tokens[0], tokens[1], "assertion should be reused until near expiry")

	raw, ok := strings.CutPrefix(tokens[0], "Bearer ")
	require.True(t, ok)

	claims, err := auth.VerifyServiceToken([]byte("shared-secret"), "foia", raw)
	require.NoError(t, err)
	require.Equal(t, auth.ServiceTokenIssuer, claims.Issuer)
}

func TestNew_missingSigningSecret(t *testing.T) {
	_, err := New(TargetConfig{Name: "foia", BaseURL: "http://localhost", SigningSecretEnv: "ACCOUNTS_TEST_UNSET_SECRET"}, nil)
	require.Error(t, err)
}

func TestLoadTargets(t *testing.T) {
	t.Setenv("DOCS_SYNC_TOKEN", "from-env")

	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lanes: 4
targets:
  - name: documents
    base_url: https://documents.example.com
    token_env: DOCS_SYNC_TOKEN
    entities: [organization, membership, user]
  - name: foia
    base_url: https://foia.example.com
    token: inline
    auth_scheme: Bearer
    timeout_seconds: 3
    entities: [organization]
`), 0o600))

	tf, err := LoadTargets(path)
	require.NoError(t, err)
	require.Equal(t, 4, tf.Lanes)
	require.Len(t, tf.Targets, 2)

	docs := tf.Targets[0]
	require.Equal(t, "from-env", docs.Token)
	require.Equal(t, "Token", docs.AuthScheme)
	require.Equal(t, 10, docs.TimeoutSeconds)

	foia := tf.Targets[1]
	require.Equal(t, "Bearer", foia.AuthScheme)
	require.Equal(t, 3, foia.TimeoutSeconds)

	reg := tf.Registry()
	require.Equal(t, []string{"documents", "foia"}, reg.Targets(models.EntityOrganization))
	require.Equal(t, []string{"documents"}, reg.Targets(models.EntityUser))
}

func TestParseTargets_invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing name", yaml: "targets:\n  - base_url: http://x\n    token: t\n    entities: [user]\n"},
		{name: "relative url", yaml: "targets:\n  - name: a\n    base_url: /api\n    token: t\n    entities: [user]\n"},
		{name: "unknown entity", yaml: "targets:\n  - name: a\n    base_url: http://x\n    token: t\n    entities: [invoice]\n"},
		{name: "no entities", yaml: "targets:\n  - name: a\n    base_url: http://x\n    token: t\n"},
		{name: "no credentials", yaml: "targets:\n  - name: a\n    base_url: http://x\n    entities: [user]\n"},
		{name: "duplicate", yaml: "targets:\n  - name: a\n    base_url: http://x\n    token: t\n    entities: [user]\n  - name: a\n    base_url: http://y\n    token: t\n    entities: [user]\n"},
		{name: "malformed", yaml: "targets: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTargets([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestParseTargets_defaultLanes(t *testing.T) {
	tf, err := ParseTargets([]byte("targets: []\n"))
	require.NoError(t, err)
	require.Equal(t, 8, tf.Lanes)
}
