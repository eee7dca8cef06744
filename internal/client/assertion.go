package client

import (
	"time"

	"github.com/wolfeidau/accounts/internal/auth"
	"golang.org/x/oauth2"
)

// assertionSource mints service assertions for a target audience.
// Wrap with oauth2.ReuseTokenSource so a token is reused until close to expiry.
type assertionSource struct {
	secret   []byte
	audience string
	ttl      time.Duration
}

func (s *assertionSource) Token() (*oauth2.Token, error) {
	signed, expiry, err := auth.IssueServiceToken(s.secret, s.audience, s.ttl)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
