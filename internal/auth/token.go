package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceTokenIssuer is the issuer claim of service-to-service assertions.
const ServiceTokenIssuer = "accounts"

// IssueServiceToken creates an HS256 signed assertion identifying this service
// to a target service. The target verifies it with the shared secret.
func IssueServiceToken(secret []byte, audience string, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret is required")
	}

	now := time.Now()
	expiry := now.Add(ttl)
	claims := &jwt.RegisteredClaims{
		Subject:   ServiceTokenIssuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
		Issuer:    ServiceTokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// VerifyServiceToken validates an assertion produced by IssueServiceToken.
func VerifyServiceToken(secret []byte, audience, tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ServiceTokenIssuer),
		jwt.WithAudience(audience),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
