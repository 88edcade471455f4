// Package token mints and verifies the signed session tokens handed
// back to clients after a successful portal login.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// portal sessions stay valid for roughly a month, the token mirrors that
const Lifetime = 30 * 24 * time.Hour

var ErrInvalidToken = fmt.Errorf("invalid token")

type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) Issuer {
	return Issuer{secret: []byte(secret)}
}

// Mint creates an HS256 token carrying the owner email, expiring
// Lifetime from `now`.
func (i Issuer) Mint(email string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify decodes the token and returns the owner email. Expired or
// malformed tokens are rejected, never silently accepted.
func (i Issuer) Verify(tokenStr string) (string, error) {
	parsed, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// DaysRemaining reports whole days until expiry, 0 for anything
// invalid or already expired.
func (i Issuer) DaysRemaining(tokenStr string, now time.Time) int {
	parsed, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return 0
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ExpiresAt == nil {
		return 0
	}
	remaining := claims.ExpiresAt.Time.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}
