package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret")

	tok, err := issuer.Mint("student@srmist.edu.in", time.Now())
	require.NoError(t, err)

	email, err := issuer.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "student@srmist.edu.in", email)
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer := NewIssuer("test-secret")

	tok, err := issuer.Mint("student@srmist.edu.in", time.Now().Add(-Lifetime-time.Hour))
	require.NoError(t, err)

	_, err = issuer.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongSecretRejected(t *testing.T) {
	tok, err := NewIssuer("secret-a").Mint("student@srmist.edu.in", time.Now())
	require.NoError(t, err)

	_, err = NewIssuer("secret-b").Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMalformedTokenRejected(t *testing.T) {
	_, err := NewIssuer("secret").Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDaysRemaining(t *testing.T) {
	issuer := NewIssuer("test-secret")
	now := time.Now()

	tok, err := issuer.Mint("student@srmist.edu.in", now)
	require.NoError(t, err)

	require.Equal(t, 29, issuer.DaysRemaining(tok, now.Add(12*time.Hour)))
	require.Equal(t, 0, issuer.DaysRemaining(tok, now.Add(Lifetime+time.Hour)))
	require.Equal(t, 0, issuer.DaysRemaining("garbage", now))
}
