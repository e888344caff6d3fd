// AngelaMos | 2026
// verifier_test.go

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

func newTestDenylist(t *testing.T) (*Denylist, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewDenylist(client), mr
}

func TestDenylistRevoke(t *testing.T) {
	denylist, mr := newTestDenylist(t)
	ctx := context.Background()

	require.NoError(t, denylist.Revoke(ctx, "jti-1", time.Now().Add(10*time.Minute)))

	revoked, err := denylist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL("blacklist:jti-1")
	assert.Greater(t, ttl, 9*time.Minute)

	revoked, err = denylist.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestDenylistSkipsExpiredTokens(t *testing.T) {
	denylist, mr := newTestDenylist(t)

	require.NoError(t, denylist.Revoke(context.Background(), "old", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists("blacklist:old"))
}

func TestAccessVerifier(t *testing.T) {
	signer := newTestSigner(t)
	denylist, mr := newTestDenylist(t)
	verifier := NewAccessVerifier(signer, denylist)
	ctx := context.Background()

	signed, err := signer.Sign(alice.principal, 5*time.Minute)
	require.NoError(t, err)

	claims, err := verifier.Verify(ctx, signed.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.principal.ID, claims.UserID)

	require.NoError(t, denylist.Revoke(ctx, signed.JTI, signed.ExpiresAt))

	_, err = verifier.Verify(ctx, signed.Token)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)

	t.Run("fails closed when redis is down", func(t *testing.T) {
		fresh, err := signer.Sign(bob.principal, 5*time.Minute)
		require.NoError(t, err)

		mr.Close()

		_, err = verifier.Verify(ctx, fresh.Token)
		assert.ErrorIs(t, err, core.ErrTokenRevoked)
	})
}

func TestAccessVerifierWithoutDenylist(t *testing.T) {
	signer := newTestSigner(t)
	verifier := NewAccessVerifier(signer, nil)

	signed, err := signer.Sign(alice.principal, time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), signed.Token)
	assert.NoError(t, err)

	_, err = verifier.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}
