package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

const secret = "test-secret"

func mint(t *testing.T, userID, sessionID, role string, ttl time.Duration) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, userID, sessionID, role, ttl)
	require.NoError(t, err)
	return tok
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(secret, nil)
	p, err := v.Verify(context.Background(), mint(t, "u1", "s1", "driver", time.Minute))
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u1", SessionID: "s1", Role: models.UserTypeDriver}, p)
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier(secret, nil)
	other, err := utils.GenerateToken("other-secret", "u1", "s1", "driver", time.Minute)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not-a-jwt",
		"wrong secret":  other,
		"expired":       mint(t, "u1", "s1", "driver", -time.Minute),
		"unknown role":  mint(t, "u1", "s1", "root", time.Minute),
		"missing owner": mint(t, "", "s1", "passenger", time.Minute),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.ErrorIs(t, err, ErrAuthentication)
		})
	}
}

func TestVerifyRevokedSession(t *testing.T) {
	ctx := context.Background()
	revoked := NewMemoryRevocations()
	v := NewJWTVerifier(secret, revoked)
	tok := mint(t, "u1", "s1", "passenger", time.Minute)

	_, err := v.Verify(ctx, tok)
	require.NoError(t, err)

	require.NoError(t, revoked.Revoke(ctx, "s1", time.Hour))
	_, err = v.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestMemoryRevocationsExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	m := NewMemoryRevocations()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Revoke(ctx, "s1", time.Minute))
	require.NoError(t, m.Revoke(ctx, "s2", 0))

	now = now.Add(2 * time.Minute)
	r1, _ := m.IsRevoked(ctx, "s1")
	r2, _ := m.IsRevoked(ctx, "s2")
	assert.False(t, r1)
	assert.True(t, r2)
}

func TestRequire(t *testing.T) {
	p := Principal{UserID: "u1", Role: models.UserTypeDriver}
	assert.NoError(t, Require(p, models.UserTypeDriver, models.UserTypeAdmin))
	assert.ErrorIs(t, Require(p, models.UserTypeAdmin), ErrAuthorization)
}
