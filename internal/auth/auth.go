// Package auth turns bearer tokens into principals and tracks revoked
// sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

var (
	// ErrAuthentication means the token is missing, malformed, expired or
	// belongs to a revoked session.
	ErrAuthentication = errors.New("auth: authentication failed")
	// ErrAuthorization means the principal may not use the resource.
	ErrAuthorization = errors.New("auth: not authorized")
)

// Principal is the verified identity behind a token.
type Principal struct {
	UserID    string
	SessionID string
	Role      models.UserType
}

// Verifier authenticates bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// Revocations records sessions that must no longer authenticate.
type Revocations interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// JWTVerifier checks HS256 tokens minted by utils.GenerateToken.
type JWTVerifier struct {
	secret  string
	revoked Revocations
}

func NewJWTVerifier(secret string, revoked Revocations) *JWTVerifier {
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	return &JWTVerifier{secret: secret, revoked: revoked}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, fmt.Errorf("%w: missing token", ErrAuthentication)
	}
	claims, err := utils.ValidateToken(v.secret, token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	role := models.UserType(claims.UserType)
	switch role {
	case models.UserTypePassenger, models.UserTypeDriver, models.UserTypeAdmin:
	default:
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrAuthentication, claims.UserType)
	}
	if claims.UserID == "" {
		return Principal{}, fmt.Errorf("%w: token has no subject", ErrAuthentication)
	}
	if claims.SessionID != "" {
		revoked, err := v.revoked.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			return Principal{}, fmt.Errorf("check session: %w", err)
		}
		if revoked {
			return Principal{}, fmt.Errorf("%w: session revoked", ErrAuthentication)
		}
	}
	return Principal{UserID: claims.UserID, SessionID: claims.SessionID, Role: role}, nil
}

// Require returns ErrAuthorization unless p has one of roles.
func Require(p Principal, roles ...models.UserType) error {
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s", ErrAuthorization, p.Role)
}

func revokedKey(sessionID string) string { return "session:revoked:" + sessionID }

// RedisRevocations stores one expiring key per revoked session.
type RedisRevocations struct {
	c redis.UniversalClient
}

func NewRedisRevocations(c redis.UniversalClient) *RedisRevocations {
	return &RedisRevocations{c: c}
}

func (r *RedisRevocations) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	return r.c.Set(ctx, revokedKey(sessionID), time.Now().Unix(), ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.c.Exists(ctx, revokedKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocations keeps revoked sessions in process.
type MemoryRevocations struct {
	mu       sync.RWMutex
	sessions map[string]time.Time
	now      func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{sessions: map[string]time.Time{}, now: time.Now}
}

// Revoke records sessionID; a zero ttl never expires.
func (m *MemoryRevocations) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var until time.Time
	if ttl > 0 {
		until = m.now().Add(ttl)
	}
	m.sessions[sessionID] = until
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.sessions[sessionID]
	if !ok {
		return false, nil
	}
	return until.IsZero() || m.now().Before(until), nil
}
