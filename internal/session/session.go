package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidSession = errors.New("invalid or expired session")

// Identity is the authenticated caller resolved from a session token
type Identity struct {
	UserID    int64
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

type claims struct {
	Username string `json:"name"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 session tokens
type Manager struct {
	secret   []byte
	ttl      time.Duration
	denylist Denylist
	now      func() time.Time
}

func NewManager(secret []byte, ttl time.Duration, denylist Denylist) *Manager {
	return &Manager{
		secret:   secret,
		ttl:      ttl,
		denylist: denylist,
		now:      time.Now,
	}
}

// TTL is how long issued tokens stay valid
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a new token for the user
func (m *Manager) Issue(userID int64, username string) (string, *Identity, error) {
	now := m.now()
	identity := &Identity{
		UserID:    userID,
		Username:  username,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(m.ttl).Truncate(time.Second),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        identity.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(identity.ExpiresAt),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}
	return signed, identity, nil
}

// Parse verifies the token and returns the identity it carries.
// Bad, expired and revoked tokens all yield ErrInvalidSession.
func (m *Manager) Parse(ctx context.Context, tokenString string) (*Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 || c.ID == "" {
		return nil, fmt.Errorf("%w: malformed claims", ErrInvalidSession)
	}

	revoked, err := m.denylist.IsRevoked(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("check session revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidSession)
	}

	return &Identity{
		UserID:    userID,
		Username:  c.Username,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// Revoke invalidates the token behind the identity until it would have expired anyway
func (m *Manager) Revoke(ctx context.Context, identity *Identity) error {
	if err := m.denylist.Revoke(ctx, identity.TokenID, identity.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
