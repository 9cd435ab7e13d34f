package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims are the JWT claims carried by access tokens. Roles are
// embedded so handlers can log them, but authorisation always reloads the
// user's roles from the database.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// RefreshClaims are the JWT claims carried by refresh tokens. The token ID
// (jti) ties the token to its database row.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Codec signs and verifies RS256 tokens. The signing method is pinned:
// tokens signed with any other algorithm are rejected as malformed.
type Codec struct {
	keys       *KeyManager
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption configures optional codec behaviour.
type CodecOption func(*Codec)

// CodecWithClock overrides the codec's time source. Used in tests to pin
// issue and expiry times.
func CodecWithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec creates a token codec using the given key manager and TTLs.
func NewCodec(keys *KeyManager, accessTTL, refreshTTL time.Duration, opts ...CodecOption) *Codec {
	c := &Codec{
		keys:       keys,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess creates a signed access token for a user.
func (c *Codec) SignAccess(user *User) (string, error) {
	now := c.now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
		Username: user.Username,
		Roles:    user.RoleNames(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).
		SignedString(c.keys.AccessPrivate())
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// SignRefresh creates a signed refresh token for a user. The returned token
// ID (jti) identifies the persisted row created alongside the token; the
// expiry is returned so the caller can store it without re-parsing.
func (c *Codec) SignRefresh(userID string) (token, tokenID string, expiresAt time.Time, err error) {
	now := c.now()
	tokenID = uuid.NewString()
	expiresAt = now.Add(c.refreshTTL)

	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodRS256, claims).
		SignedString(c.keys.RefreshPrivate())
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signing refresh token: %w", err)
	}
	return token, tokenID, expiresAt, nil
}

// VerifyAccess validates an access token signature and expiry.
// Expired tokens return ErrTokenExpired; any other failure returns
// ErrTokenMalformed so callers can distinguish "come back with a refreshed
// token" from "this token was never valid".
func (c *Codec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(tokenString, claims, c.keys.AccessPublic()); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token signature and expiry.
func (c *Codec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(tokenString, claims, c.keys.RefreshPublic()); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or token id", ErrTokenMalformed)
	}
	return claims, nil
}

func (c *Codec) verify(tokenString string, claims jwt.Claims, key any) error {
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	if !token.Valid {
		return ErrTokenMalformed
	}
	return nil
}
