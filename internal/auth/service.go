package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumina-home/lumina-core/internal/infrastructure/logging"
)

// Client identifies the device a token was issued to. Refresh tokens are
// bound to this pair and refuse to rotate from anywhere else.
type Client struct {
	IPAddress string
	UserAgent string
}

// SecurityRecorder receives security-relevant events (logins, rotations,
// revocations) for the audit trail. Recording is best effort: a failed
// write never blocks the operation it describes.
type SecurityRecorder interface {
	RecordSecurityEvent(ctx context.Context, actor, action, ipAddress string, success bool, detail string)
}

// Service implements the token lifecycle: login, refresh rotation, logout,
// and per-request authentication and authorisation.
type Service struct {
	users   UserRepository
	tokens  TokenRepository
	codec   *Codec
	logger  *logging.Logger
	auditor SecurityRecorder
	now     func() time.Time
}

// Option configures optional service behaviour.
type Option func(*Service)

// WithClock overrides the service time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAuditor attaches a security event recorder.
func WithAuditor(a SecurityRecorder) Option {
	return func(s *Service) { s.auditor = a }
}

// NewService creates the auth service.
func NewService(users UserRepository, tokens TokenRepository, codec *Codec, logger *logging.Logger, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		codec:  codec,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// dummyHash is verified against when the username does not exist, so login
// latency does not reveal which usernames are registered.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Login verifies credentials and issues a fresh token pair. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string, client Client) (*TokenPair, *User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifyPassword(password, dummyHash) //nolint:errcheck // timing equalisation only
			s.recordEvent(ctx, username, "login", client.IPAddress, false, "unknown username")
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("loading user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.recordEvent(ctx, username, "login", client.IPAddress, false, "wrong password")
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.recordEvent(ctx, username, "login", client.IPAddress, false, "account inactive")
		return nil, nil, ErrUserInactive
	}

	pair, err := s.issueTokens(ctx, user, client)
	if err != nil {
		return nil, nil, err
	}

	s.recordEvent(ctx, username, "login", client.IPAddress, true, "")
	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return pair, user, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair is issued atomically. The token must match the stored hash, the
// issuing user, and the client binding; replayed tokens fail and revoke
// every session the user holds.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client Client) (*TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, ErrRefreshExpired
		}
		return nil, ErrRefreshInvalid
	}

	hash := HashToken(refreshToken)
	row, err := s.tokens.FindActive(ctx, hash, claims.Subject, client.IPAddress, client.UserAgent, s.now())
	if err != nil {
		if errors.Is(err, ErrRefreshInvalid) {
			s.handleReplay(ctx, hash, claims.Subject, client)
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrRefreshInvalid
	}

	access, err := s.codec.SignAccess(user)
	if err != nil {
		return nil, err
	}
	newRefresh, tokenID, expiresAt, err := s.codec.SignRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Rotate(ctx, row.ID, &RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: HashToken(newRefresh),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		ExpiresAt: expiresAt,
	}); err != nil {
		if errors.Is(err, ErrRefreshInvalid) {
			// Lost the race to a concurrent rotation of the same token.
			s.handleReplay(ctx, hash, claims.Subject, client)
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	s.recordEvent(ctx, user.Username, "refresh", client.IPAddress, true, "")
	return &TokenPair{AccessToken: access, RefreshToken: newRefresh}, nil
}

// Logout revokes the session behind a refresh token. It always succeeds:
// a malformed, expired, or already-revoked token leaves nothing to revoke,
// which is the state logout promises.
func (s *Service) Logout(ctx context.Context, refreshToken string, client Client) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return
	}

	row, err := s.tokens.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil || row.UserID != claims.Subject {
		return
	}

	if err := s.tokens.Revoke(ctx, row.ID); err != nil {
		s.logger.Warn("logout revocation failed", "error", err)
		return
	}
	s.recordEvent(ctx, claims.Subject, "logout", client.IPAddress, true, "")
}

// Authenticate validates an access token and reloads the user with current
// roles and permissions. Tokens for deleted or deactivated accounts fail
// with ErrUnauthenticated even when the signature is still valid.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUnauthenticated
	}

	return user, nil
}

// Authorize checks that the user may perform method on the normalised
// path, returning ErrForbidden when not. System role bypasses are logged
// to the audit trail.
func (s *Service) Authorize(ctx context.Context, user *User, method, normalizedPath string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if user.HasSystemRole() {
		s.recordEvent(ctx, user.Username, "system_role_bypass", "", true,
			method+" "+normalizedPath)
		return nil
	}
	if !Allowed(user, method, normalizedPath) {
		return ErrForbidden
	}
	return nil
}

// Sessions lists the active refresh sessions a user currently holds.
func (s *Service) Sessions(ctx context.Context, userID string) ([]RefreshToken, error) {
	return s.tokens.ListActiveByUser(ctx, userID)
}

// PurgeExpiredTokens removes refresh token rows past their expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx)
}

// issueTokens signs a fresh access/refresh pair and persists the refresh
// token hash bound to the client.
func (s *Service) issueTokens(ctx context.Context, user *User, client Client) (*TokenPair, error) {
	access, err := s.codec.SignAccess(user)
	if err != nil {
		return nil, err
	}

	refresh, tokenID, expiresAt, err := s.codec.SignRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Create(ctx, &RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// handleReplay inspects a failed refresh lookup. A hash that exists but is
// revoked means a previously-rotated token was presented again; that is
// strong evidence of token theft, so every session for the user is
// revoked.
func (s *Service) handleReplay(ctx context.Context, hash, userID string, client Client) {
	row, err := s.tokens.GetByTokenHash(ctx, hash)
	if err != nil || !row.Revoked {
		return
	}

	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Error("revoking sessions after replay failed", "user_id", userID, "error", err)
		return
	}
	s.recordEvent(ctx, userID, "refresh_replay", client.IPAddress, false, "all sessions revoked")
	s.logger.Warn("refresh token replay detected", "user_id", userID, "ip", client.IPAddress)
}

func (s *Service) recordEvent(ctx context.Context, actor, action, ip string, success bool, detail string) {
	if s.auditor == nil {
		return
	}
	s.auditor.RecordSecurityEvent(ctx, actor, action, ip, success, detail)
}
