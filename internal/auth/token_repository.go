package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines the interface for refresh token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	FindActive(ctx context.Context, tokenHash, userID, ipAddress, userAgent string, now time.Time) (*RefreshToken, error)
	Rotate(ctx context.Context, oldID string, newToken *RefreshToken) error
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

const tokenColumns = "id, user_id, token_hash, ip_address, user_agent, expires_at, revoked, created_at"

// Create inserts a new refresh token row. The ID is generated if empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	now := time.Now().UTC().Format(time.RFC3339)
	prepareToken(token, now)

	_, err := r.db.ExecContext(ctx, insertTokenSQL, tokenInsertArgs(token, now)...)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a refresh token row by its SHA-256 hash.
func (r *SQLiteTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash = ?", tokenHash))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindActive retrieves the refresh token row matching the hash and the
// client binding, provided it is unrevoked and unexpired at the given time.
// A revoked, expired, or rebound token returns ErrRefreshInvalid.
func (r *SQLiteTokenRepository) FindActive(ctx context.Context, tokenHash, userID, ipAddress, userAgent string, now time.Time) (*RefreshToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+` FROM refresh_tokens
		 WHERE token_hash = ? AND user_id = ? AND ip_address = ? AND user_agent = ?
		   AND revoked = 0 AND expires_at > ?`,
		tokenHash, userID, ipAddress, userAgent,
		now.UTC().Format(time.RFC3339)))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Rotate atomically revokes the consumed token and inserts its replacement
// in a single transaction. The revocation is guarded: if the old token was
// already revoked by a concurrent rotation, the transaction aborts with
// ErrRefreshInvalid and no replacement is issued. This is what turns token
// replay into a hard failure rather than a race.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, oldID string, newToken *RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ? AND revoked = 0", oldID)
	if err != nil {
		return fmt.Errorf("revoking old token: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows != 1 {
		return ErrRefreshInvalid
	}

	now := time.Now().UTC().Format(time.RFC3339)
	prepareToken(newToken, now)

	if _, err := tx.ExecContext(ctx, insertTokenSQL, tokenInsertArgs(newToken, now)...); err != nil {
		return fmt.Errorf("creating replacement token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// Revoke marks a single refresh token as revoked.
func (r *SQLiteTokenRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeAllForUser marks all refresh tokens for a user as revoked.
// Used on password change or admin force-logout.
func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("revoking all tokens for user: %w", err)
	}
	return nil
}

// ListActiveByUser returns all non-revoked, non-expired tokens for a user.
func (r *SQLiteTokenRepository) ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+tokenColumns+` FROM refresh_tokens
		 WHERE user_id = ? AND revoked = 0 AND expires_at > ?
		 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}

	if tokens == nil {
		tokens = []RefreshToken{}
	}
	return tokens, nil
}

// DeleteExpired removes tokens past their expiry, freeing storage.
// Returns the number of deleted rows.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

const insertTokenSQL = `INSERT INTO refresh_tokens (id, user_id, token_hash, ip_address, user_agent, expires_at, revoked, created_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func prepareToken(token *RefreshToken, now string) {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
}

func tokenInsertArgs(token *RefreshToken, now string) []any {
	return []any{
		token.ID, token.UserID, token.TokenHash,
		token.IPAddress, token.UserAgent,
		token.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(token.Revoked), now,
	}
}

func scanToken(s scanner) (*RefreshToken, error) {
	var t RefreshToken
	var revoked int
	var expiresAt, createdAt string

	err := s.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IPAddress, &t.UserAgent,
		&expiresAt, &revoked, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("getting refresh token: %w", err)
	}

	t.Revoked = revoked != 0
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &t, nil
}
