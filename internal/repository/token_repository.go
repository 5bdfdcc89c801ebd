package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTokenInvalid covers unknown, revoked and expired refresh tokens alike.
var ErrTokenInvalid = errors.New("refresh token invalid")

const (
	qInsertRefresh = "INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)"
	qFindRefresh   = "SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ?"
	qRevokeHash    = "UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE token_hash = ? AND revoked_at IS NULL"
	qRevokeUser    = "UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE user_id = ? AND revoked_at IS NULL"
)

// TokenRepo stores refresh tokens by SHA-256 hash. The raw token never
// reaches the database.
type TokenRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	if _, err := conn(ctx, r.DB).ExecContext(ctx, qInsertRefresh, userID, tokenHash, exp.UTC()); err != nil {
		return fmt.Errorf("store refresh token for user %d: %w", userID, classify(err))
	}
	return nil
}

// ValidateRefresh returns the owner of a live token.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := conn(ctx, r.DB).QueryRowContext(ctx, qFindRefresh, tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrTokenInvalid
	case err != nil:
		return 0, fmt.Errorf("look up refresh token: %w", err)
	case revokedAt.Valid, !expiresAt.After(r.Now()):
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

// RevokeByHash is a no-op for tokens already revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	return r.revoke(ctx, qRevokeHash, tokenHash)
}

// RevokeAllForUser ends every session of the user.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	return r.revoke(ctx, qRevokeUser, userID)
}

func (r *TokenRepo) revoke(ctx context.Context, query string, arg any) error {
	if _, err := conn(ctx, r.DB).ExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
