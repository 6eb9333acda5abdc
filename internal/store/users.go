package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `id, username, email, full_name, hashed_password, role, is_active, created_at, last_login`

// CreateUser inserts a user. Duplicate username or email returns ErrConflict.
func (d *DB) CreateUser(ctx context.Context, u *User) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.FullName, u.HashedPassword, u.Role,
		boolToInt(u.IsActive), formatTime(u.CreatedAt), formatTimePtr(u.LastLogin))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser fetches a user by ID
func (d *DB) GetUser(ctx context.Context, id string) (*User, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername fetches a user by username or email
func (d *DB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ?`, username, username)
	return scanUser(row)
}

// TouchLastLogin records a successful login
func (d *DB) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := d.conn.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return checkAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		active    int
		createdAt string
		lastLogin sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.HashedPassword, &u.Role,
		&active, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.IsActive = active == 1
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.LastLogin, err = parseTimePtr(lastLogin); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateAccountHash registers a hash digest for a user
func (d *DB) CreateAccountHash(ctx context.Context, h *AccountHash) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO account_hashes (hash_digest, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		h.Digest, h.UserID, formatTime(h.CreatedAt), formatTime(h.ExpiresAt))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting account hash: %w", err)
	}
	return nil
}

// GetAccountHash looks up a hash by digest, including revoked and expired rows.
func (d *DB) GetAccountHash(ctx context.Context, digest string) (*AccountHash, error) {
	var (
		h                   AccountHash
		createdAt, expires  string
		revokedAt, lastUsed sql.NullString
	)
	err := d.conn.QueryRowContext(ctx,
		`SELECT hash_digest, user_id, created_at, expires_at, revoked_at, last_used
		 FROM account_hashes WHERE hash_digest = ?`, digest).
		Scan(&h.Digest, &h.UserID, &createdAt, &expires, &revokedAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account hash: %w", err)
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if h.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	if h.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return nil, err
	}
	if h.LastUsed, err = parseTimePtr(lastUsed); err != nil {
		return nil, err
	}
	return &h, nil
}

// MarkAccountHashUsed stamps the last successful use of a hash
func (d *DB) MarkAccountHashUsed(ctx context.Context, digest string, at time.Time) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE account_hashes SET last_used = ? WHERE hash_digest = ?`, formatTime(at), digest)
	if err != nil {
		return fmt.Errorf("updating account hash: %w", err)
	}
	return checkAffected(res)
}

// RevokeAccountHashes revokes every active hash of a user and returns how many
// rows changed.
func (d *DB) RevokeAccountHashes(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE account_hashes SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		formatTime(at), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking account hashes: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpiredAccountHashes deletes hashes that expired or were revoked before cutoff.
func (d *DB) PurgeExpiredAccountHashes(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := formatTime(cutoff)
	res, err := d.conn.ExecContext(ctx,
		`DELETE FROM account_hashes WHERE expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)`, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("purging account hashes: %w", err)
	}
	return res.RowsAffected()
}
