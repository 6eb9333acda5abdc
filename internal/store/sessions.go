package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const sessionColumns = `id, user_id, title, description, framework_type, status, data, version, tags,
	ai_suggestions, created_at, updated_at`

// CreateSession inserts a framework session as given (version included).
func (d *DB) CreateSession(ctx context.Context, s *FrameworkSession) error {
	tags, err := encodeStrings(s.Tags)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx,
		`INSERT INTO framework_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Title, s.Description, s.FrameworkType, s.Status, s.Data, s.Version, tags,
		nullableString(s.AISuggestions), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting framework session: %w", err)
	}
	return nil
}

// GetSession fetches one session owned by userID
func (d *DB) GetSession(ctx context.Context, userID, id string) (*FrameworkSession, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM framework_sessions WHERE id = ? AND user_id = ?`, id, userID)
	return scanSession(row)
}

// ListSessions returns the user's sessions, newest update first.
func (d *DB) ListSessions(ctx context.Context, userID string, f SessionFilter) ([]*FrameworkSession, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.FrameworkType != "" {
		where = append(where, "framework_type = ?")
		args = append(args, f.FrameworkType)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM framework_sessions WHERE `+strings.Join(where, " AND ")+
			` ORDER BY updated_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing framework sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*FrameworkSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListSessionOwners returns the ids of users that own at least one session
func (d *DB) ListSessionOwners(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT DISTINCT user_id FROM framework_sessions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing session owners: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session owner: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateSession writes every mutable field, increments the version by one and
// stamps updated_at. The new version and timestamp are written back into s.
// There is no compare-and-swap on version: the last writer wins.
func (d *DB) UpdateSession(ctx context.Context, s *FrameworkSession, at time.Time) error {
	tags, err := encodeStrings(s.Tags)
	if err != nil {
		return err
	}
	var version int
	err = d.conn.QueryRowContext(ctx,
		`UPDATE framework_sessions
		 SET title = ?, description = ?, status = ?, data = ?, tags = ?, ai_suggestions = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND user_id = ?
		 RETURNING version`,
		s.Title, s.Description, s.Status, s.Data, tags, nullableString(s.AISuggestions),
		formatTime(at), s.ID, s.UserID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating framework session: %w", err)
	}
	s.Version = version
	s.UpdatedAt = at
	return nil
}

// DeleteSession removes a session owned by userID
func (d *DB) DeleteSession(ctx context.Context, userID, id string) error {
	res, err := d.conn.ExecContext(ctx,
		`DELETE FROM framework_sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting framework session: %w", err)
	}
	return checkAffected(res)
}

func scanSession(row rowScanner) (*FrameworkSession, error) {
	var (
		s                    FrameworkSession
		tags                 string
		ai                   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Description, &s.FrameworkType, &s.Status,
		&s.Data, &s.Version, &tags, &ai, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning framework session: %w", err)
	}
	if s.Tags, err = decodeStrings(tags); err != nil {
		return nil, err
	}
	s.AISuggestions = ai.String
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding string list: %w", err)
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decoding string list: %w", err)
	}
	return values, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
