package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

// SQLite stores each session as a JSONB document next to the columns the
// store itself needs: version for conditional writes and expires_at for the sweep.
type SQLite struct {
	db        *sql.DB
	retention Retention
}

func NewSQLite(ctx context.Context, db *sql.DB, retention Retention) (*SQLite, error) {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			version    INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			data       JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("creating sessions table: %w", err)
		}
	}
	return &SQLite{db: db, retention: retention}, nil
}

func (s *SQLite) Create(ctx context.Context, sess game.Session) (game.Session, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return game.Session{}, err
	}
	sess.Version = 1
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, version, expires_at, data) VALUES (?, ?, ?, ?, jsonb(?))`,
		sess.ID, string(sess.Status), sess.Version, s.retention.ExpiresAt(sess).UnixMilli(), string(data),
	)
	if err != nil {
		return game.Session{}, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (game.Session, error) {
	var (
		data    string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data), version FROM sessions WHERE id = ?`, id,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Session{}, moviequiz.ErrSessionNotFound
	}
	if err != nil {
		return game.Session{}, err
	}
	return decodeSession(data, version)
}

func (s *SQLite) Update(ctx context.Context, sess game.Session) (game.Session, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return game.Session{}, err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, version = version + 1, expires_at = ?, data = jsonb(?)
		 WHERE id = ? AND version = ?`,
		string(sess.Status), s.retention.ExpiresAt(sess).UnixMilli(), string(data), sess.ID, sess.Version,
	)
	if err != nil {
		return game.Session{}, fmt.Errorf("updating session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 1 {
		sess.Version++
		return sess, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sess.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Session{}, moviequiz.ErrSessionNotFound
	}
	if err != nil {
		return game.Session{}, err
	}
	return game.Session{}, moviequiz.ErrStaleWrite
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return moviequiz.ErrSessionNotFound
	}
	return nil
}

func (s *SQLite) Due(ctx context.Context, now time.Time) ([]game.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data), version FROM sessions WHERE expires_at <= ? ORDER BY expires_at`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []game.Session
	for rows.Next() {
		var (
			data    string
			version int64
		)
		if err := rows.Scan(&data, &version); err != nil {
			return nil, err
		}
		sess, err := decodeSession(data, version)
		if err != nil {
			return nil, err
		}
		due = append(due, sess)
	}
	return due, rows.Err()
}

// Close is a no-op: the *sql.DB belongs to the caller.
func (s *SQLite) Close() error { return nil }

func decodeSession(data string, version int64) (game.Session, error) {
	var sess game.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return game.Session{}, fmt.Errorf("decoding session: %w", err)
	}
	sess.Version = version
	return sess, nil
}

var _ Store = (*SQLite)(nil)
