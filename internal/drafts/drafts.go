// Package drafts keeps the last unsaved payload of each design in a local SQLite file so a
// failed save survives a restart.
package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// NewDesignKey is the key used for a design that has no server id yet.
const NewDesignKey = "new"

var ErrNotFound = errors.New("drafts: not found")

// Draft is a journaled save payload.
type Draft struct {
	Key     string
	Payload []byte
	SavedAt time.Time
}

// Store is a SQLite backed draft journal.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create drafts directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS drafts (
		design_key TEXT PRIMARY KEY,
		payload    BLOB NOT NULL,
		saved_at   INTEGER NOT NULL
	)`)
	return err
}

// Put replaces the draft stored under key.
func (s *Store) Put(ctx context.Context, key string, payload []byte) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO drafts (design_key, payload, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(design_key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		key, payload, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put draft %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (Draft, error) {
	var d Draft
	var ms int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT design_key, payload, saved_at FROM drafts WHERE design_key = ?`, key,
	).Scan(&d.Key, &d.Payload, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("get draft %s: %w", key, err)
	}
	d.SavedAt = time.UnixMilli(ms)
	return d, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM drafts WHERE design_key = ?`, key); err != nil {
		return fmt.Errorf("delete draft %s: %w", key, err)
	}
	return nil
}

// Keys lists journaled design keys, newest first.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT design_key FROM drafts ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
