// Package store keeps a history of computed statistics envelopes in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned by Latest when the owner has no saved history.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Snapshot is one saved statistics run.
type Snapshot struct {
	ID        int64           `json:"id"`
	OwnerID   int64           `json:"ownerId"`
	OwnerName string          `json:"ownerName"`
	PostCount int             `json:"postCount"`
	CreatedAt time.Time       `json:"createdAt"`
	Envelope  json.RawMessage `json:"envelope"`
}

// SQLite wraps *sql.DB using the pure-Go modernc driver.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func Open(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            owner_id INTEGER NOT NULL,
            owner_name TEXT,
            post_count INTEGER NOT NULL,
            created_at TIMESTAMP NOT NULL,
            envelope TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS snapshots_owner_created ON snapshots(owner_id, created_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// Save stores an encoded envelope and returns the saved snapshot.
func (s *SQLite) Save(ctx context.Context, snap Snapshot) (Snapshot, error) {
	if len(snap.Envelope) == 0 {
		return Snapshot{}, errors.New("snapshot envelope required")
	}
	if !json.Valid(snap.Envelope) {
		return Snapshot{}, errors.New("snapshot envelope is not valid JSON")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now()
	}
	snap.CreatedAt = snap.CreatedAt.UTC()

	res, err := s.db.ExecContext(ctx, `INSERT INTO snapshots(owner_id, owner_name, post_count, created_at, envelope)
        VALUES(?,?,?,?,?)`,
		snap.OwnerID, snap.OwnerName, snap.PostCount, snap.CreatedAt, string(snap.Envelope))
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot for %d: %w", snap.OwnerID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot id: %w", err)
	}
	snap.ID = id
	return snap, nil
}

// List returns up to limit snapshots for the owner, newest first. A limit of
// zero or less returns all of them.
func (s *SQLite) List(ctx context.Context, ownerID int64, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, COALESCE(owner_name,''), post_count, created_at, envelope
        FROM snapshots WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Latest returns the newest snapshot for the owner.
func (s *SQLite) Latest(ctx context.Context, ownerID int64) (Snapshot, error) {
	snaps, err := s.List(ctx, ownerID, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return snaps[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var snap Snapshot
	var createdAt sql.NullTime
	var envelope string
	if err := row.Scan(&snap.ID, &snap.OwnerID, &snap.OwnerName, &snap.PostCount, &createdAt, &envelope); err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	if createdAt.Valid {
		snap.CreatedAt = createdAt.Time
	}
	snap.Envelope = json.RawMessage(envelope)
	return snap, nil
}
