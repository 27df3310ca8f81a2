// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/store"
)

var _ store.Store = (*DB)(nil)

// DB is a SQLite-backed profile store.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// ":memory:" gives a private in-memory database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			handle            TEXT NOT NULL,
			platform          TEXT NOT NULL,
			platform_username TEXT NOT NULL DEFAULT '',
			profile_url       TEXT NOT NULL DEFAULT '',
			identity          TEXT NOT NULL DEFAULT '{}',
			metrics           TEXT NOT NULL DEFAULT '{}',
			derived           TEXT NOT NULL DEFAULT '{}',
			raw_snapshot      TEXT,
			created_at        TEXT NOT NULL,
			last_updated      TEXT NOT NULL,
			PRIMARY KEY (handle, platform)
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_platform ON profiles(platform);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}
	return nil
}

const selectColumns = `handle, platform, platform_username, profile_url,
	identity, metrics, derived, raw_snapshot, created_at, last_updated`

// Get implements store.Store.
func (db *DB) Get(ctx context.Context, handle string, p profile.Platform) (*profile.Profile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM profiles WHERE handle = ? AND platform = ?`,
		handle, string(p))
	prof, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: getting profile %s/%s: %w", p, handle, err)
	}
	return prof, nil
}

// List implements store.Store.
func (db *DB) List(ctx context.Context, p profile.Platform) ([]*profile.Profile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM profiles WHERE platform = ? ORDER BY handle`,
		string(p))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s profiles: %w", p, err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	var out []*profile.Profile
	for rows.Next() {
		prof, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s profile: %w", p, err)
		}
		out = append(out, prof)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: listing %s profiles: %w", p, err)
	}
	return out, nil
}

// Upsert implements store.Store. The stored created_at wins over prof.CreatedAt.
func (db *DB) Upsert(ctx context.Context, prof *profile.Profile) error {
	cols, err := store.Encode(prof)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	created := prof.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	var snapshot any
	if cols.Snapshot != nil {
		snapshot = string(cols.Snapshot)
	}

	var stored string
	err = db.conn.QueryRowContext(ctx, `
		INSERT INTO profiles (handle, platform, platform_username, profile_url,
			identity, metrics, derived, raw_snapshot, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle, platform) DO UPDATE SET
			platform_username = excluded.platform_username,
			profile_url       = excluded.profile_url,
			identity          = excluded.identity,
			metrics           = excluded.metrics,
			derived           = excluded.derived,
			raw_snapshot      = excluded.raw_snapshot,
			last_updated      = excluded.last_updated
		RETURNING created_at`,
		prof.Handle, string(prof.Platform), prof.PlatformUsername, prof.ProfileURL,
		string(cols.Identity), string(cols.Metrics), string(cols.Derived), snapshot,
		formatTime(created), formatTime(prof.LastUpdated),
	).Scan(&stored)
	if err != nil {
		return fmt.Errorf("sqlite: upserting profile %s/%s: %w", prof.Platform, prof.Handle, err)
	}

	if prof.CreatedAt, err = parseTime(stored); err != nil {
		return fmt.Errorf("sqlite: profile %s/%s created_at: %w", prof.Platform, prof.Handle, err)
	}
	return nil
}

// Update implements store.Store.
func (db *DB) Update(ctx context.Context, prof *profile.Profile) error {
	cols, err := store.Encode(prof)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	var snapshot any
	if cols.Snapshot != nil {
		snapshot = string(cols.Snapshot)
	}

	var stored string
	err = db.conn.QueryRowContext(ctx, `
		UPDATE profiles SET
			platform_username = ?,
			profile_url       = ?,
			identity          = ?,
			metrics           = ?,
			derived           = ?,
			raw_snapshot      = ?,
			last_updated      = ?
		WHERE handle = ? AND platform = ?
		RETURNING created_at`,
		prof.PlatformUsername, prof.ProfileURL,
		string(cols.Identity), string(cols.Metrics), string(cols.Derived), snapshot,
		formatTime(prof.LastUpdated), prof.Handle, string(prof.Platform),
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s/%s: %w", prof.Platform, prof.Handle, err)
	}

	if prof.CreatedAt, err = parseTime(stored); err != nil {
		return fmt.Errorf("sqlite: profile %s/%s created_at: %w", prof.Platform, prof.Handle, err)
	}
	return nil
}

// Delete implements store.Store.
func (db *DB) Delete(ctx context.Context, handle string, p profile.Platform) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM profiles WHERE handle = ? AND platform = ?`, handle, string(p))
	if err != nil {
		return fmt.Errorf("sqlite: deleting profile %s/%s: %w", p, handle, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting profile %s/%s: %w", p, handle, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*profile.Profile, error) {
	var (
		prof              profile.Profile
		platform          string
		identity, metrics string
		derived           string
		snapshot          sql.NullString
		created, updated  string
	)
	if err := s.Scan(&prof.Handle, &platform, &prof.PlatformUsername, &prof.ProfileURL,
		&identity, &metrics, &derived, &snapshot, &created, &updated); err != nil {
		return nil, err
	}
	prof.Platform = profile.Platform(platform)

	cols := &store.Columns{Identity: []byte(identity), Metrics: []byte(metrics), Derived: []byte(derived)}
	if snapshot.Valid {
		cols.Snapshot = []byte(snapshot.String)
	}
	if err := cols.Decode(&prof); err != nil {
		return nil, err
	}

	var err error
	if prof.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if prof.LastUpdated, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &prof, nil
}

// Times are stored as UTC RFC 3339 text so that they sort and compare lexically.
func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
