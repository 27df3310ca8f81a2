// Package postgres implements store.Store on PostgreSQL with JSONB columns.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/store"
)

var _ store.Store = (*DB)(nil)

const schema = `
	CREATE TABLE IF NOT EXISTS profiles (
		handle            TEXT NOT NULL,
		platform          TEXT NOT NULL,
		platform_username TEXT NOT NULL DEFAULT '',
		profile_url       TEXT NOT NULL DEFAULT '',
		identity          JSONB NOT NULL DEFAULT '{}',
		metrics           JSONB NOT NULL DEFAULT '{}',
		derived           JSONB NOT NULL DEFAULT '{}',
		raw_snapshot      JSONB,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_updated      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (handle, platform)
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_platform ON profiles (platform);`

// DB is a PostgreSQL-backed profile store.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to databaseURL, waits for the server to answer, and creates the schema.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool.New: %w", err)
	}

	err = retry.Do(
		func() error { return pool.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			logger.WarnContext(ctx, "postgres not ready", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: creating schema: %w", err)
	}
	return &DB{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

const selectColumns = `handle, platform, platform_username, profile_url,
	identity, metrics, derived, raw_snapshot, created_at, last_updated`

// Get implements store.Store.
func (db *DB) Get(ctx context.Context, handle string, p profile.Platform) (*profile.Profile, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM profiles WHERE handle = $1 AND platform = $2`,
		handle, string(p))
	prof, err := scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: getting profile %s/%s: %w", p, handle, err)
	}
	return prof, nil
}

// List implements store.Store.
func (db *DB) List(ctx context.Context, p profile.Platform) ([]*profile.Profile, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM profiles WHERE platform = $1 ORDER BY handle`, string(p))
	if err != nil {
		return nil, fmt.Errorf("postgres: listing %s profiles: %w", p, err)
	}
	defer rows.Close()

	var out []*profile.Profile
	for rows.Next() {
		prof, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning %s profile: %w", p, err)
		}
		out = append(out, prof)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: listing %s profiles: %w", p, err)
	}
	return out, nil
}

// Upsert implements store.Store. The stored created_at wins over prof.CreatedAt.
func (db *DB) Upsert(ctx context.Context, prof *profile.Profile) error {
	cols, err := store.Encode(prof)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	created := prof.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	var snapshot any
	if cols.Snapshot != nil {
		snapshot = string(cols.Snapshot)
	}

	err = db.pool.QueryRow(ctx, `
		INSERT INTO profiles (handle, platform, platform_username, profile_url,
			identity, metrics, derived, raw_snapshot, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8::jsonb, $9, $10)
		ON CONFLICT (handle, platform) DO UPDATE SET
			platform_username = EXCLUDED.platform_username,
			profile_url       = EXCLUDED.profile_url,
			identity          = EXCLUDED.identity,
			metrics           = EXCLUDED.metrics,
			derived           = EXCLUDED.derived,
			raw_snapshot      = EXCLUDED.raw_snapshot,
			last_updated      = EXCLUDED.last_updated
		RETURNING created_at`,
		prof.Handle, string(prof.Platform), prof.PlatformUsername, prof.ProfileURL,
		string(cols.Identity), string(cols.Metrics), string(cols.Derived), snapshot,
		created.UTC(), prof.LastUpdated.UTC(),
	).Scan(&prof.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting profile %s/%s: %w", prof.Platform, prof.Handle, err)
	}
	prof.CreatedAt = prof.CreatedAt.UTC()
	return nil
}

// Update implements store.Store.
func (db *DB) Update(ctx context.Context, prof *profile.Profile) error {
	cols, err := store.Encode(prof)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	var snapshot any
	if cols.Snapshot != nil {
		snapshot = string(cols.Snapshot)
	}

	err = db.pool.QueryRow(ctx, `
		UPDATE profiles SET
			platform_username = $3,
			profile_url       = $4,
			identity          = $5::jsonb,
			metrics           = $6::jsonb,
			derived           = $7::jsonb,
			raw_snapshot      = $8::jsonb,
			last_updated      = $9
		WHERE handle = $1 AND platform = $2
		RETURNING created_at`,
		prof.Handle, string(prof.Platform), prof.PlatformUsername, prof.ProfileURL,
		string(cols.Identity), string(cols.Metrics), string(cols.Derived), snapshot,
		prof.LastUpdated.UTC(),
	).Scan(&prof.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: updating profile %s/%s: %w", prof.Platform, prof.Handle, err)
	}
	prof.CreatedAt = prof.CreatedAt.UTC()
	return nil
}

// Delete implements store.Store.
func (db *DB) Delete(ctx context.Context, handle string, p profile.Platform) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM profiles WHERE handle = $1 AND platform = $2`, handle, string(p))
	if err != nil {
		return fmt.Errorf("postgres: deleting profile %s/%s: %w", p, handle, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scan(row pgx.Row) (*profile.Profile, error) {
	var (
		prof     profile.Profile
		platform string
		cols     store.Columns
	)
	if err := row.Scan(&prof.Handle, &platform, &prof.PlatformUsername, &prof.ProfileURL,
		&cols.Identity, &cols.Metrics, &cols.Derived, &cols.Snapshot,
		&prof.CreatedAt, &prof.LastUpdated); err != nil {
		return nil, err
	}
	prof.Platform = profile.Platform(platform)
	prof.CreatedAt = prof.CreatedAt.UTC()
	prof.LastUpdated = prof.LastUpdated.UTC()
	if err := cols.Decode(&prof); err != nil {
		return nil, err
	}
	return &prof, nil
}
