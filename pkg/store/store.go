// Package store defines persistence for canonical profiles.
package store

import (
	"context"
	"errors"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
)

// ErrNotFound is returned when no profile is stored for a (handle, platform) pair.
var ErrNotFound = errors.New("profile not stored")

// Store is a keyed record store for profiles. Every write touches a single record.
type Store interface {
	// Get returns the stored profile or ErrNotFound.
	Get(ctx context.Context, handle string, p profile.Platform) (*profile.Profile, error)

	// List returns every stored profile for a platform, ordered by handle.
	List(ctx context.Context, p profile.Platform) ([]*profile.Profile, error)

	// Upsert inserts or replaces the record for prof.Key(). An existing record keeps its
	// CreatedAt, which is written back into prof.
	Upsert(ctx context.Context, prof *profile.Profile) error

	// Update replaces an existing record and returns ErrNotFound if there is none.
	// It never creates a record. The stored CreatedAt is written back into prof.
	Update(ctx context.Context, prof *profile.Profile) error

	// Delete removes a record, returning ErrNotFound if there was none.
	Delete(ctx context.Context, handle string, p profile.Platform) error

	Close() error
}
