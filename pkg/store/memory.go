package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Records are copied on the way in and out.
type Memory struct {
	records map[profile.Key]*profile.Profile
	mu      sync.RWMutex
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[profile.Key]*profile.Profile)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, handle string, p profile.Platform) (*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[profile.Key{Handle: handle, Platform: p}]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, p profile.Platform) ([]*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*profile.Profile
	for k, rec := range m.records {
		if k.Platform == p {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *profile.Profile) int { return strings.Compare(a.Handle, b.Handle) })
	return out, nil
}

// Upsert implements Store.
func (m *Memory) Upsert(_ context.Context, prof *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[prof.Key()]; ok {
		prof.CreatedAt = existing.CreatedAt
	} else if prof.CreatedAt.IsZero() {
		prof.CreatedAt = time.Now().UTC()
	}
	m.records[prof.Key()] = prof.Clone()
	return nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, prof *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[prof.Key()]
	if !ok {
		return ErrNotFound
	}
	prof.CreatedAt = existing.CreatedAt
	m.records[prof.Key()] = prof.Clone()
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, handle string, p profile.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := profile.Key{Handle: handle, Platform: p}
	if _, ok := m.records[k]; !ok {
		return ErrNotFound
	}
	delete(m.records, k)
	return nil
}

// Close implements Store.
func (*Memory) Close() error { return nil }
