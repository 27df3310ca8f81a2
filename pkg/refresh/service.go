// Package refresh runs the scrape, normalize and persist path, both on demand and on a timer.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/codepulse/pkg/events"
	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/store"
)

// Service connects, refreshes and disconnects profiles for student handles.
type Service struct {
	adapters  map[profile.Platform]profile.Adapter
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPublisher sets where change events go. The default drops them.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over one adapter per platform.
func NewService(adapters map[profile.Platform]profile.Adapter, st store.Store, opts ...Option) *Service {
	s := &Service{
		adapters:  adapters,
		store:     st,
		publisher: events.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Adapter returns the adapter for p, or an error wrapping profile.ErrUnknownPlatform.
func (s *Service) Adapter(p profile.Platform) (profile.Adapter, error) {
	a, ok := s.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", profile.ErrUnknownPlatform, p)
	}
	return a, nil
}

// Connect scrapes identifier and stores the result under (handle, p), replacing any earlier record.
func (s *Service) Connect(ctx context.Context, handle string, p profile.Platform, identifier string) (*profile.Profile, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: empty handle", profile.ErrInvalidIdentifier)
	}
	a, err := s.Adapter(p)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, a, handle, identifier, s.store.Upsert)
}

// Update re-scrapes a connected profile from its stored URL.
// It returns store.ErrNotFound if the handle is not connected on p, including when
// it is disconnected while the scrape is in flight.
func (s *Service) Update(ctx context.Context, handle string, p profile.Platform) (*profile.Profile, error) {
	a, err := s.Adapter(p)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.Get(ctx, handle, p)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, a, handle, identifierOf(existing), s.store.Update)
}

// Disconnect deletes the record for (handle, p).
func (s *Service) Disconnect(ctx context.Context, handle string, p profile.Platform) error {
	if _, err := s.Adapter(p); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, handle, p); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "profile disconnected", "platform", p, "handle", handle)
	s.publish(ctx, events.New(events.ProfileDeleted, handle, p))
	return nil
}

// Get returns the stored record for (handle, p).
func (s *Service) Get(ctx context.Context, handle string, p profile.Platform) (*profile.Profile, error) {
	if _, err := s.Adapter(p); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, handle, p)
}

// writeFunc persists a normalized profile: store.Store's Upsert for connects, Update for re-scrapes.
type writeFunc func(context.Context, *profile.Profile) error

// refresh is the one write path: scrape, normalize, stamp, write. A failure at any step
// leaves the stored record untouched.
func (s *Service) refresh(ctx context.Context, a profile.Adapter, handle, identifier string, write writeFunc) (*profile.Profile, error) {
	raw, err := a.Scrape(ctx, identifier)
	if err != nil {
		return nil, err
	}
	prof, err := a.Normalize(raw)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	prof.Handle = handle
	prof.Platform = a.Platform()
	prof.CreatedAt = now
	prof.LastUpdated = now

	if err := write(ctx, prof); err != nil {
		return nil, fmt.Errorf("store %s/%s: %w", prof.Platform, handle, err)
	}
	s.publish(ctx, events.New(events.ProfileUpdated, handle, prof.Platform))
	return prof, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "type", ev.Type, "platform", ev.Platform, "handle", ev.Handle, "error", err)
	}
}

// identifierOf picks what to hand the adapter when re-scraping a stored record.
func identifierOf(p *profile.Profile) string {
	if p.ProfileURL != "" {
		return p.ProfileURL
	}
	return p.PlatformUsername
}

