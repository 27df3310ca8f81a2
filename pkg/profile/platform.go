// Adapter registration and interface definitions.

package profile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Adapter turns one upstream platform into canonical profiles.
// Each platform package registers a constructor via Register() in an init() function.
type Adapter interface {
	// Platform returns the platform identifier.
	Platform() Platform

	// Scrape resolves identifier (a bare handle or a profile URL) and fetches the upstream data.
	Scrape(ctx context.Context, identifier string) (*RawResult, error)

	// Normalize maps a scrape result to a canonical profile.
	// Handle, CreatedAt and LastUpdated are left for the caller to set.
	Normalize(raw *RawResult) (*Profile, error)
}

// FetcherConfig holds configuration for creating platform adapters.
type FetcherConfig struct {
	Cache       any // httpcache.Cacher - use any to avoid import cycles
	Logger      *slog.Logger
	GitHubToken string
}

// NewFunc creates an adapter from a shared configuration.
type NewFunc func(ctx context.Context, cfg *FetcherConfig) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Platform]NewFunc)
)

// Register adds a platform constructor to the global registry.
// This should be called from each platform package's init() function.
func Register(p Platform, fn NewFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[p]; exists {
		panic("platform already registered: " + string(p))
	}
	registry[p] = fn
}

// Platforms returns all registered platforms, sorted by name.
func Platforms() []Platform {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Platform, 0, len(registry))
	for p := range registry {
		result = append(result, p)
	}
	slices.Sort(result)
	return result
}

// Lookup returns the constructor for the given platform, or nil if not registered.
func Lookup(p Platform) NewFunc {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[p]
}

// ParsePlatform converts a user-supplied name to a registered Platform.
func ParsePlatform(name string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(name)))
	if Lookup(p) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return p, nil
}

// Adapters constructs one adapter per registered platform.
func Adapters(ctx context.Context, cfg *FetcherConfig) (map[Platform]Adapter, error) {
	adapters := make(map[Platform]Adapter)
	for _, p := range Platforms() {
		a, err := Lookup(p)(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s adapter: %w", p, err)
		}
		adapters[p] = a
	}
	return adapters, nil
}
