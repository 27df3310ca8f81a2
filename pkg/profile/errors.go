package profile

import (
	"errors"
	"fmt"
)

// Scrape errors returned by adapters.
var (
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUnparseableResponse = errors.New("unparseable response")
	ErrUnknownPlatform     = errors.New("unknown platform")
)

// UpstreamError is a non-success upstream HTTP status.
type UpstreamError struct {
	Platform   Platform
	URL        string
	Body       string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s upstream request to %s failed: %s", e.Platform, e.URL, e.Body)
	}
	return fmt.Sprintf("%s upstream returned HTTP %d for %s", e.Platform, e.StatusCode, e.URL)
}

// Error kinds reported by Kind.
const (
	KindInvalidIdentifier   = "invalid_identifier"
	KindProfileNotFound     = "profile_not_found"
	KindUpstreamTimeout     = "upstream_timeout"
	KindUpstreamError       = "upstream_error"
	KindUnparseableResponse = "unparseable_response"
	KindUnknownPlatform     = "unknown_platform"
	KindInternal            = "internal"
)

// Kind classifies err into one of the Kind* constants. A nil error has no kind.
func Kind(err error) string {
	var upErr *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidIdentifier):
		return KindInvalidIdentifier
	case errors.Is(err, ErrProfileNotFound):
		return KindProfileNotFound
	case errors.Is(err, ErrUpstreamTimeout):
		return KindUpstreamTimeout
	case errors.As(err, &upErr):
		return KindUpstreamError
	case errors.Is(err, ErrUnparseableResponse):
		return KindUnparseableResponse
	case errors.Is(err, ErrUnknownPlatform):
		return KindUnknownPlatform
	default:
		return KindInternal
	}
}

// Unparseable wraps ErrUnparseableResponse with a description of what was missing.
func Unparseable(p Platform, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", p, ErrUnparseableResponse, fmt.Sprintf(format, args...))
}
