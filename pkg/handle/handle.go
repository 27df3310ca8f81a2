// Package handle extracts canonical usernames from free-form profile URLs and bare handles.
package handle

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
)

// Hint is the actionable message attached to every resolution failure.
const Hint = "could not extract username from URL; supply the full URL or a bare handle"

var validHandle = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Resolver extracts a handle for one platform host.
type Resolver struct {
	reserved map[string]bool
	patterns []*regexp.Regexp
	host     string
}

// New builds a Resolver for host. Prefixes are tried in order, e.g. "profile", "u", then "" for host/<user>.
// Reserved words are never accepted as a handle; "profile" and "u" are always reserved.
func New(host string, prefixes []string, reserved ...string) *Resolver {
	r := &Resolver{
		host:     strings.ToLower(host),
		reserved: map[string]bool{"profile": true, "u": true},
	}
	for _, w := range reserved {
		r.reserved[strings.ToLower(w)] = true
	}
	for _, p := range prefixes {
		path := regexp.QuoteMeta(r.host) + "/"
		if p = strings.Trim(p, "/"); p != "" {
			path += regexp.QuoteMeta(p) + "/"
		}
		r.patterns = append(r.patterns, regexp.MustCompile(`(?i)(?:^|[/.@])`+path+`([^/?#\s]+)`))
	}
	return r
}

// Resolve returns the canonical handle in input.
func (r *Resolver) Resolve(input string) (string, error) {
	s := strings.TrimPrefix(strings.TrimSpace(input), "@")
	if s == "" {
		return "", fmt.Errorf("%w: empty input", profile.ErrInvalidIdentifier)
	}

	for _, re := range r.patterns {
		m := re.FindStringSubmatch(s)
		if len(m) < 2 || r.reserved[strings.ToLower(m[1])] {
			continue
		}
		return r.validate(m[1], input)
	}

	// Bare handle: no path, and not the platform host itself. Dots are allowed ("john.doe").
	if !strings.ContainsAny(s, "/?#") && !r.isHost(s) {
		return r.validate(s, input)
	}

	return r.validate(r.lastSegment(s), input)
}

// isHost reports whether s names the platform host, with or without a scheme or subdomain.
func (r *Resolver) isHost(s string) bool {
	h := strings.ToLower(s)
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	return h == r.host || strings.HasSuffix(h, "."+r.host)
}

// lastSegment returns the final non-reserved path segment of a URL-shaped input.
func (r *Resolver) lastSegment(s string) string {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."); host != r.host {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if seg := segs[i]; seg != "" && !r.reserved[strings.ToLower(seg)] {
			return seg
		}
	}
	return ""
}

func (*Resolver) validate(h, input string) (string, error) {
	if !validHandle.MatchString(h) {
		return "", fmt.Errorf("%w: %q: %s", profile.ErrInvalidIdentifier, input, Hint)
	}
	return h, nil
}
