// Package hackerrank fetches HackerRank user profile data from its REST endpoints.
package hackerrank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/codeGROOVE-dev/codepulse/pkg/handle"
	"github.com/codeGROOVE-dev/codepulse/pkg/httpcache"
	"github.com/codeGROOVE-dev/codepulse/pkg/loose"
	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
)

const platform = profile.HackerRank

const apiBase = "https://www.hackerrank.com/rest/hackers/"

// Score sources recorded in Derived.ScoreSource.
const (
	SourceScores = "scores"
	SourceBadges = "badges"
)

var resolver = handle.New("hackerrank.com", []string{"profile", ""},
	"dashboard", "domains", "challenges", "contests", "certificates", "certify", "leaderboard",
	"jobs", "work", "skills-verification", "interview", "login", "signup", "rest", "products")

// knownCategories fixes the spelling of categories that title-casing gets wrong.
var knownCategories = map[string]string{
	"sql":             "SQL",
	"c++":             "C++",
	"cpp":             "C++",
	"c#":              "C#",
	"problem solving": "Problem Solving",
	"problem_solving": "Problem Solving",
}

func init() {
	profile.Register(platform, func(ctx context.Context, cfg *profile.FetcherConfig) (profile.Adapter, error) {
		var opts []Option
		if cfg != nil {
			if cfg.Logger != nil {
				opts = append(opts, WithLogger(cfg.Logger))
			}
			if c, ok := cfg.Cache.(httpcache.Cacher); ok && c != nil {
				opts = append(opts, WithHTTPCache(c))
			}
		}
		return New(ctx, opts...)
	})
}

// Client handles HackerRank requests.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache  httpcache.Cacher
	logger *slog.Logger
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a HackerRank client.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cfg.cache,
		logger:     cfg.logger,
	}, nil
}

// Platform returns the HackerRank platform identifier.
func (*Client) Platform() profile.Platform { return platform }

// Scrape fetches the profile, then category scores and badges in parallel.
// Only the profile call must succeed; the other two fall back to empty lists.
func (c *Client) Scrape(ctx context.Context, identifier string) (*profile.RawResult, error) {
	username, err := resolver.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fetching hackerrank profile", "identifier", identifier, "username", username)

	base := apiBase + url.PathEscape(username)
	prof, err := c.get(ctx, base)
	if err != nil {
		return nil, err
	}
	model := loose.Map(prof, "model")
	switch {
	case model != nil:
	case loose.IsNull(prof, "model"):
		return nil, fmt.Errorf("hackerrank user %q: %w", username, profile.ErrProfileNotFound)
	case loose.Has(prof, "model"):
		return nil, profile.Unparseable(platform, "profile model is not an object")
	default:
		// Older responses return the user fields at the top level.
		model, _ = prof.(map[string]any)
	}
	if model == nil {
		return nil, profile.Unparseable(platform, "profile response is not an object")
	}

	var scores, badges []any
	var g errgroup.Group
	g.Go(func() error {
		scores = c.optionalList(ctx, base+"/scores_elo", "scores")
		return nil
	})
	g.Go(func() error {
		badges = c.optionalList(ctx, base+"/badges", "badges")
		return nil
	})
	g.Wait() //nolint:errcheck // goroutines never fail

	data := map[string]any{
		"profile": model,
		"scores":  scores,
		"badges":  badges,
	}
	snapshot, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode hackerrank snapshot: %w", err)
	}

	if name := loose.String(model, "username"); name != "" {
		username = name
	}

	return &profile.RawResult{
		Platform:   platform,
		Username:   username,
		ProfileURL: "https://www.hackerrank.com/" + username,
		Data:       data,
		Snapshot:   snapshot,
	}, nil
}

// optionalList fetches a list endpoint that may legitimately fail or be empty.
// The response is either a bare list or an object with a "models" list.
func (c *Client) optionalList(ctx context.Context, rawURL, what string) []any {
	tree, err := c.get(ctx, rawURL)
	if err != nil {
		c.logger.WarnContext(ctx, "hackerrank secondary call failed", "call", what, "url", rawURL, "error", err)
		return []any{}
	}
	if l, ok := tree.([]any); ok {
		return l
	}
	if l := loose.List(tree, "models"); l != nil {
		return l
	}
	return []any{}
}

func (c *Client) get(ctx context.Context, rawURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpcache.UserAgent)

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, platform, c.logger)
	if err != nil {
		return nil, err
	}
	tree, err := loose.Parse(body)
	if err != nil {
		return nil, profile.Unparseable(platform, "%s: %v", req.URL.Path, err)
	}
	return tree, nil
}

// Normalize maps a HackerRank scrape result to a canonical profile.
// When category scores add up to zero, badge points are used as scores instead.
func (*Client) Normalize(raw *profile.RawResult) (*profile.Profile, error) {
	if raw == nil || raw.Data == nil {
		return nil, profile.Unparseable(platform, "empty scrape result")
	}
	var root any = raw.Data

	model := loose.Map(root, "profile")
	if model == nil {
		return nil, profile.Unparseable(platform, "missing profile model")
	}
	badges := loose.List(root, "badges")

	metrics := &profile.RankMetrics{
		Level:       loose.Int(model, "level"),
		TotalBadges: len(badges),
		Scores:      make(map[string]float64),
		Stars:       make(map[string]int),
	}

	source := ""
	for _, item := range loose.List(root, "scores") {
		category := loose.String(item, "category", "name", "slug")
		if category == "" {
			category = "unknown"
		}
		score := loose.Float(item, "score", "practice.score", "contest.score")
		metrics.Scores[category] = score
		metrics.TotalScore += score
	}
	if metrics.TotalScore != 0 {
		source = SourceScores
	} else {
		for _, badge := range badges {
			category := categoryName(loose.String(badge, "badge_type", "badge_name", "name"))
			points := loose.Float(badge, "current_points", "points")
			if category == "" || points == 0 {
				continue
			}
			metrics.Scores[category] = points
			metrics.TotalScore += points
			source = SourceBadges
		}
	}

	for _, badge := range badges {
		if category := categoryName(loose.String(badge, "badge_type", "badge_name", "name")); category != "" {
			metrics.Stars[category] = loose.Int(badge, "stars")
		}
	}

	var details map[string]string
	if school := loose.String(model, "school"); school != "" {
		details = map[string]string{"school": school}
	}

	username := raw.Username
	if username == "" {
		username = loose.String(model, "username")
	}

	return &profile.Profile{
		Platform:         platform,
		PlatformUsername: username,
		ProfileURL:       "https://www.hackerrank.com/" + username,
		Identity: profile.Identity{
			DisplayName: profile.StringPtr(loose.String(model, "name", "personal_first_name")),
			AvatarURL:   profile.StringPtr(loose.String(model, "avatar")),
			Location:    profile.StringPtr(loose.String(model, "country")),
			Details:     details,
		},
		Metrics:     profile.Metrics{Rank: metrics},
		Derived:     profile.Derived{ScoreSource: source},
		RawSnapshot: raw.Snapshot,
	}, nil
}

// categoryName title-cases a badge type ("problem solving" -> "Problem Solving").
func categoryName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if known, ok := knownCategories[strings.ToLower(s)]; ok {
		return known
	}
	return cases.Title(language.English).String(s)
}
