// Package github fetches GitHub profile data from the REST API.
package github

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/codeGROOVE-dev/codepulse/pkg/handle"
	"github.com/codeGROOVE-dev/codepulse/pkg/httpcache"
	"github.com/codeGROOVE-dev/codepulse/pkg/loose"
	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
)

const platform = profile.GitHub

const (
	apiBase      = "https://api.github.com"
	perPage      = 100
	maxRepoPages = 50
	topLanguages = 5
)

// nonProfiles are top-level github.com paths that are never user names.
var nonProfiles = []string{
	"features", "security", "enterprise", "team",
	"marketplace", "sponsors", "topics", "trending",
	"collections", "orgs", "solutions", "resources",
	"customer-stories", "partners", "accelerator",
	"trust-center", "why-github", "mcp", "fluidicon",
	"login", "join", "pricing", "about",
	"premium-support", "newsletter", "edu", "mobile",
	"readme", "explore", "new", "settings",
	"notifications", "issues", "pulls", "codespaces",
	"copilot", "actions", "projects", "packages",
	"discussions", "wiki", "stars", "watching",
	"search", "site", "apps", "users",
}

var resolver = handle.New("github.com", []string{""}, nonProfiles...)

func init() {
	profile.Register(platform, func(ctx context.Context, cfg *profile.FetcherConfig) (profile.Adapter, error) {
		var opts []Option
		if cfg != nil {
			if cfg.Logger != nil {
				opts = append(opts, WithLogger(cfg.Logger))
			}
			if cfg.GitHubToken != "" {
				opts = append(opts, WithToken(cfg.GitHubToken))
			}
			if c, ok := cfg.Cache.(httpcache.Cacher); ok && c != nil {
				opts = append(opts, WithHTTPCache(c))
			}
		}
		return New(ctx, opts...)
	})
}

// Client handles GitHub requests.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	token      string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache  httpcache.Cacher
	logger *slog.Logger
	token  string
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithToken sets the GitHub API token.
func WithToken(token string) Option {
	return func(c *config) { c.token = token }
}

// New creates a GitHub client.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	token := cfg.token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		logger.WarnContext(ctx, "GITHUB_TOKEN not set - GitHub API requests will be rate-limited to 60/hour")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cfg.cache,
		logger:     logger,
		token:      token,
	}, nil
}

// Platform returns the GitHub platform identifier.
func (*Client) Platform() profile.Platform { return platform }

// Scrape fetches the user record and every page of the user's public repositories.
// A failed page fails the whole scrape so that totals are never computed from a partial list.
func (c *Client) Scrape(ctx context.Context, identifier string) (*profile.RawResult, error) {
	username, err := resolver.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fetching github profile", "identifier", identifier, "username", username)

	user, err := c.get(ctx, apiBase+"/users/"+url.PathEscape(username))
	if err != nil {
		return nil, err
	}
	login := loose.String(user, "login")
	if login == "" {
		return nil, profile.Unparseable(platform, "user response has no login")
	}

	repos, err := c.repositories(ctx, login)
	if err != nil {
		return nil, err
	}

	data := map[string]any{"user": user, "repositories": repos}
	snapshot, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode github snapshot: %w", err)
	}

	return &profile.RawResult{
		Platform:   platform,
		Username:   login,
		ProfileURL: "https://github.com/" + login,
		Data:       data,
		Snapshot:   snapshot,
	}, nil
}

func (c *Client) repositories(ctx context.Context, login string) ([]any, error) {
	var all []any
	for page := 1; page <= maxRepoPages; page++ {
		u := fmt.Sprintf("%s/users/%s/repos?per_page=%d&page=%d&type=owner&sort=full_name",
			apiBase, url.PathEscape(login), perPage, page)
		tree, err := c.get(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("repositories page %d: %w", page, err)
		}
		items, ok := tree.([]any)
		if !ok {
			items = loose.List(tree, "items", "repositories")
			if items == nil {
				return nil, profile.Unparseable(platform, "repositories page %d is not a list", page)
			}
		}
		all = append(all, items...)
		if len(items) < perPage {
			c.logger.DebugContext(ctx, "fetched github repositories", "username", login, "pages", page, "count", len(all))
			return all, nil
		}
	}
	return nil, profile.Unparseable(platform, "more than %d pages of repositories", maxRepoPages)
}

func (c *Client) get(ctx context.Context, rawURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", httpcache.UserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

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

// Normalize maps a GitHub scrape result to a canonical profile.
func (*Client) Normalize(raw *profile.RawResult) (*profile.Profile, error) {
	if raw == nil || raw.Data == nil {
		return nil, profile.Unparseable(platform, "empty scrape result")
	}
	var root any = raw.Data

	user := loose.Map(root, "user")
	if user == nil {
		return nil, profile.Unparseable(platform, "missing user")
	}

	metrics := &profile.VCSMetrics{
		PublicRepos: loose.Int(user, "public_repos"),
		PublicGists: loose.Int(user, "public_gists"),
		Followers:   loose.Int(user, "followers", "followers.totalCount"),
		Following:   loose.Int(user, "following", "following.totalCount"),
	}

	repos := loose.List(root, "repositories")
	langCounts := make(map[string]int)
	var langOrder []string
	for _, repo := range repos {
		metrics.TotalStars += loose.Int(repo, "stargazers_count", "stargazers.totalCount", "watchers_count")
		metrics.TotalForks += loose.Int(repo, "forks_count", "forks")
		lang := loose.String(repo, "language", "primaryLanguage.name")
		if lang == "" {
			continue
		}
		if langCounts[lang] == 0 {
			langOrder = append(langOrder, lang)
		}
		langCounts[lang]++
	}

	details := make(map[string]string)
	for _, key := range []string{"bio", "company", "blog", "email", "twitter_username"} {
		if v := loose.String(user, key); v != "" {
			details[key] = v
		}
	}
	if len(details) == 0 {
		details = nil
	}

	username := raw.Username
	if username == "" {
		username = loose.String(user, "login")
	}

	return &profile.Profile{
		Platform:         platform,
		PlatformUsername: username,
		ProfileURL:       "https://github.com/" + username,
		Identity: profile.Identity{
			DisplayName: profile.StringPtr(loose.String(user, "name")),
			AvatarURL:   profile.StringPtr(loose.String(user, "avatar_url")),
			Location:    profile.StringPtr(loose.String(user, "location")),
			Details:     details,
		},
		Metrics: profile.Metrics{VCS: metrics},
		Derived: profile.Derived{
			TopLanguages: rankLanguages(langOrder, langCounts, topLanguages),
		},
		RawSnapshot: raw.Snapshot,
	}, nil
}

// rankLanguages returns the n most used languages. Ties keep first-seen order.
func rankLanguages(order []string, counts map[string]int, n int) []string {
	ranked := slices.Clone(order)
	slices.SortStableFunc(ranked, func(a, b string) int {
		return cmp.Compare(counts[b], counts[a])
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
