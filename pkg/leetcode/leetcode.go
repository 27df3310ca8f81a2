// Package leetcode fetches LeetCode user profile data over GraphQL.
package leetcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/codepulse/pkg/handle"
	"github.com/codeGROOVE-dev/codepulse/pkg/httpcache"
	"github.com/codeGROOVE-dev/codepulse/pkg/loose"
	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/streak"
)

const platform = profile.LeetCode

const graphQLEndpoint = "https://leetcode.com/graphql"

var resolver = handle.New("leetcode.com", []string{"u", "profile", ""},
	"problems", "problemset", "contest", "discuss", "playground", "explore", "study-plan",
	"accounts", "subscribe", "submissions", "assessment", "store", "interview", "graphql")

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

// Client handles LeetCode requests.
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

// New creates a LeetCode client.
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

// Platform returns the LeetCode platform identifier.
func (*Client) Platform() profile.Platform { return platform }

const profileQuery = `query userProfile($username: String!) {
  matchedUser(username: $username) {
    username
    profile {
      realName
      userAvatar
      countryName
      ranking
      reputation
    }
    submitStatsGlobal {
      acSubmissionNum {
        difficulty
        count
      }
    }
    userCalendar {
      streak
      totalActiveDays
      submissionCalendar
    }
  }
}`

const contestQuery = `query userContestRanking($username: String!) {
  userContestRanking(username: $username) {
    attendedContestsCount
    rating
    globalRanking
  }
}`

//nolint:govet // fieldalignment: struct ordering for JSON readability
type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables"`
}

// Scrape resolves identifier and runs both GraphQL queries.
// The contest query is best-effort: users who never entered a contest get no contest data.
func (c *Client) Scrape(ctx context.Context, identifier string) (*profile.RawResult, error) {
	username, err := resolver.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fetching leetcode profile", "identifier", identifier, "username", username)

	profileData, err := c.query(ctx, profileQuery, "userProfile", username)
	if err != nil {
		return nil, err
	}
	if !loose.Has(profileData, "data.matchedUser") {
		return nil, missingUser(profileData, username)
	}

	contestData, err := c.query(ctx, contestQuery, "userContestRanking", username)
	if err != nil {
		c.logger.WarnContext(ctx, "leetcode contest ranking unavailable", "username", username, "error", err)
	}

	data := map[string]any{
		"profile": loose.Map(profileData, "data"),
		"contest": loose.Map(contestData, "data"),
	}
	snapshot, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode leetcode snapshot: %w", err)
	}

	if name := loose.String(profileData, "data.matchedUser.username"); name != "" {
		username = name
	}

	return &profile.RawResult{
		Platform:   platform,
		Username:   username,
		ProfileURL: "https://leetcode.com/u/" + username + "/",
		Data:       data,
		Snapshot:   snapshot,
	}, nil
}

// missingUser explains a response without a user. Only an explicit null matchedUser means
// the account does not exist; GraphQL errors without it are upstream failures.
func missingUser(resp any, username string) error {
	if loose.IsNull(resp, "data.matchedUser") {
		return fmt.Errorf("leetcode user %q: %w", username, profile.ErrProfileNotFound)
	}
	if errs := loose.List(resp, "errors"); len(errs) > 0 {
		msg := loose.String(errs, "0.message")
		if msg == "" {
			msg = "graphql error"
		}
		return &profile.UpstreamError{Platform: platform, URL: graphQLEndpoint, Body: msg}
	}
	return profile.Unparseable(platform, "response has no data.matchedUser")
}

func (c *Client) query(ctx context.Context, query, operation, username string) (any, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:         query,
		OperationName: operation,
		Variables:     map[string]any{"username": username},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphQLEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", "https://leetcode.com/"+username+"/")
	req.Header.Set("User-Agent", httpcache.UserAgent)

	resp, err := httpcache.FetchURLWithValidator(ctx, c.cache, c.httpClient, req, platform, c.logger, cacheable)
	if err != nil {
		return nil, err
	}

	tree, err := loose.Parse(resp)
	if err != nil {
		return nil, profile.Unparseable(platform, "%s: %v", operation, err)
	}
	return tree, nil
}

// cacheable rejects GraphQL responses that carry errors so they are refetched next time.
func cacheable(body []byte) bool {
	tree, err := loose.Parse(body)
	if err != nil {
		return false
	}
	return len(loose.List(tree, "errors")) == 0
}

// Normalize maps a LeetCode scrape result to a canonical profile.
func (*Client) Normalize(raw *profile.RawResult) (*profile.Profile, error) {
	if raw == nil || raw.Data == nil {
		return nil, profile.Unparseable(platform, "empty scrape result")
	}
	var root any = raw.Data

	user := loose.Map(root, "profile.matchedUser", "profile.MatchedUser")
	if user == nil {
		return nil, profile.Unparseable(platform, "missing matchedUser")
	}

	metrics := &profile.JudgeMetrics{
		Ranking:              loose.Int(user, "profile.ranking"),
		Reputation:           loose.Int(user, "profile.reputation"),
		TotalActiveDays:      loose.Int(user, "userCalendar.totalActiveDays"),
		ContestsAttended:     loose.Int(root, "contest.userContestRanking.attendedContestsCount"),
		ContestRating:        round2(loose.Float(root, "contest.userContestRanking.rating")),
		ContestGlobalRanking: loose.Int(root, "contest.userContestRanking.globalRanking"),
	}

	for _, entry := range loose.List(user, "submitStatsGlobal.acSubmissionNum", "submitStats.acSubmissionNum") {
		count := loose.Int(entry, "count")
		switch strings.ToLower(loose.String(entry, "difficulty")) {
		case "all":
			metrics.TotalSolved = count
		case "easy":
			metrics.EasySolved = count
		case "medium":
			metrics.MediumSolved = count
		case "hard":
			metrics.HardSolved = count
		}
	}
	if metrics.TotalSolved == 0 {
		metrics.TotalSolved = metrics.EasySolved + metrics.MediumSolved + metrics.HardSolved
	}

	calValue, _ := loose.Lookup(user, "userCalendar.submissionCalendar")
	cal, err := streak.ParseCalendar(calValue)
	if err != nil {
		return nil, profile.Unparseable(platform, "submission calendar: %v", err)
	}
	streaks := streak.Compute(cal, loose.Int(user, "userCalendar.streak"))

	return &profile.Profile{
		Platform:         platform,
		PlatformUsername: raw.Username,
		ProfileURL:       raw.ProfileURL,
		Identity: profile.Identity{
			DisplayName: profile.StringPtr(loose.String(user, "profile.realName")),
			AvatarURL:   profile.StringPtr(loose.String(user, "profile.userAvatar")),
			Location:    profile.StringPtr(loose.String(user, "profile.countryName")),
		},
		Metrics: profile.Metrics{Judge: metrics},
		Derived: profile.Derived{
			CurrentStreak: streaks.Current,
			LongestStreak: streaks.Longest,
		},
		RawSnapshot: raw.Snapshot,
	}, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
