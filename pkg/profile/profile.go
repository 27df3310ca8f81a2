// Package profile defines the canonical coding-activity profile shared by all platform adapters.
package profile

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Platform identifies an upstream coding platform.
type Platform string

// Supported platforms.
const (
	LeetCode   Platform = "leetcode"   // GraphQL judge
	GitHub     Platform = "github"     // REST version-control host
	HackerRank Platform = "hackerrank" // semi-documented JSON ranking site
)

func (p Platform) String() string { return string(p) }

// Profile is the canonical record stored per (Handle, Platform) pair.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Profile struct {
	// Key
	Handle   string   `json:"handle"`   // Student handle owning this record
	Platform Platform `json:"platform"` // Upstream platform

	// Echoed identity
	PlatformUsername string `json:"platform_username"`
	ProfileURL       string `json:"profile_url"`

	Identity Identity `json:"identity"`
	Metrics  Metrics  `json:"metrics"`
	Derived  Derived  `json:"derived"`

	// RawSnapshot is the upstream payload kept for audit. Nothing reads it back.
	RawSnapshot json.RawMessage `json:"raw_snapshot,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Identity holds optional, user-supplied upstream fields. Absent values stay nil.
type Identity struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Location    *string `json:"location"`

	// Details holds other optional text fields (bio, company, school, ...).
	Details map[string]string `json:"details,omitempty"`
}

// Metrics holds numeric counters copied from upstream. Exactly one sub-record is set,
// matching the profile's platform. Missing upstream numbers are stored as 0.
type Metrics struct {
	Judge *JudgeMetrics `json:"judge,omitempty"`
	VCS   *VCSMetrics   `json:"vcs,omitempty"`
	Rank  *RankMetrics  `json:"rank,omitempty"`
}

// JudgeMetrics are LeetCode counters.
type JudgeMetrics struct {
	TotalSolved          int     `json:"total_solved"`
	EasySolved           int     `json:"easy_solved"`
	MediumSolved         int     `json:"medium_solved"`
	HardSolved           int     `json:"hard_solved"`
	Ranking              int     `json:"ranking"`
	Reputation           int     `json:"reputation"`
	TotalActiveDays      int     `json:"total_active_days"`
	ContestsAttended     int     `json:"contests_attended"`
	ContestRating        float64 `json:"contest_rating"`
	ContestGlobalRanking int     `json:"contest_global_ranking"`
}

// VCSMetrics are GitHub counters. Stars and forks are summed over every public repository.
type VCSMetrics struct {
	PublicRepos int `json:"public_repos"`
	PublicGists int `json:"public_gists"`
	Followers   int `json:"followers"`
	Following   int `json:"following"`
	TotalStars  int `json:"total_stars"`
	TotalForks  int `json:"total_forks"`
}

// RankMetrics are HackerRank counters.
type RankMetrics struct {
	Level       int                `json:"level"`
	TotalScore  float64            `json:"total_score"`
	TotalBadges int                `json:"total_badges"`
	Scores      map[string]float64 `json:"scores"` // category -> score
	Stars       map[string]int     `json:"stars"`  // badge category -> stars
}

// Derived holds values computed during normalization. They are rebuilt on every refresh.
type Derived struct {
	CurrentStreak int      `json:"current_streak"`
	LongestStreak int      `json:"longest_streak"`
	TopLanguages  []string `json:"top_languages,omitempty"`
	ScoreSource   string   `json:"score_source,omitempty"` // "scores", "badges" or ""
}

// RawResult is an adapter's scrape output: a loosely-typed tree per upstream call,
// plus the opaque snapshot that ends up in Profile.RawSnapshot.
type RawResult struct {
	Platform   Platform
	Username   string         // Canonical handle on the platform
	ProfileURL string         // Canonical profile URL
	Data       map[string]any // Upstream call name -> parsed JSON tree
	Snapshot   json.RawMessage
}

// Key identifies a stored profile.
type Key struct {
	Handle   string
	Platform Platform
}

// Key returns the record key of p.
func (p *Profile) Key() Key { return Key{Handle: p.Handle, Platform: p.Platform} }

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Identity = Identity{
		DisplayName: clonePtr(p.Identity.DisplayName),
		AvatarURL:   clonePtr(p.Identity.AvatarURL),
		Location:    clonePtr(p.Identity.Location),
		Details:     maps.Clone(p.Identity.Details),
	}
	if m := p.Metrics.Judge; m != nil {
		j := *m
		c.Metrics.Judge = &j
	}
	if m := p.Metrics.VCS; m != nil {
		v := *m
		c.Metrics.VCS = &v
	}
	if m := p.Metrics.Rank; m != nil {
		r := *m
		r.Scores = maps.Clone(m.Scores)
		r.Stars = maps.Clone(m.Stars)
		c.Metrics.Rank = &r
	}
	c.Derived.TopLanguages = slices.Clone(p.Derived.TopLanguages)
	c.RawSnapshot = bytes.Clone(p.RawSnapshot)
	return &c
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
