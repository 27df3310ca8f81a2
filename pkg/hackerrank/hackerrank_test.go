package hackerrank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/codepulse/pkg/httpcache"
	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
)

func TestMain(m *testing.M) {
	httpcache.SetMinDelay(0)
	os.Exit(m.Run())
}

type mockTransport struct {
	mockURL string
}

func (mt *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = mt.mockURL[7:] // Strip "http://"
	return http.DefaultTransport.RoundTrip(req)
}

const profileJSON = `{
  "model": {
    "username": "coder42",
    "name": "Grace Hopper",
    "country": "United States",
    "avatar": "https://hrcdn.net/avatar.png",
    "school": "Yale",
    "level": 6
  }
}`

const scoresJSON = `[
  {"name": "Algorithms", "practice": {"score": 1250.5}},
  {"category": "Python", "score": 300},
  {"name": "Data Structures", "contest": {"score": 49.5}}
]`

const badgesJSON = `{
  "models": [
    {"badge_type": "python", "current_points": 300, "stars": 5},
    {"badge_type": "problem solving", "current_points": 820, "stars": 4},
    {"badge_type": "sql", "current_points": 0, "stars": 1},
    {"badge_type": "", "current_points": 10, "stars": 2}
  ]
}`

// routes maps request paths to (status, body).
type routes map[string]struct {
	status int
	body   string
}

func (rt routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, ok := rt[r.URL.Path]
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(resp.status)
	fmt.Fprint(w, resp.body)
}

func ok(body string) struct {
	status int
	body   string
} {
	return struct {
		status int
		body   string
	}{http.StatusOK, body}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	client, err := New(context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	client.httpClient = &http.Client{Transport: &mockTransport{mockURL: server.URL}}
	return client
}

func scrapeAndNormalize(t *testing.T, client *Client, input string) *profile.Profile {
	t.Helper()
	raw, err := client.Scrape(context.Background(), input)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	p, err := client.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return p
}

func TestScrapeWithScores(t *testing.T) {
	client := newTestClient(t, routes{
		"/rest/hackers/coder42":            ok(profileJSON),
		"/rest/hackers/coder42/scores_elo": ok(scoresJSON),
		"/rest/hackers/coder42/badges":     ok(badgesJSON),
	})

	p := scrapeAndNormalize(t, client, "https://www.hackerrank.com/profile/coder42")

	want := &profile.RankMetrics{
		Level:       6,
		TotalScore:  1600,
		TotalBadges: 4,
		Scores:      map[string]float64{"Algorithms": 1250.5, "Python": 300, "Data Structures": 49.5},
		Stars:       map[string]int{"Python": 5, "Problem Solving": 4, "SQL": 1},
	}
	if diff := cmp.Diff(want, p.Metrics.Rank); diff != "" {
		t.Errorf("Metrics.Rank mismatch (-want +got):\n%s", diff)
	}
	if p.Derived.ScoreSource != SourceScores {
		t.Errorf("ScoreSource = %q, want %q", p.Derived.ScoreSource, SourceScores)
	}
	if p.ProfileURL != "https://www.hackerrank.com/coder42" {
		t.Errorf("ProfileURL = %q", p.ProfileURL)
	}
	if p.Identity.Location == nil || *p.Identity.Location != "United States" {
		t.Errorf("Location = %v", p.Identity.Location)
	}
	if diff := cmp.Diff(map[string]string{"school": "Yale"}, p.Identity.Details); diff != "" {
		t.Errorf("Details mismatch (-want +got):\n%s", diff)
	}
}

func TestBadgeFallback(t *testing.T) {
	client := newTestClient(t, routes{
		"/rest/hackers/coder42":            ok(profileJSON),
		"/rest/hackers/coder42/scores_elo": ok(`[]`),
		"/rest/hackers/coder42/badges":     ok(badgesJSON),
	})

	p := scrapeAndNormalize(t, client, "coder42")

	wantScores := map[string]float64{"Python": 300, "Problem Solving": 820}
	if diff := cmp.Diff(wantScores, p.Metrics.Rank.Scores); diff != "" {
		t.Errorf("Scores mismatch (-want +got):\n%s", diff)
	}
	if p.Metrics.Rank.TotalScore != 1120 {
		t.Errorf("TotalScore = %v, want 1120", p.Metrics.Rank.TotalScore)
	}
	if p.Derived.ScoreSource != SourceBadges {
		t.Errorf("ScoreSource = %q, want %q", p.Derived.ScoreSource, SourceBadges)
	}
}

func TestSecondaryCallsDegrade(t *testing.T) {
	client := newTestClient(t, routes{
		"/rest/hackers/coder42":            ok(profileJSON),
		"/rest/hackers/coder42/scores_elo": {http.StatusInternalServerError, "boom"},
		"/rest/hackers/coder42/badges":     ok(`not json`),
	})

	p := scrapeAndNormalize(t, client, "coder42")
	if p.Metrics.Rank.TotalScore != 0 || p.Metrics.Rank.TotalBadges != 0 {
		t.Errorf("Metrics.Rank = %+v, want empty scores and badges", p.Metrics.Rank)
	}
	if p.Metrics.Rank.Level != 6 {
		t.Errorf("Level = %d, want 6", p.Metrics.Rank.Level)
	}
	if p.Derived.ScoreSource != "" {
		t.Errorf("ScoreSource = %q, want empty", p.Derived.ScoreSource)
	}
}

func TestScrapeErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		routes   routes
		wantKind string
	}{
		{"not found", "ghost", routes{}, profile.KindProfileNotFound},
		{"reserved only", "https://www.hackerrank.com/profile", routes{}, profile.KindInvalidIdentifier},
		{
			"profile failure",
			"coder42",
			routes{"/rest/hackers/coder42": {http.StatusForbidden, "denied"}},
			profile.KindUpstreamError,
		},
		{
			"null model",
			"coder42",
			routes{"/rest/hackers/coder42": ok(`{"model": null}`)},
			profile.KindProfileNotFound,
		},
		{
			"model not an object",
			"coder42",
			routes{"/rest/hackers/coder42": ok(`{"model": "coder42"}`)},
			profile.KindUnparseableResponse,
		},
		{
			"profile not an object",
			"coder42",
			routes{"/rest/hackers/coder42": ok(`[1, 2]`)},
			profile.KindUnparseableResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.routes)
			_, err := client.Scrape(context.Background(), tt.input)
			if got := profile.Kind(err); got != tt.wantKind {
				t.Errorf("Kind(%v) = %q, want %q", err, got, tt.wantKind)
			}
		})
	}
}

func TestScrapeTopLevelProfile(t *testing.T) {
	client := newTestClient(t, routes{
		"/rest/hackers/coder42":            ok(`{"username": "coder42", "name": "Grace Hopper", "level": 3}`),
		"/rest/hackers/coder42/scores_elo": ok(`[]`),
		"/rest/hackers/coder42/badges":     ok(`{"models": []}`),
	})

	p := scrapeAndNormalize(t, client, "coder42")
	if p.Metrics.Rank.Level != 3 {
		t.Errorf("Level = %d, want 3", p.Metrics.Rank.Level)
	}
	if p.Identity.DisplayName == nil || *p.Identity.DisplayName != "Grace Hopper" {
		t.Errorf("DisplayName = %v", p.Identity.DisplayName)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	client := newTestClient(t, routes{
		"/rest/hackers/coder42":            ok(profileJSON),
		"/rest/hackers/coder42/scores_elo": ok(`[]`),
		"/rest/hackers/coder42/badges":     ok(badgesJSON),
	})

	raw, err := client.Scrape(context.Background(), "coder42")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	first, err := client.Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first.Derived, second.Derived); diff != "" {
		t.Errorf("Derived mismatch (-first +second):\n%s", diff)
	}
	a, _ := json.Marshal(first.Metrics)  //nolint:errcheck,errchkjson // plain maps
	b, _ := json.Marshal(second.Metrics) //nolint:errcheck,errchkjson // plain maps
	if string(a) != string(b) {
		t.Errorf("metrics differ:\n%s\n%s", a, b)
	}
}

func TestCategoryName(t *testing.T) {
	tests := map[string]string{
		"python":          "Python",
		"problem solving": "Problem Solving",
		"SQL":             "SQL",
		"cpp":             "C++",
		"  java ":         "Java",
		"":                "",
		"days of code":    "Days Of Code",
	}
	for in, want := range tests {
		if got := categoryName(in); got != want {
			t.Errorf("categoryName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeMissingProfile(t *testing.T) {
	_, err := (&Client{}).Normalize(&profile.RawResult{Data: map[string]any{"badges": []any{}}})
	if !errors.Is(err, profile.ErrUnparseableResponse) {
		t.Errorf("Normalize() error = %v, want ErrUnparseableResponse", err)
	}
}

func TestRegistered(t *testing.T) {
	ctor := profile.Lookup(profile.HackerRank)
	if ctor == nil {
		t.Fatal("hackerrank adapter is not registered")
	}
	a, err := ctor(context.Background(), &profile.FetcherConfig{})
	if err != nil {
		t.Fatalf("constructor error = %v", err)
	}
	if a.Platform() != profile.HackerRank {
		t.Errorf("Platform() = %q", a.Platform())
	}
}
