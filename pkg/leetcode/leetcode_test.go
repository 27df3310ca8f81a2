package leetcode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
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

// 2024-03-01 .. 2024-03-02, then 2024-03-04 .. 2024-03-06.
const calendar = `{\"1709251200\": 2, \"1709337600\": 1, \"1709510400\": 4, \"1709596800\": 1, \"1709683200\": 3}`

const profileFixture = `{
  "data": {
    "matchedUser": {
      "username": "Alice_01",
      "profile": {
        "realName": "Alice Liddell",
        "userAvatar": "https://assets.leetcode.com/users/alice/avatar.png",
        "countryName": "",
        "ranking": 12345,
        "reputation": 42
      },
      "submitStatsGlobal": {
        "acSubmissionNum": [
          {"difficulty": "All", "count": 300},
          {"difficulty": "Easy", "count": 150},
          {"difficulty": "Medium", "count": 120},
          {"difficulty": "Hard", "count": 30}
        ]
      },
      "userCalendar": {
        "streak": 1,
        "totalActiveDays": 5,
        "submissionCalendar": "` + calendar + `"
      }
    }
  }
}`

const contestFixture = `{
  "data": {
    "userContestRanking": {
      "attendedContestsCount": 7,
      "rating": 1843.4567,
      "globalRanking": 20456
    }
  }
}`

type operationHandler map[string]func(w http.ResponseWriter)

func (h operationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req graphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fn, ok := h[req.OperationName]
	if !ok {
		http.Error(w, "unknown operation", http.StatusBadRequest)
		return
	}
	fn(w)
}

func respond(body string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body) //nolint:errcheck // test server
	}
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

func TestScrapeAndNormalize(t *testing.T) {
	client := newTestClient(t, operationHandler{
		"userProfile":        respond(profileFixture),
		"userContestRanking": respond(contestFixture),
	})

	raw, err := client.Scrape(context.Background(), "https://leetcode.com/u/Alice_01/")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if raw.Username != "Alice_01" {
		t.Errorf("Username = %q, want %q", raw.Username, "Alice_01")
	}
	if raw.ProfileURL != "https://leetcode.com/u/Alice_01/" {
		t.Errorf("ProfileURL = %q", raw.ProfileURL)
	}
	if !json.Valid(raw.Snapshot) {
		t.Errorf("Snapshot is not valid JSON: %s", raw.Snapshot)
	}

	p, err := client.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	want := &profile.JudgeMetrics{
		TotalSolved:          300,
		EasySolved:           150,
		MediumSolved:         120,
		HardSolved:           30,
		Ranking:              12345,
		Reputation:           42,
		TotalActiveDays:      5,
		ContestsAttended:     7,
		ContestRating:        1843.46,
		ContestGlobalRanking: 20456,
	}
	if diff := cmp.Diff(want, p.Metrics.Judge); diff != "" {
		t.Errorf("Metrics.Judge mismatch (-want +got):\n%s", diff)
	}
	if p.Metrics.VCS != nil || p.Metrics.Rank != nil {
		t.Error("only the judge metrics should be set")
	}

	if p.Derived.LongestStreak != 3 {
		t.Errorf("LongestStreak = %d, want 3", p.Derived.LongestStreak)
	}
	if p.Derived.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1 (from upstream)", p.Derived.CurrentStreak)
	}

	if p.Identity.DisplayName == nil || *p.Identity.DisplayName != "Alice Liddell" {
		t.Errorf("DisplayName = %v", p.Identity.DisplayName)
	}
	if p.Identity.Location != nil {
		t.Errorf("Location = %q, want nil for empty country", *p.Identity.Location)
	}
	if p.Platform != profile.LeetCode || p.PlatformUsername != "Alice_01" {
		t.Errorf("Platform/PlatformUsername = %q/%q", p.Platform, p.PlatformUsername)
	}
	if p.Handle != "" || !p.LastUpdated.IsZero() {
		t.Error("Normalize must leave Handle and LastUpdated to the caller")
	}
}

func TestScrapeIdempotent(t *testing.T) {
	client := newTestClient(t, operationHandler{
		"userProfile":        respond(profileFixture),
		"userContestRanking": respond(contestFixture),
	})
	ctx := context.Background()

	var got []*profile.Profile
	for range 2 {
		raw, err := client.Scrape(ctx, "alice_01")
		if err != nil {
			t.Fatalf("Scrape() error = %v", err)
		}
		p, err := client.Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		got = append(got, p)
	}

	a, err := json.Marshal(got[0].Metrics)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(got[1].Metrics)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("metrics differ between scrapes:\n%s\n%s", a, b)
	}
	if diff := cmp.Diff(got[0].Derived, got[1].Derived); diff != "" {
		t.Errorf("Derived mismatch (-first +second):\n%s", diff)
	}
}

func TestScrapeContestFailureDegrades(t *testing.T) {
	client := newTestClient(t, operationHandler{
		"userProfile": respond(profileFixture),
		"userContestRanking": func(w http.ResponseWriter) {
			http.Error(w, "upstream busy", http.StatusInternalServerError)
		},
	})

	raw, err := client.Scrape(context.Background(), "alice_01")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	p, err := client.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if p.Metrics.Judge.ContestsAttended != 0 || p.Metrics.Judge.ContestRating != 0 {
		t.Errorf("contest metrics = %+v, want zero", p.Metrics.Judge)
	}
	if p.Metrics.Judge.TotalSolved != 300 {
		t.Errorf("TotalSolved = %d, want 300", p.Metrics.Judge.TotalSolved)
	}
}

func TestScrapeNotFound(t *testing.T) {
	client := newTestClient(t, operationHandler{
		"userProfile": respond(`{"errors":[{"message":"That user does not exist."}],"data":{"matchedUser":null}}`),
	})

	_, err := client.Scrape(context.Background(), "https://leetcode.com/nobody")
	if !errors.Is(err, profile.ErrProfileNotFound) {
		t.Errorf("Scrape() error = %v, want ErrProfileNotFound", err)
	}
}

func TestScrapeErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		handler  http.Handler
		wantKind string
	}{
		{
			name:     "reserved path only",
			input:    "https://leetcode.com/profile/",
			handler:  operationHandler{},
			wantKind: profile.KindInvalidIdentifier,
		},
		{
			name:     "empty input",
			input:    "  ",
			handler:  operationHandler{},
			wantKind: profile.KindInvalidIdentifier,
		},
		{
			name:     "unexpected shape",
			input:    "alice",
			handler:  operationHandler{"userProfile": respond(`{"viewer": {}}`)},
			wantKind: profile.KindUnparseableResponse,
		},
		{
			name:     "graphql errors without data",
			input:    "alice",
			handler:  operationHandler{"userProfile": respond(`{"errors":[{"message":"too many requests"}]}`)},
			wantKind: profile.KindUpstreamError,
		},
		{
			name:     "graphql errors with null data",
			input:    "alice",
			handler:  operationHandler{"userProfile": respond(`{"errors":[{"message":"internal"}],"data":null}`)},
			wantKind: profile.KindUpstreamError,
		},
		{
			name:     "data without user",
			input:    "alice",
			handler:  operationHandler{"userProfile": respond(`{"data":{}}`)},
			wantKind: profile.KindUnparseableResponse,
		},
		{
			name:     "not json",
			input:    "alice",
			handler:  operationHandler{"userProfile": respond(`<html>blocked</html>`)},
			wantKind: profile.KindUnparseableResponse,
		},
		{
			name:  "upstream failure",
			input: "alice",
			handler: operationHandler{"userProfile": func(w http.ResponseWriter) {
				http.Error(w, "bad gateway", http.StatusBadGateway)
			}},
			wantKind: profile.KindUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.Scrape(context.Background(), tt.input)
			if got := profile.Kind(err); got != tt.wantKind {
				t.Errorf("Kind(%v) = %q, want %q", err, got, tt.wantKind)
			}
		})
	}
}

func TestNormalizeToleratesCasingAndMissingFields(t *testing.T) {
	raw := &profile.RawResult{
		Platform: profile.LeetCode,
		Username: "bob",
		Data: map[string]any{
			"profile": map[string]any{
				"MatchedUser": map[string]any{
					"Profile": map[string]any{"RealName": "Bob"},
					"submit_stats": map[string]any{
						"ac_submission_num": []any{
							map[string]any{"Difficulty": "EASY", "Count": float64(4)},
							map[string]any{"Difficulty": "HARD", "Count": "1"},
						},
					},
				},
			},
		},
	}

	p, err := (&Client{}).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := p.Metrics.Judge; got.EasySolved != 4 || got.HardSolved != 1 || got.TotalSolved != 5 {
		t.Errorf("Metrics.Judge = %+v", got)
	}
	if p.Identity.DisplayName == nil || *p.Identity.DisplayName != "Bob" {
		t.Errorf("DisplayName = %v", p.Identity.DisplayName)
	}
	if p.Identity.AvatarURL != nil {
		t.Errorf("AvatarURL = %q, want nil", *p.Identity.AvatarURL)
	}
	if p.Derived.LongestStreak != 0 {
		t.Errorf("LongestStreak = %d, want 0 for missing calendar", p.Derived.LongestStreak)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, err := (&Client{}).Normalize(&profile.RawResult{Data: map[string]any{}})
	if !errors.Is(err, profile.ErrUnparseableResponse) {
		t.Errorf("Normalize() error = %v, want ErrUnparseableResponse", err)
	}
}

func TestRegistered(t *testing.T) {
	if profile.Lookup(profile.LeetCode) == nil {
		t.Fatal("leetcode adapter is not registered")
	}
	a, err := profile.Lookup(profile.LeetCode)(context.Background(), &profile.FetcherConfig{})
	if err != nil {
		t.Fatalf("constructor error = %v", err)
	}
	if a.Platform() != profile.LeetCode {
		t.Errorf("Platform() = %q", a.Platform())
	}
}
