// Package storetest holds the behavior every store.Store implementation must share.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/store"
)

// Sample returns a fully populated judge profile for the given handle.
func Sample(handle string) *profile.Profile {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	return &profile.Profile{
		Handle:           handle,
		Platform:         profile.LeetCode,
		PlatformUsername: handle + "_lc",
		ProfileURL:       "https://leetcode.com/u/" + handle + "_lc/",
		Identity: profile.Identity{
			DisplayName: profile.StringPtr("Sample " + handle),
			Details:     map[string]string{"school": "MIT"},
		},
		Metrics: profile.Metrics{Judge: &profile.JudgeMetrics{
			TotalSolved:   10,
			EasySolved:    7,
			HardSolved:    3,
			ContestRating: 1500.25,
		}},
		Derived:     profile.Derived{CurrentStreak: 2, LongestStreak: 5, TopLanguages: []string{"Go"}},
		RawSnapshot: json.RawMessage(`{"profile":{"username":"x"}}`),
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	// Backends may re-encode the snapshot or drop monotonic clock readings.
	opts := cmp.Options{
		cmpopts.EquateApproxTime(time.Millisecond),
		cmp.Comparer(func(a, b json.RawMessage) bool {
			if len(a) == 0 || len(b) == 0 {
				return len(a) == len(b)
			}
			var x, y any
			if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
				return false
			}
			return cmp.Equal(x, y)
		}),
	}

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "nobody", profile.LeetCode)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := Sample("alice")
		if err := s.Upsert(ctx, want.Clone()); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		got, err := s.Get(ctx, "alice", profile.LeetCode)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if diff := cmp.Diff(want, got, opts); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("keyed by platform", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Upsert(ctx, Sample("alice")); err != nil {
			t.Fatal(err)
		}
		_, err := s.Get(ctx, "alice", profile.GitHub)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get(github) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("upsert keeps created at", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := Sample("alice")
		if err := s.Upsert(ctx, first); err != nil {
			t.Fatal(err)
		}

		second := Sample("alice")
		second.CreatedAt = first.CreatedAt.Add(time.Hour)
		second.LastUpdated = first.LastUpdated.Add(time.Hour)
		second.Metrics.Judge.TotalSolved = 11
		if err := s.Upsert(ctx, second); err != nil {
			t.Fatal(err)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("Upsert() set CreatedAt = %v, want stored %v", second.CreatedAt, first.CreatedAt)
		}

		got, err := s.Get(ctx, "alice", profile.LeetCode)
		if err != nil {
			t.Fatal(err)
		}
		if !got.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, first.CreatedAt)
		}
		if !got.LastUpdated.Equal(second.LastUpdated) {
			t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, second.LastUpdated)
		}
		if got.Metrics.Judge.TotalSolved != 11 {
			t.Errorf("TotalSolved = %d, want 11", got.Metrics.Judge.TotalSolved)
		}
	})

	t.Run("update never creates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Update(ctx, Sample("alice")); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Update() of missing record error = %v, want ErrNotFound", err)
		}
		if _, err := s.Get(ctx, "alice", profile.LeetCode); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get() after Update of missing record error = %v, want ErrNotFound", err)
		}

		first := Sample("alice")
		if err := s.Upsert(ctx, first); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "alice", profile.LeetCode); err != nil {
			t.Fatal(err)
		}
		if err := s.Update(ctx, Sample("alice")); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Update() after Delete error = %v, want ErrNotFound", err)
		}
		if _, err := s.Get(ctx, "alice", profile.LeetCode); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("deleted record came back: Get() error = %v", err)
		}
	})

	t.Run("update replaces existing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := Sample("alice")
		if err := s.Upsert(ctx, first); err != nil {
			t.Fatal(err)
		}

		second := Sample("alice")
		second.CreatedAt = first.CreatedAt.Add(time.Hour)
		second.LastUpdated = first.LastUpdated.Add(time.Hour)
		second.Metrics.Judge.TotalSolved = 42
		if err := s.Update(ctx, second); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("Update() set CreatedAt = %v, want stored %v", second.CreatedAt, first.CreatedAt)
		}

		got, err := s.Get(ctx, "alice", profile.LeetCode)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(second, got, opts); diff != "" {
			t.Errorf("Get() after Update mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("list by platform sorted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, h := range []string{"carol", "alice", "bob"} {
			if err := s.Upsert(ctx, Sample(h)); err != nil {
				t.Fatal(err)
			}
		}
		other := Sample("dave")
		other.Platform = profile.GitHub
		other.Metrics = profile.Metrics{VCS: &profile.VCSMetrics{Followers: 1}}
		if err := s.Upsert(ctx, other); err != nil {
			t.Fatal(err)
		}

		got, err := s.List(ctx, profile.LeetCode)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		var handles []string
		for _, p := range got {
			handles = append(handles, p.Handle)
		}
		if diff := cmp.Diff([]string{"alice", "bob", "carol"}, handles); diff != "" {
			t.Errorf("List() handles mismatch (-want +got):\n%s", diff)
		}

		empty, err := s.List(ctx, profile.HackerRank)
		if err != nil || len(empty) != 0 {
			t.Errorf("List(hackerrank) = %v, %v; want empty", empty, err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Upsert(ctx, Sample("alice")); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "alice", profile.LeetCode); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, "alice", profile.LeetCode); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, "alice", profile.LeetCode); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("returned records are copies", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Upsert(ctx, Sample("alice")); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "alice", profile.LeetCode)
		if err != nil {
			t.Fatal(err)
		}
		got.Metrics.Judge.TotalSolved = 999
		got.Identity.Details["school"] = "changed"

		again, err := s.Get(ctx, "alice", profile.LeetCode)
		if err != nil {
			t.Fatal(err)
		}
		if again.Metrics.Judge.TotalSolved != 10 || again.Identity.Details["school"] != "MIT" {
			t.Errorf("stored record was mutated through a returned copy: %+v", again)
		}
	})
}
