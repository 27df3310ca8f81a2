package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/codepulse/pkg/events"
	"github.com/codeGROOVE-dev/codepulse/pkg/metrics"
	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/store"
)

// ErrCycleInProgress is returned by RunCycle while a cycle for the same platform is running.
var ErrCycleInProgress = errors.New("refresh cycle already in progress")

// Defaults for NewScheduler.
const (
	DefaultInterval    = time.Hour
	DefaultItemTimeout = 2 * time.Minute
)

// Cycle triggers, as recorded in metrics.
const (
	TriggerTimer    = "timer"
	TriggerStart    = "start"
	TriggerOnDemand = "on_demand"
)

// CycleReport summarizes one pass over a platform's stored profiles.
// Skipped counts profiles disconnected while the cycle was running.
type CycleReport struct {
	Platform profile.Platform `json:"platform"`
	Total    int              `json:"total"`
	Updated  int              `json:"updated"`
	Failed   int              `json:"failed"`
	Skipped  int              `json:"skipped"`
	Duration time.Duration    `json:"duration_ns"`
}

// Scheduler re-scrapes every stored profile of each platform on a fixed interval.
// Cycles for one platform never overlap; different platforms run independently.
type Scheduler struct {
	svc         *Service
	cron        *cron.Cron
	logger      *slog.Logger
	locks       map[profile.Platform]*sync.Mutex
	starting    sync.WaitGroup
	interval    time.Duration
	itemTimeout time.Duration
	concurrency int
	runOnStart  bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the time between cycles.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithItemTimeout bounds each profile's scrape and persist.
func WithItemTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.itemTimeout = d
		}
	}
}

// WithConcurrency sets how many profiles of one platform refresh at once.
func WithConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRunOnStart makes Start run one cycle per platform right away.
func WithRunOnStart(on bool) SchedulerOption {
	return func(s *Scheduler) { s.runOnStart = on }
}

// WithSchedulerLogger sets a custom logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler creates a Scheduler for every platform svc has an adapter for.
func NewScheduler(svc *Service, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		svc:         svc,
		logger:      svc.logger,
		locks:       make(map[profile.Platform]*sync.Mutex, len(svc.adapters)),
		interval:    DefaultInterval,
		itemTimeout: DefaultItemTimeout,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	for p := range svc.adapters {
		s.locks[p] = &sync.Mutex{}
	}
	s.cron = cron.New(cron.WithLogger(cronLogger{s.logger}), cron.WithChain(cron.Recover(cronLogger{s.logger})))
	return s
}

// Start registers one timer per platform and starts them. Cycles run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := "@every " + s.interval.String()
	for _, p := range profile.Platforms() {
		if _, ok := s.locks[p]; !ok {
			continue
		}
		if _, err := s.cron.AddFunc(spec, func() { s.runQueued(ctx, p, TriggerTimer) }); err != nil {
			return fmt.Errorf("cron.AddFunc(%s): %w", p, err)
		}
	}
	s.cron.Start()
	s.logger.InfoContext(ctx, "refresh scheduler started", "interval", s.interval, "concurrency", s.concurrency)

	if s.runOnStart {
		for p := range s.locks {
			s.starting.Go(func() { s.runQueued(ctx, p, TriggerStart) })
		}
	}
	return nil
}

// Stop halts the timers and waits for running timer and start-up cycles to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.starting.Wait()
	s.logger.Info("refresh scheduler stopped")
}

// RunCycle runs one cycle for p now. It refuses with ErrCycleInProgress rather than wait.
func (s *Scheduler) RunCycle(ctx context.Context, p profile.Platform) (*CycleReport, error) {
	mu, ok := s.locks[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", profile.ErrUnknownPlatform, p)
	}
	if !mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer mu.Unlock()
	return s.cycle(ctx, p, TriggerOnDemand)
}

// runQueued waits for any in-flight cycle of p, then runs one.
func (s *Scheduler) runQueued(ctx context.Context, p profile.Platform, trigger string) {
	mu := s.locks[p]
	mu.Lock()
	defer mu.Unlock()
	if _, err := s.cycle(ctx, p, trigger); err != nil {
		s.logger.ErrorContext(ctx, "refresh cycle failed", "platform", p, "trigger", trigger, "error", err)
	}
}

// cycle re-scrapes every stored profile of p. Item failures are logged and counted;
// they never stop the cycle. Only a failure to list the profiles is returned.
func (s *Scheduler) cycle(ctx context.Context, p profile.Platform, trigger string) (*CycleReport, error) {
	start := time.Now()
	metrics.RefreshCycles.WithLabelValues(string(p), trigger).Inc()

	a, err := s.svc.Adapter(p)
	if err != nil {
		return nil, err
	}
	stored, err := s.svc.store.List(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list %s profiles: %w", p, err)
	}
	s.logger.InfoContext(ctx, "refresh cycle started", "platform", p, "trigger", trigger, "profiles", len(stored))

	var updated, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, rec := range stored {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
			defer cancel()

			_, err := s.svc.refresh(itemCtx, a, rec.Handle, identifierOf(rec), s.svc.store.Update)
			if errors.Is(err, store.ErrNotFound) {
				skipped.Add(1)
				metrics.RefreshItems.WithLabelValues(string(p), "skipped").Inc()
				s.logger.InfoContext(ctx, "profile disconnected during refresh, skipped", "platform", p, "handle", rec.Handle)
				return nil
			}
			if err != nil {
				failed.Add(1)
				kind := profile.Kind(err)
				metrics.RefreshItems.WithLabelValues(string(p), "failed").Inc()
				metrics.ScrapeErrors.WithLabelValues(string(p), kind).Inc()
				s.logger.WarnContext(ctx, "profile refresh failed",
					"platform", p, "handle", rec.Handle, "kind", kind, "error", err)
				return nil
			}
			updated.Add(1)
			metrics.RefreshItems.WithLabelValues(string(p), "updated").Inc()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // items never return errors

	report := &CycleReport{
		Platform: p,
		Total:    len(stored),
		Updated:  int(updated.Load()),
		Failed:   int(failed.Load()),
		Skipped:  int(skipped.Load()),
		Duration: time.Since(start),
	}
	metrics.RefreshDuration.WithLabelValues(string(p)).Observe(report.Duration.Seconds())
	s.logger.InfoContext(ctx, "refresh cycle finished", "platform", p, "trigger", trigger,
		"total", report.Total, "updated", report.Updated, "failed", report.Failed, "skipped", report.Skipped, "duration", report.Duration)

	ev := events.New(events.RefreshCompleted, "", p)
	ev.Total, ev.Updated, ev.Failed, ev.Skipped = report.Total, report.Updated, report.Failed, report.Skipped
	s.svc.publish(ctx, ev)
	return report, nil
}

// cronLogger routes robfig/cron's logging to slog.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
