// Command codepulse keeps student coding profiles fresh.
//
// Usage:
//
//	codepulse serve                                   # HTTP API plus hourly refresh
//	codepulse -once                                   # one refresh cycle per platform, then exit
//	codepulse scrape leetcode https://leetcode.com/u/alice/
//	codepulse scrape github torvalds
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/codepulse/pkg/api"
	"github.com/codeGROOVE-dev/codepulse/pkg/config"
	"github.com/codeGROOVE-dev/codepulse/pkg/events"
	"github.com/codeGROOVE-dev/codepulse/pkg/httpcache"
	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/refresh"
	"github.com/codeGROOVE-dev/codepulse/pkg/store"
	"github.com/codeGROOVE-dev/codepulse/pkg/store/postgres"
	"github.com/codeGROOVE-dev/codepulse/pkg/store/rediscache"
	"github.com/codeGROOVE-dev/codepulse/pkg/store/sqlite"

	// Platform adapters register themselves.
	_ "github.com/codeGROOVE-dev/codepulse/pkg/github"
	_ "github.com/codeGROOVE-dev/codepulse/pkg/hackerrank"
	_ "github.com/codeGROOVE-dev/codepulse/pkg/leetcode"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	addr := flag.String("addr", "", "listen address (overrides CODEPULSE_ADDR)")
	once := flag.Bool("once", false, "run one refresh cycle per platform and exit")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *debug {
		cfg.LogLevel = slog.LevelDebug
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	httpcache.SetMinDelay(cfg.UpstreamMinDelay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger, *once)
	case "scrape":
		err = scrape(ctx, cfg, logger, flag.Args()[1:])
	default:
		usage()
		os.Exit(2) //nolint:gocritic // exitAfterDefer is acceptable in main
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: codepulse [options] [serve | scrape <platform> <url-or-username>]")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "\nSupported platforms:")
	for _, p := range profile.Platforms() {
		fmt.Fprintf(os.Stderr, "  - %s\n", p)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// fetcherConfig builds the shared adapter configuration. The returned cleanup closes the HTTP cache.
func fetcherConfig(cfg *config.Config, logger *slog.Logger) (*profile.FetcherConfig, func()) {
	fc := &profile.FetcherConfig{Logger: logger, GitHubToken: cfg.GitHubToken}
	if cfg.HTTPCacheTTL == 0 {
		return fc, func() {}
	}

	var (
		c   *httpcache.Cache
		err error
	)
	if cfg.CacheDir != "" {
		c, err = httpcache.NewWithPath(cfg.HTTPCacheTTL, cfg.CacheDir)
	} else {
		c, err = httpcache.New(cfg.HTTPCacheTTL)
	}
	if err != nil {
		logger.Warn("failed to initialize cache, continuing without cache", "error", err)
		return fc, func() {}
	}
	logger.Debug("HTTP cache initialized", "ttl", cfg.HTTPCacheTTL.String())
	fc.Cache = c
	return fc, func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close cache", "error", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store {
	case config.StoreMemory:
		st = store.NewMemory()
	case config.StorePostgres:
		st, err = postgres.New(ctx, cfg.DatabaseURL, logger)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		st, err = sqlite.New(cfg.SQLitePath)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisURL == "" {
		return st, nil
	}
	cached, err := rediscache.New(ctx, st, cfg.RedisURL, rediscache.WithTTL(cfg.RedisTTL), rediscache.WithLogger(logger))
	if err != nil {
		st.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return cached, nil
}

func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	return events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, once bool) error {
	fc, closeCache := fetcherConfig(cfg, logger)
	defer closeCache()

	adapters, err := profile.Adapters(ctx, fc)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	pub := newPublisher(cfg)
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("failed to close event publisher", "error", err)
		}
	}()

	svc := refresh.NewService(adapters, st, refresh.WithLogger(logger), refresh.WithPublisher(pub))
	sched := refresh.NewScheduler(svc,
		refresh.WithInterval(cfg.RefreshInterval),
		refresh.WithItemTimeout(cfg.RefreshItemTimeout),
		refresh.WithConcurrency(cfg.RefreshConcurrency),
		refresh.WithRunOnStart(cfg.RefreshOnStart),
		refresh.WithSchedulerLogger(logger),
	)

	if once {
		var reports []*refresh.CycleReport
		for _, p := range profile.Platforms() {
			report, err := sched.RunCycle(ctx, p)
			if err != nil {
				return fmt.Errorf("%s cycle: %w", p, err)
			}
			reports = append(reports, report)
		}
		return outputJSON(reports)
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(svc, sched, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RefreshItemTimeout + 30*time.Second, // connect and update scrape synchronously
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "store", cfg.Store)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server stopped gracefully")
	}
	return nil
}

func scrape(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) != 2 {
		return errors.New("scrape needs <platform> <url-or-username>")
	}
	p, err := profile.ParsePlatform(args[0])
	if err != nil {
		return fmt.Errorf("%w (supported: %s)", err, joinPlatforms())
	}

	fc, closeCache := fetcherConfig(cfg, logger)
	defer closeCache()

	a, err := profile.Lookup(p)(ctx, fc)
	if err != nil {
		return err
	}
	raw, err := a.Scrape(ctx, args[1])
	if err != nil {
		return fmt.Errorf("%w (%s)", err, profile.Kind(err))
	}
	prof, err := a.Normalize(raw)
	if err != nil {
		return err
	}
	prof.LastUpdated = time.Now().UTC()
	return outputJSON(prof)
}

func joinPlatforms() string {
	var names []string
	for _, p := range profile.Platforms() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
