package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"coursecal/internal/config"
	"coursecal/internal/ics"
	appLog "coursecal/internal/log"
	"coursecal/internal/rules"
	"coursecal/internal/split"
	"coursecal/internal/token"
	"coursecal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	force      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides the config file if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("coursecal starting",
		"rules_dir", conf.RulesDir,
		"feeds_dir", conf.FeedsDir,
		"refresh", conf.RefreshCron,
		"expand_recurring", conf.ExpandRecurring,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if err := run(ctx, conf, flags.force); err != nil {
			appLog.Error("run failed", err)
			os.Exit(1)
		}
		return
	}

	// Watch mode: regenerate on the configured cron schedule. The first
	// run happens immediately.
	if err := run(ctx, conf, flags.force); err != nil {
		appLog.Error("run failed", err)
	}

	c := cron.New()
	_, err = c.AddFunc(conf.RefreshCron, func() {
		if err := run(ctx, conf, false); err != nil {
			appLog.Error("scheduled run failed", err)
		}
	})
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	if conf.Listen != "" {
		if err := web.Serve(ctx, conf.Listen, conf.FeedsDir); err != nil {
			appLog.Error("HTTP server failed", err)
			os.Exit(1)
		}
		return
	}

	<-ctx.Done()
	time.Sleep(100 * time.Millisecond)
	appLog.Info("coursecal exiting")
}

// run executes one fetch + classify + write cycle. force regenerates the
// feeds even when the upstream is unchanged.
func run(ctx context.Context, conf *config.Config, force bool) error {
	fetcher := ics.NewFetcher(conf.CacheDir)

	var (
		res ics.FetchResult
		err error
	)
	if conf.SourceURL != "" {
		res, err = fetcher.Fetch(ctx, conf.SourceURL)
	} else {
		res, err = fetcher.FetchLocal(conf.LocalFallback)
	}
	if err != nil {
		return fmt.Errorf("fetching upstream: %w", err)
	}
	if !res.Changed && !force {
		appLog.Info("upstream unchanged, skipping regeneration")
		return nil
	}

	feed, err := ics.ParseFeed(res.Body)
	if err != nil {
		return fmt.Errorf("parsing upstream: %w", err)
	}

	loaded, err := rules.LoadDir(conf.RulesDir)
	if err != nil {
		return err
	}

	events := feed.Events
	if conf.ExpandRecurring {
		now := time.Now()
		events = ics.Flatten(events, ics.FlattenConfig{
			RangeStart: now.AddDate(0, 0, -conf.HorizonDays),
			RangeEnd:   now.AddDate(0, 0, conf.HorizonDays),
		})
	}

	buckets, sum := split.Split(events, loaded.Rules, split.Options{CatchAll: conf.CatchAll})

	store, err := token.Open(conf.TokenDB)
	if err != nil {
		return err
	}
	defer store.Close()

	// Stable write order.
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Course < buckets[j].Course })

	written := 0
	for _, b := range buckets {
		tok, err := store.Ensure(b.Course)
		if err != nil {
			return err
		}

		cal := ics.NewCourseCalendar(feed.Calendar, b.Course)
		for _, c := range b.Events {
			ics.AppendEvent(cal, c.Parsed, c.Resolved.Summary, c.Resolved.Description)
		}

		path := filepath.Join(conf.FeedsDir, fmt.Sprintf("%s--%s.ics", b.Course, tok))
		if err := ics.WriteFeed(path, cal); err != nil {
			return fmt.Errorf("writing feed for %s: %w", b.Course, err)
		}
		written++
	}

	for _, w := range sum.Warnings {
		appLog.Warn("configuration smell", "detail", w)
	}
	for _, sk := range loaded.Skipped {
		appLog.Warn("rule file skipped this run", "file", sk.File, "reason", sk.Err)
	}
	appLog.Info("run complete",
		"events", sum.Total,
		"kept", sum.Kept,
		"dropped", sum.Dropped,
		"resolved", sum.Resolved,
		"ambiguous", sum.Ambiguous,
		"passed_through", sum.Passed,
		"caught_all", sum.CaughtAll,
		"feeds_written", written,
		"rule_files_skipped", len(loaded.Skipped),
	)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+split cycle and exit")
	flag.BoolVar(&cfg.force, "force", false, "Regenerate feeds even if upstream is unchanged")

	flag.Parse()

	return cfg
}
