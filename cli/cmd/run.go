package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/duelbench/duelbench/adapter"
	"github.com/duelbench/duelbench/adapter/redis"
	"github.com/duelbench/duelbench/adapter/webhook"
	"github.com/duelbench/duelbench/cli/config"
	"github.com/duelbench/duelbench/cli/render"
	"github.com/duelbench/duelbench/iox"
	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/metrics"
	"github.com/duelbench/duelbench/orchestrate"
	"github.com/duelbench/duelbench/session"
	"github.com/duelbench/duelbench/store"
	"github.com/duelbench/duelbench/types"
)

// deliverTimeout bounds report delivery after the run itself is done.
const deliverTimeout = 30 * time.Second

// RunCommand returns the run command, the only command that executes work.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Validate a submission end to end",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to duelbench.yaml",
			},
			&cli.StringFlag{
				Name:  "submission",
				Usage: "Submission identifier under test",
			},
			&cli.StringFlag{
				Name:  "entry-url",
				Usage: "URL both client sessions load",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (generated when omitted)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Report output path, or - for stdout",
				Value: "-",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "Run browsers headless",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "browser-path",
				Usage: "Browser binary override",
			},
			&cli.DurationFlag{
				Name:  "monitor-timeout",
				Usage: "Hard ceiling on the match monitor",
			},
			&cli.StringFlag{
				Name:  "static-results",
				Usage: "Path to externally produced check results to merge",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress rendered summary output",
			},
			// Evidence flags
			&cli.StringFlag{
				Name:  "evidence-backend",
				Usage: "Evidence storage backend: fs or s3",
			},
			&cli.StringFlag{
				Name:  "evidence-dir",
				Usage: "Evidence directory (fs backend)",
			},
			&cli.StringFlag{
				Name:  "evidence-s3",
				Usage: "Evidence location for s3 backend (bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "AWS region for the s3 backend",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Custom S3 endpoint (S3-compatible providers)",
			},
			&cli.BoolFlag{
				Name:  "s3-path-style",
				Usage: "Force path-style S3 addressing",
			},
			&cli.BoolFlag{
				Name:  "animate",
				Usage: "Encode captured frames into a composite animation",
			},
			// Delivery flags
			&cli.StringFlag{
				Name:  "webhook-url",
				Usage: "POST the completion event to this URL",
			},
			&cli.StringFlag{
				Name:  "redis-url",
				Usage: "Publish the completion event to this Redis instance",
			},
			&cli.StringFlag{
				Name:  "redis-channel",
				Usage: "Redis pub/sub channel for the completion event",
			},
		}, OutputFlags()...),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), orchestrate.ExitHarnessError)
		}
		if err := loaded.Validate(); err != nil {
			return cli.Exit(fmt.Sprintf("invalid config: %v", err), orchestrate.ExitHarnessError)
		}
		cfg = loaded
	}

	// Flags override config values.
	submission := firstNonEmpty(c.String("submission"), cfg.Submission)
	if submission == "" {
		return cli.Exit("a submission is required (--submission or config)", orchestrate.ExitHarnessError)
	}
	entryURL := firstNonEmpty(c.String("entry-url"), cfg.EntryURL)
	if entryURL == "" {
		return cli.Exit("an entry URL is required (--entry-url or config)", orchestrate.ExitHarnessError)
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}
	meta := types.RunMeta{RunID: runID, Submission: submission}
	if err := meta.Validate(); err != nil {
		return cli.Exit(err.Error(), orchestrate.ExitHarnessError)
	}

	logger := log.NewLogger(&meta)
	collector := metrics.NewCollector(runID, submission)

	// Signal-aware run context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Warn("shutdown signal received", nil)
		cancel()
	}()

	sink, evidencePath, err := buildSink(ctx, c, cfg, runID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("evidence sink: %v", err), orchestrate.ExitHarnessError)
	}

	headless := c.Bool("headless")
	if !c.IsSet("headless") && cfg.Headless != nil {
		headless = *cfg.Headless
	}
	browserPath := firstNonEmpty(c.String("browser-path"), cfg.BrowserPath)

	timeouts := cfg.Timeouts.Timeouts()
	if d := c.Duration("monitor-timeout"); d > 0 {
		timeouts.Monitor = d
	}

	var codes types.StateCodes
	if cfg.StateCodes != nil {
		codes = *cfg.StateCodes
	}

	orch := orchestrate.New(orchestrate.Config{
		Meta:              meta,
		EntryURL:          entryURL,
		Services:          cfg.Services,
		Timeouts:          timeouts,
		Codes:             codes,
		BenignPatterns:    cfg.BenignPatterns,
		StaticResultsPath: firstNonEmpty(c.String("static-results"), cfg.StaticResults),
		NewSession: func(id string) (orchestrate.Session, error) {
			return session.New(session.Config{
				ID:          id,
				Headless:    headless,
				BrowserPath: browserPath,
			}, logger, collector), nil
		},
		Sink:      sink,
		Animate:   c.Bool("animate") || cfg.Evidence.Animate,
		Logger:    logger,
		Collector: collector,
	})

	report := orch.Execute(ctx)

	if err := orchestrate.WriteReport(report, c.String("report")); err != nil {
		return cli.Exit(fmt.Sprintf("write report: %v", err), orchestrate.ExitHarnessError)
	}

	if !c.Bool("quiet") && c.String("report") != "-" {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), orchestrate.ExitHarnessError)
		}
		if err := r.Render(report); err != nil {
			logger.Warn("summary render failed", map[string]any{"error": err.Error()})
		}
	}

	deliverReport(c, cfg, logger, report, evidencePath)

	return cli.Exit("", report.ExitCode())
}

// buildSink selects the evidence sink from flags and config. The fs
// backend is the default, rooted under a per-run directory.
func buildSink(ctx context.Context, c *cli.Context, cfg *config.Config, runID string) (store.Sink, string, error) {
	backend := firstNonEmpty(c.String("evidence-backend"), cfg.Evidence.Backend, "fs")

	switch backend {
	case "fs":
		dir := firstNonEmpty(c.String("evidence-dir"), cfg.Evidence.Dir)
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "duelbench")
		}
		dir = filepath.Join(dir, runID)
		sink, err := store.NewFSSink(dir)
		if err != nil {
			return nil, "", err
		}
		return sink, dir, nil

	case "s3":
		s3cfg := store.S3Config{
			Bucket:       cfg.Evidence.Bucket,
			Prefix:       cfg.Evidence.Prefix,
			Region:       firstNonEmpty(c.String("s3-region"), cfg.Evidence.Region),
			Endpoint:     firstNonEmpty(c.String("s3-endpoint"), cfg.Evidence.Endpoint),
			UsePathStyle: c.Bool("s3-path-style") || cfg.Evidence.S3PathStyle,
		}
		if loc := c.String("evidence-s3"); loc != "" {
			s3cfg.Bucket, s3cfg.Prefix = store.ParseS3Path(loc)
		}
		s3cfg.Prefix = joinPrefix(s3cfg.Prefix, runID)
		sink, err := store.NewS3Sink(ctx, s3cfg)
		if err != nil {
			return nil, "", err
		}
		return sink, fmt.Sprintf("s3://%s/%s", s3cfg.Bucket, s3cfg.Prefix), nil

	default:
		return nil, "", fmt.Errorf("unknown backend %q (must be fs or s3)", backend)
	}
}

func joinPrefix(prefix, runID string) string {
	if prefix == "" {
		return runID
	}
	return prefix + "/" + runID
}

// deliverReport publishes the completion event to every configured
// downstream. Delivery failures are logged, never fatal: the report on
// disk is the source of truth.
func deliverReport(c *cli.Context, cfg *config.Config, logger *log.Logger, report *orchestrate.Report, evidencePath string) {
	adapters := buildAdapters(c, cfg, logger)
	if len(adapters) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	event := adapter.NewRunCompletedEvent(report, evidencePath)
	for _, a := range adapters {
		if err := a.Publish(ctx, event); err != nil {
			logger.Warn("report delivery failed", map[string]any{"error": err.Error()})
		}
		iox.DiscardClose(a)
	}
}

func buildAdapters(c *cli.Context, cfg *config.Config, logger *log.Logger) []adapter.Adapter {
	var adapters []adapter.Adapter

	if url := firstNonEmpty(c.String("webhook-url"), cfg.Delivery.Webhook.URL); url != "" {
		whCfg := webhook.Config{
			URL:     url,
			Headers: cfg.Delivery.Webhook.Headers,
			Timeout: cfg.Delivery.Webhook.Timeout.Duration,
		}
		if cfg.Delivery.Webhook.Retries != nil {
			whCfg.Retries = *cfg.Delivery.Webhook.Retries
		} else {
			whCfg.Retries = webhook.DefaultRetries
		}
		if a, err := webhook.New(whCfg); err != nil {
			logger.Warn("webhook adapter not configured", map[string]any{"error": err.Error()})
		} else {
			adapters = append(adapters, a)
		}
	}

	if url := firstNonEmpty(c.String("redis-url"), redisURL(cfg)); url != "" {
		if a, err := redis.New(redis.Config{
			URL:     url,
			Channel: firstNonEmpty(c.String("redis-channel"), cfg.Delivery.Redis.Channel),
		}); err != nil {
			logger.Warn("redis adapter not configured", map[string]any{"error": err.Error()})
		} else {
			adapters = append(adapters, a)
		}
	}

	return adapters
}

// redisURL derives a connection URL from the structured config form.
func redisURL(cfg *config.Config) string {
	rc := cfg.Delivery.Redis
	if rc.Addr == "" {
		return ""
	}
	if rc.Password != "" {
		return fmt.Sprintf("redis://:%s@%s/%d", rc.Password, rc.Addr, rc.DB)
	}
	return fmt.Sprintf("redis://%s/%d", rc.Addr, rc.DB)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
