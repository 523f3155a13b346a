// Command indexer runs the chess-opening video indexing pipeline.
//
// Usage:
//
//	indexer run [--eco A] [--force-rebuild] [--resume]
//	indexer channels search <query>
//
// Exit codes: 0 success, 1 general failure, 2 daily quota exhausted,
// 3 configuration error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chesstrainer/video-indexer/internal/config"
	"github.com/chesstrainer/video-indexer/internal/metrics"
	"github.com/chesstrainer/video-indexer/internal/pipeline"
	"github.com/chesstrainer/video-indexer/internal/quota"
	"github.com/chesstrainer/video-indexer/internal/server"
	"github.com/chesstrainer/video-indexer/internal/youtube"
	"github.com/chesstrainer/video-indexer/pkg/logger"
)

const (
	exitOK            = 0
	exitFailure       = 1
	exitQuotaExceeded = 2
	exitConfig        = 3

	shutdownTimeout = 10 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfig
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return exitFailure
	}
	defer logger.Sync() //nolint:errcheck // stdout sync errors are harmless at exit
	log := logger.Log

	command := "run"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "run":
		return runPipeline(cfg, log, args)
	case "channels":
		return runChannels(cfg, log, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		return exitFailure
	}
}

func runPipeline(cfg *config.Config, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	eco := fs.String("eco", "", "restrict the catalog to one ECO letter (A-E)")
	forceRebuild := fs.Bool("force-rebuild", false, "rebuild the local index even if a recent snapshot exists")
	resume := fs.Bool("resume", false, "reuse the matches checkpoint instead of re-matching")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	m := metrics.New()
	ledger := quota.NewLedger(cfg.YouTube.QuotaLimit)

	p, err := pipeline.New(pipeline.Options{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		Ledger:  ledger,
	})
	if err != nil {
		log.Error("pipeline init failed", zap.Error(err))
		if errors.Is(err, config.ErrInvalid) {
			return exitConfig
		}
		return exitFailure
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Port, m, p.Status, log)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn("ops server shutdown failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("pipeline starting",
		zap.String("eco", *eco),
		zap.Bool("force_rebuild", *forceRebuild),
		zap.Bool("resume", *resume),
		zap.Int("quota_limit", ledger.Limit()))

	sum, err := p.Run(ctx, pipeline.RunOptions{
		ECOLetter:    *eco,
		ForceRebuild: *forceRebuild,
		Resume:       *resume,
	})

	log.Info("run finished",
		zap.String("run_id", sum.RunID),
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("videos_added", sum.VideosAdded),
		zap.Int("quota_spent", sum.QuotaSpent),
		zap.Int("errors", len(sum.Errors)),
		zap.Duration("duration", sum.FinishedAt.Sub(sum.StartedAt)))

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, quota.ErrQuotaExceeded):
		log.Error("daily quota exhausted, state persisted", zap.Error(err))
		return exitQuotaExceeded
	case errors.Is(err, config.ErrInvalid):
		log.Error("configuration error", zap.Error(err))
		return exitConfig
	default:
		log.Error("run failed", zap.Error(err))
		return exitFailure
	}
}

// runChannels implements the "channels search <query>" tooling used to
// discover channel ids for the trusted-channel config. Each search costs
// 100 quota units.
func runChannels(cfg *config.Config, log *zap.Logger, args []string) int {
	if len(args) < 2 || args[0] != "search" {
		fmt.Fprintln(os.Stderr, "usage: indexer channels search <query>")
		return exitFailure
	}
	query := args[1]

	ledger := quota.NewLedger(cfg.YouTube.QuotaLimit)
	client, err := youtube.NewClient(ledger, youtube.Options{
		APIKey:            cfg.YouTube.APIKey,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		RequestTimeout:    cfg.YouTube.RequestTimeout,
		Logger:            log,
	})
	if err != nil {
		log.Error("client init failed", zap.Error(err))
		return exitConfig
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results, err := client.SearchChannels(ctx, query)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			log.Error("daily quota exhausted", zap.Error(err))
			return exitQuotaExceeded
		}
		log.Error("channel search failed", zap.Error(err))
		return exitFailure
	}

	for _, r := range results {
		fmt.Printf("%s\t%s\n", r.ChannelID, r.Title)
	}
	log.Info("channel search done",
		zap.Int("results", len(results)),
		zap.Int("quota_spent", ledger.Used()))
	return exitOK
}
