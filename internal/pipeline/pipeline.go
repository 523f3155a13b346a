// Package pipeline orchestrates a full indexing run: channel config, local
// index build or reuse, catalog filtering, matching, checkpointing,
// deduplicated enrichment and the per-opening file writes. Phases run
// sequentially; each consumes the previous phase's output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chesstrainer/video-indexer/internal/catalog"
	"github.com/chesstrainer/video-indexer/internal/config"
	"github.com/chesstrainer/video-indexer/internal/enricher"
	"github.com/chesstrainer/video-indexer/internal/indexer"
	"github.com/chesstrainer/video-indexer/internal/matcher"
	"github.com/chesstrainer/video-indexer/internal/metrics"
	"github.com/chesstrainer/video-indexer/internal/model"
	"github.com/chesstrainer/video-indexer/internal/prefilter"
	"github.com/chesstrainer/video-indexer/internal/quota"
	"github.com/chesstrainer/video-indexer/internal/rss"
	"github.com/chesstrainer/video-indexer/internal/server"
	"github.com/chesstrainer/video-indexer/internal/store"
	"github.com/chesstrainer/video-indexer/internal/youtube"
)

// matchProgressInterval paces the matching-phase progress log.
const matchProgressInterval = 2 * time.Second

// Options wire a pipeline. Client and Feeds are built from Config when nil;
// tests inject fakes.
type Options struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Ledger  *quota.Ledger
	Client  indexer.UploadsClient
	Feeds   indexer.FeedFetcher
}

// RunOptions are the per-run CLI switches.
type RunOptions struct {
	// ECOLetter restricts the catalog to one ECO letter (A–E); empty runs all.
	ECOLetter string
	// ForceRebuild bypasses a recent index snapshot.
	ForceRebuild bool
	// Resume reuses the matches checkpoint instead of re-matching.
	Resume bool
}

// Pipeline owns the shared state of one run sequence. Quota and rate state
// live on the pipeline, not in globals, so independent pipelines coexist and
// tests can reset them.
type Pipeline struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	ledger  *quota.Ledger
	client  indexer.UploadsClient
	feeds   indexer.FeedFetcher
	store   *store.Store

	mu     sync.Mutex
	status server.Status
}

// New validates the wiring and builds the real client when none is injected.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config is required", config.ErrInvalid)
	}
	cfg := opts.Config

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = quota.NewLedger(cfg.YouTube.QuotaLimit)
	}

	client := opts.Client
	if client == nil {
		c, err := youtube.NewClient(ledger, youtube.Options{
			APIKey:            cfg.YouTube.APIKey,
			RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
			RequestTimeout:    cfg.YouTube.RequestTimeout,
			Recorder:          m,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		client = c
	}

	feeds := opts.Feeds
	if feeds == nil {
		feeds = rss.NewFetcher(nil, "")
	}

	return &Pipeline{
		cfg:     cfg,
		logger:  logger.Named("pipeline"),
		metrics: m,
		ledger:  ledger,
		client:  client,
		feeds:   feeds,
		store:   store.New(cfg.Paths.VideosDir, cfg.Paths.ConsolidatedFile),
	}, nil
}

// Status reports the live snapshot for the ops server.
func (p *Pipeline) Status() server.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Pipeline) setPhase(phase string) {
	p.mu.Lock()
	p.status.Phase = phase
	p.status.QuotaUsed = p.ledger.Used()
	p.status.QuotaRemaining = p.ledger.Remaining()
	p.mu.Unlock()
	p.metrics.SetQuotaRemaining(p.ledger.Remaining())
	p.logger.Info("phase", zap.String("phase", phase), zap.Int("quota_used", p.ledger.Used()))
}

// Run executes the full sequence. On QuotaExceeded the run persists what it
// has and returns the error; the caller maps it to its exit code. A canceled
// context stops at the next batch boundary with the cache already flushed.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (model.Summary, error) {
	sum := model.Summary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Metrics:   map[string]int64{},
	}
	p.mu.Lock()
	p.status.RunID = sum.RunID
	p.mu.Unlock()

	err := p.run(ctx, opts, &sum)
	sum.FinishedAt = time.Now().UTC()
	sum.QuotaSpent = p.ledger.Used()
	if err != nil {
		sum.Errors = append(sum.Errors, err.Error())
	}

	if werr := store.WriteSummary(p.cfg.Paths.SummaryFile, sum); werr != nil {
		p.logger.Warn("summary write failed", zap.Error(werr))
	}
	return sum, err
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions, sum *model.Summary) error {
	p.setPhase("channels")
	channels, err := config.LoadChannels(p.cfg.Paths.ChannelsFile)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	tiers := make(map[string]model.QualityTier, len(channels))
	for _, ch := range channels {
		tiers[ch.ChannelID] = ch.Tier
	}

	p.setPhase("index")
	x := indexer.New(p.client, p.feeds, p.logger)
	x.SetHistoryYears(p.cfg.Indexer.HistoryYears)
	x.SetConcurrency(p.cfg.Indexer.ChannelConcurrency)

	if err := p.buildOrLoadIndex(ctx, x, channels, opts.ForceRebuild, sum); err != nil {
		return err
	}
	allVideos := x.Index().AllVideos()
	p.metrics.VideosIndexed.Add(float64(len(allVideos)))
	sum.Metrics["videos_indexed"] = int64(len(allVideos))
	p.mu.Lock()
	p.status.VideosIndexed = len(allVideos)
	p.mu.Unlock()

	p.setPhase("catalog")
	openings, err := catalog.Load(p.cfg.Paths.CatalogFile)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	openings = catalog.FilterByECOLetter(openings, opts.ECOLetter)
	openings, skipped := catalog.NeedingVideos(openings, p.store.HasVideos)
	sum.Skipped = skipped
	sum.Processed = len(openings)

	p.setPhase("prefilter")
	filtered := prefilter.New(channels).Apply(allVideos)
	p.logger.Info("pre-filter applied",
		zap.Int("input", filtered.TotalInput),
		zap.Int("candidates", len(filtered.Candidates)),
		zap.Float64("reduction_pct", filtered.ReductionPercentage))
	sum.Metrics["prefilter_rejected"] = int64(filtered.RejectedCount)

	p.setPhase("matching")
	matches, err := p.matchPhase(ctx, openings, filtered.Candidates, tiers, opts.Resume)
	if err != nil {
		return err
	}
	totalMatches := 0
	for _, g := range matches {
		totalMatches += len(g.Matches)
	}
	p.metrics.MatchesSelected.Add(float64(totalMatches))
	sum.Metrics["matches"] = int64(totalMatches)
	p.mu.Lock()
	p.status.Matches = totalMatches
	p.mu.Unlock()

	p.setPhase("checkpoint")
	p.writeCheckpoint(sum.RunID, openings, matches, totalMatches)

	p.setPhase("enrich")
	cache := enricher.OpenCache(p.cfg.Paths.CacheFile, p.cfg.Enricher.CacheTTL, p.logger)
	e := enricher.New(enricher.Options{
		BatchSize: p.cfg.Enricher.BatchSize,
		Tiers:     tiers,
		Logger:    p.logger,
		Recorder:  p.metrics,
		OnProgress: func(pr enricher.Progress) {
			p.logger.Info("enrichment progress",
				zap.Int("processed", pr.Processed),
				zap.Int("total", pr.Total),
				zap.String("current", pr.Current),
				zap.Bool("from_cache", pr.FromCache),
				zap.Float64("percentage", pr.Percentage))
		},
	})
	enriched, err := e.Enrich(ctx, enricher.GroupedInput(matches), cache)
	sum.Metrics["cached"] = int64(enriched.Cached)
	sum.Metrics["newly_enriched"] = int64(enriched.NewlyEnriched)
	if err != nil {
		return fmt.Errorf("enrichment interrupted: %w", err)
	}

	p.setPhase("write")
	for _, ov := range enricher.Remap(matches, enriched.Videos) {
		if len(ov.Videos) == 0 {
			continue
		}
		if err := p.store.WriteVideoFile(ov); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", ov.Opening.FEN, err))
			continue
		}
		sum.VideosAdded += len(ov.Videos)
	}

	p.setPhase("done")
	return nil
}

// buildOrLoadIndex reuses a recent snapshot unless a rebuild is forced. A
// reused snapshot is topped up from the free RSS feeds instead of the API.
func (p *Pipeline) buildOrLoadIndex(ctx context.Context, x *indexer.Indexer, channels []model.TrustedChannel, forceRebuild bool, sum *model.Summary) error {
	indexPath := p.cfg.Paths.IndexFile
	if !forceRebuild && indexer.IsIndexRecent(indexPath, indexer.SnapshotTTL) {
		if err := x.LoadIndex(indexPath); err == nil {
			p.logger.Info("reusing recent index snapshot", zap.String("path", indexPath))
			rssResult := x.UpdateFromRSS(ctx, channels)
			if rssResult.NewVideos > 0 {
				p.logger.Info("rss delta applied", zap.Int("new_videos", rssResult.NewVideos))
				if err := x.SaveIndex(indexPath); err != nil {
					p.logger.Warn("index snapshot write failed", zap.Error(err))
				}
			}
			for _, cerr := range rssResult.Errors {
				sum.Errors = append(sum.Errors, cerr.Error())
			}
			return nil
		}
		p.logger.Warn("index snapshot unreadable, rebuilding", zap.String("path", indexPath))
	}

	result, err := x.BuildLocalIndex(ctx, channels)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			// Persist whatever was indexed before giving up.
			if serr := x.SaveIndex(indexPath); serr != nil {
				p.logger.Warn("index snapshot write failed", zap.Error(serr))
			}
		}
		return err
	}
	for _, cerr := range result.Errors {
		sum.Errors = append(sum.Errors, cerr.Error())
	}
	p.logger.Info("local index built",
		zap.Int("videos", result.TotalVideos),
		zap.Int("channels_covered", result.ChannelsCovered),
		zap.Int("channel_errors", len(result.Errors)))

	if err := x.SaveIndex(indexPath); err != nil {
		p.logger.Warn("index snapshot write failed", zap.Error(err))
	}
	return nil
}

// matchPhase runs the matcher with a periodic progress log, or restores the
// checkpoint on --resume.
func (p *Pipeline) matchPhase(ctx context.Context, openings []model.Opening, videos []model.Video, tiers map[string]model.QualityTier, resume bool) ([]model.OpeningMatches, error) {
	if resume {
		cp, err := store.LoadCheckpoint(p.cfg.Paths.CheckpointFile)
		if err == nil && len(cp.Matches) > 0 {
			p.logger.Info("resuming from matches checkpoint",
				zap.String("run_id", cp.RunID),
				zap.Int("openings", cp.OpeningsCount))
			return cp.Matches, nil
		}
		p.logger.Warn("checkpoint unavailable, matching from scratch", zap.Error(err))
	}

	m := matcher.New(matcher.Options{
		MaxResults: p.cfg.Matcher.MaxResults,
		MinScore:   p.cfg.Matcher.MinScore,
		Tiers:      tiers,
		Logger:     p.logger,
	})

	var mu sync.Mutex
	processed, matchCount := 0, 0
	started := time.Now()

	ticker := time.NewTicker(matchProgressInterval)
	defer ticker.Stop()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				done, matched := processed, matchCount
				mu.Unlock()
				elapsed := time.Since(started).Seconds()
				rate := float64(done) / elapsed
				var eta time.Duration
				if rate > 0 {
					eta = time.Duration(float64(len(openings)-done)/rate) * time.Second
				}
				p.logger.Info("matching progress",
					zap.Int("processed", done),
					zap.Int("total", len(openings)),
					zap.Float64("per_second", rate),
					zap.Duration("eta", eta),
					zap.Int("matches", matched))
			case <-stop:
				return
			}
		}
	}()

	return m.MatchOpenings(ctx, openings, videos, func(done, total, matches int) {
		mu.Lock()
		processed, matchCount = done, matches
		mu.Unlock()
	})
}

// writeCheckpoint persists the matching result. Failures are logged and
// swallowed; the checkpoint only accelerates resumption.
func (p *Pipeline) writeCheckpoint(runID string, openings []model.Opening, matches []model.OpeningMatches, totalMatches int) {
	instances := 0
	for _, g := range matches {
		instances += len(g.Matches)
	}
	cp := model.Checkpoint{
		RunID:          runID,
		Timestamp:      time.Now().UTC(),
		Phase:          "matching",
		OpeningsCount:  len(openings),
		MatchesCount:   totalMatches,
		VideoInstances: instances,
		Metrics: map[string]int64{
			"quota_used": int64(p.ledger.Used()),
		},
		Matches: matches,
	}
	if err := store.WriteCheckpoint(p.cfg.Paths.CheckpointFile, cp); err != nil {
		p.logger.Warn("checkpoint write failed", zap.Error(err))
	}
}
