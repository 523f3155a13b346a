// Package enricher turns raw indexed videos into enriched records with
// derived analysis fields. It never calls upstream: every input field was
// fetched during indexing, so enrichment is pure computation plus cache I/O.
package enricher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chesstrainer/video-indexer/internal/model"
	"github.com/chesstrainer/video-indexer/internal/prefilter"
)

const (
	// DefaultBatchSize is the number of videos enriched between cache flushes.
	DefaultBatchSize = 50
	// DefaultBatchDelay paces consecutive batches.
	DefaultBatchDelay = 100 * time.Millisecond

	enrichmentSource = "youtube-api"
)

// Progress is emitted after every batch.
type Progress struct {
	Processed  int
	Total      int
	Current    string
	FromCache  bool
	Percentage float64
}

// Recorder observes cache effectiveness. Implemented by the metrics package.
type Recorder interface {
	ObserveCacheLookup(hit bool)
}

// Input is the tagged sum of the two accepted shapes: a flat unique-video
// list or opening-grouped matches. Grouped input is deduplicated during
// normalization.
type Input struct {
	unique []model.Video
	groups []model.OpeningMatches
}

func UniqueInput(videos []model.Video) Input {
	return Input{unique: videos}
}

func GroupedInput(groups []model.OpeningMatches) Input {
	return Input{groups: groups}
}

func (in Input) normalize() []model.Video {
	if in.groups != nil {
		return Deduplicate(in.groups).Videos
	}
	return in.unique
}

// Deduped is the result of collapsing opening groups into unique videos.
type Deduped struct {
	// Videos holds each unique video once, in first-seen order.
	Videos []model.Video
	// Openings maps video id to the FENs of the openings that listed it.
	Openings map[string][]string
}

// Deduplicate collapses grouped matches to the unique-video domain.
func Deduplicate(groups []model.OpeningMatches) Deduped {
	d := Deduped{Openings: make(map[string][]string)}
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, m := range g.Matches {
			id := m.Video.ID
			if !seen[id] {
				seen[id] = true
				d.Videos = append(d.Videos, m.Video)
			}
			d.Openings[id] = append(d.Openings[id], g.Opening.FEN)
		}
	}
	return d
}

// Result summarizes one enrichment pass.
type Result struct {
	Videos        []model.EnrichedVideo
	Cached        int
	NewlyEnriched int
}

// Options configure an Enricher. Zero values fall back to defaults.
type Options struct {
	BatchSize  int
	BatchDelay time.Duration
	Tiers      map[string]model.QualityTier
	Logger     *zap.Logger
	Recorder   Recorder
	OnProgress func(Progress)

	// now is injectable for cache-TTL tests.
	now func() time.Time
}

// Enricher runs the batched enrichment loop against a cache.
type Enricher struct {
	batchSize  int
	batchDelay time.Duration
	tiers      map[string]model.QualityTier
	logger     *zap.Logger
	recorder   Recorder
	onProgress func(Progress)
	now        func() time.Time
}

func New(opts Options) *Enricher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = DefaultBatchDelay
	}
	if opts.Tiers == nil {
		opts.Tiers = map[string]model.QualityTier{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Enricher{
		batchSize:  opts.BatchSize,
		batchDelay: opts.BatchDelay,
		tiers:      opts.Tiers,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		onProgress: opts.OnProgress,
		now:        opts.now,
	}
}

// Enrich processes the input in fixed-size batches. The cache is flushed
// after every batch, so the batch boundary is the durability boundary: a
// cancellation takes effect between batches, never inside one. Flush
// failures are logged and swallowed; the cache reconstructs next run.
func (e *Enricher) Enrich(ctx context.Context, in Input, cache *Cache) (Result, error) {
	videos := in.normalize()
	result := Result{Videos: make([]model.EnrichedVideo, 0, len(videos))}

	for start := 0; start < len(videos); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := start + e.batchSize
		if end > len(videos) {
			end = len(videos)
		}

		batchFromCache := true
		for _, v := range videos[start:end] {
			ev, hit := cache.Lookup(v.ID, e.now())
			if e.recorder != nil {
				e.recorder.ObserveCacheLookup(hit)
			}
			if hit {
				ev.Metadata.Cached = true
				result.Cached++
			} else {
				ev = e.enrichOne(v)
				cache.Put(ev)
				result.NewlyEnriched++
				batchFromCache = false
			}
			result.Videos = append(result.Videos, ev)
		}

		if err := cache.Flush(); err != nil {
			e.logger.Warn("enrichment cache flush failed", zap.Error(err))
		}
		if e.onProgress != nil {
			e.onProgress(Progress{
				Processed:  end,
				Total:      len(videos),
				Current:    videos[end-1].ID,
				FromCache:  batchFromCache,
				Percentage: float64(end) / float64(len(videos)) * 100,
			})
		}

		if end < len(videos) {
			select {
			case <-time.After(e.batchDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
	return result, nil
}

// enrichOne derives the analysis fields for a single video.
func (e *Enricher) enrichOne(v model.Video) model.EnrichedVideo {
	duration := v.Duration
	if duration == "" {
		duration = v.ContentDetails.Duration
	}
	seconds, known := prefilter.ParseDurationSeconds(duration)
	engagement := deriveEngagement(v.Statistics)

	return model.EnrichedVideo{
		Video: v,
		URL:   v.WatchURL(),
		Analysis: model.Analysis{
			DifficultyLevel:   deriveDifficulty(v),
			ContentType:       deriveContentType(v),
			InstructorQuality: deriveInstructorQuality(e.tiers[v.ChannelID]),
			VideoQuality:      deriveVideoQuality(v, seconds, known),
			Engagement:        engagement,
			EducationalValue:  deriveEducationalValue(v, engagement),
		},
		Metadata: model.EnrichMetadata{
			IndexedAt: e.now().UTC(),
			Source:    enrichmentSource,
			Version:   cacheVersion,
		},
	}
}

// Remap reconstructs the per-opening shape from enriched unique videos. The
// per-opening copy carries the match score as its relevance.
func Remap(groups []model.OpeningMatches, enriched []model.EnrichedVideo) []model.OpeningVideos {
	byID := make(map[string]model.EnrichedVideo, len(enriched))
	for _, ev := range enriched {
		byID[ev.ID] = ev
	}

	out := make([]model.OpeningVideos, 0, len(groups))
	for _, g := range groups {
		ov := model.OpeningVideos{Opening: g.Opening}
		for _, m := range g.Matches {
			ev, ok := byID[m.Video.ID]
			if !ok {
				continue
			}
			ev.Analysis.RelevanceScore = m.Score
			ov.Videos = append(ov.Videos, ev)
		}
		out = append(out, ov)
	}
	return out
}
