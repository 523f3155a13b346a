// Package indexer builds and maintains the local channel-first video index.
//
// The index is the inversion at the heart of the pipeline: instead of
// searching the upstream service once per opening, every trusted channel is
// enumerated once (cheap, bounded by pages) and openings are later matched
// against this local copy.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chesstrainer/video-indexer/internal/model"
	"github.com/chesstrainer/video-indexer/internal/quota"
	"github.com/chesstrainer/video-indexer/internal/rss"
	"github.com/chesstrainer/video-indexer/internal/youtube"
)

// DefaultHistoryYears bounds how far back the full enumeration reaches.
const DefaultHistoryYears = 15

// DefaultChannelConcurrency bounds parallel channel builds.
const DefaultChannelConcurrency = 4

// UploadsClient is the slice of the upstream client the indexer needs.
type UploadsClient interface {
	ListChannelUploads(ctx context.Context, channelID string, opts youtube.ListOptions) ([]model.Video, error)
	BatchFetchVideoDetails(ctx context.Context, videoIDs []string) ([]model.Video, error)
}

// FeedFetcher is the slice of the RSS poller the indexer needs.
type FeedFetcher interface {
	Fetch(ctx context.Context, channelID string) ([]rss.Entry, error)
}

// Index is the in-memory channel id → ordered video list mapping, together
// with the enriched map persisted alongside it in snapshots.
//
// Invariant: no duplicate video ids within a channel's list.
type Index struct {
	Channels map[string][]model.Video         `json:"channels"`
	Enriched map[string]model.EnrichedVideo   `json:"enriched,omitempty"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		Channels: make(map[string][]model.Video),
		Enriched: make(map[string]model.EnrichedVideo),
	}
}

// AllVideos flattens the index in stable channel-insertion-independent order:
// callers that need determinism sort or iterate per channel.
func (ix *Index) AllVideos() []model.Video {
	var videos []model.Video
	for _, list := range ix.Channels {
		videos = append(videos, list...)
	}
	return videos
}

// TotalVideos counts indexed videos across channels.
func (ix *Index) TotalVideos() int {
	n := 0
	for _, list := range ix.Channels {
		n += len(list)
	}
	return n
}

// ChannelError records a per-channel failure without aborting the build.
type ChannelError struct {
	ChannelID string `json:"channelId"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
}

func (e ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %s", e.ChannelID, e.Message)
}

// BuildResult summarizes a full index build.
type BuildResult struct {
	TotalVideos     int
	ChannelsCovered int
	Errors          []ChannelError
}

// RSSResult summarizes a delta poll.
type RSSResult struct {
	NewVideos int
	Errors    []ChannelError
}

// Indexer populates and updates an Index.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Indexer struct {
	client      UploadsClient
	feeds       FeedFetcher
	logger      *zap.Logger
	historyYears int
	concurrency int

	mu    sync.Mutex
	index *Index
}

// New creates an indexer over an empty index.
func New(client UploadsClient, feeds FeedFetcher, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		client:       client,
		feeds:        feeds,
		logger:       logger.Named("indexer"),
		historyYears: DefaultHistoryYears,
		concurrency:  DefaultChannelConcurrency,
		index:        NewIndex(),
	}
}

// SetHistoryYears overrides the enumeration cutoff window.
func (x *Indexer) SetHistoryYears(years int) {
	if years > 0 {
		x.historyYears = years
	}
}

// SetConcurrency overrides the bounded channel parallelism.
func (x *Indexer) SetConcurrency(n int) {
	if n > 0 {
		x.concurrency = n
	}
}

// Index returns the underlying index. The matcher reads it after the build;
// there are no concurrent writers at that point.
func (x *Indexer) Index() *Index {
	return x.index
}

// SetIndex replaces the index, used when resuming from a snapshot.
func (x *Indexer) SetIndex(ix *Index) {
	if ix.Channels == nil {
		ix.Channels = make(map[string][]model.Video)
	}
	if ix.Enriched == nil {
		ix.Enriched = make(map[string]model.EnrichedVideo)
	}
	x.index = ix
}

// BuildLocalIndex enumerates every trusted channel and stores the merged
// (partial + detail) video lists. Per-channel failures are accumulated, not
// fatal; the build only fails outright when no channel succeeded and the
// first failure carries a rate-limit signal.
func (x *Indexer) BuildLocalIndex(ctx context.Context, channels []model.TrustedChannel) (BuildResult, error) {
	cutoff := time.Now().AddDate(-x.historyYears, 0, 0)

	var (
		result BuildResult
		mu     sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)

	for _, ch := range channels {
		ch := ch
		g.Go(func() error {
			videos, err := x.buildChannel(gctx, ch.ChannelID, cutoff)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				x.logger.Warn("channel index build failed",
					zap.String("channel_id", ch.ChannelID),
					zap.Error(err))
				result.Errors = append(result.Errors, ChannelError{
					ChannelID: ch.ChannelID,
					Err:       err,
					Message:   err.Error(),
				})
				return nil
			}

			x.mu.Lock()
			x.index.Channels[ch.ChannelID] = videos
			x.mu.Unlock()

			result.ChannelsCovered++
			result.TotalVideos += len(videos)
			x.logger.Info("channel indexed",
				zap.String("channel_id", ch.ChannelID),
				zap.Int("videos", len(videos)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	if result.ChannelsCovered == 0 && len(result.Errors) > 0 && isRateLimitSignal(result.Errors[0].Err) {
		return result, fmt.Errorf("index build failed on all %d channels: %w", len(channels), quota.ErrQuotaExceeded)
	}

	return result, nil
}

func (x *Indexer) buildChannel(ctx context.Context, channelID string, cutoff time.Time) ([]model.Video, error) {
	partials, err := x.client.ListChannelUploads(ctx, channelID, youtube.ListOptions{
		MaxResults:     0, // all
		PublishedAfter: cutoff,
		OrderByDate:    true,
	})
	if err != nil {
		return nil, err
	}
	if len(partials) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(partials))
	for _, v := range partials {
		ids = append(ids, v.ID)
	}

	details, err := x.client.BatchFetchVideoDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	return mergeDetails(partials, details, channelID), nil
}

// mergeDetails left-joins detail records onto the partial listing,
// preserving partial fields as fallbacks and zero-filling statistics.
func mergeDetails(partials, details []model.Video, channelID string) []model.Video {
	byID := make(map[string]model.Video, len(details))
	for _, d := range details {
		byID[d.ID] = d
	}

	merged := make([]model.Video, 0, len(partials))
	seen := make(map[string]bool, len(partials))
	for _, p := range partials {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		d, ok := byID[p.ID]
		if !ok {
			p.ChannelID = channelID
			p.HasEnhancedMetadata = false
			merged = append(merged, p)
			continue
		}

		v := d
		v.HasEnhancedMetadata = true
		if v.Title == "" {
			v.Title = p.Title
		}
		if v.Description == "" {
			v.Description = p.Description
		}
		if v.PublishedAt.IsZero() {
			v.PublishedAt = p.PublishedAt
		}
		if v.ChannelTitle == "" {
			v.ChannelTitle = p.ChannelTitle
		}
		if len(v.Thumbnails) == 0 {
			v.Thumbnails = p.Thumbnails
		}
		v.ChannelID = channelID
		merged = append(merged, v)
	}
	return merged
}

// UpdateFromRSS merges feed entries into the index, appending only video ids
// not already indexed for the channel. Detail fetches for the new ids are
// deferred to the next indexing or enrichment phase. Zero quota cost.
func (x *Indexer) UpdateFromRSS(ctx context.Context, channels []model.TrustedChannel) RSSResult {
	var result RSSResult

	for _, ch := range channels {
		entries, err := x.feeds.Fetch(ctx, ch.ChannelID)
		if err != nil {
			x.logger.Warn("rss poll failed",
				zap.String("channel_id", ch.ChannelID),
				zap.Error(err))
			result.Errors = append(result.Errors, ChannelError{
				ChannelID: ch.ChannelID,
				Err:       err,
				Message:   err.Error(),
			})
			continue
		}

		x.mu.Lock()
		existing := make(map[string]bool)
		for _, v := range x.index.Channels[ch.ChannelID] {
			existing[v.ID] = true
		}
		for _, e := range entries {
			if existing[e.VideoID] {
				continue
			}
			existing[e.VideoID] = true
			x.index.Channels[ch.ChannelID] = append(x.index.Channels[ch.ChannelID], model.Video{
				ID:           e.VideoID,
				Title:        e.Title,
				PublishedAt:  e.PublishedAt,
				ChannelID:    ch.ChannelID,
				ChannelTitle: e.ChannelTitle,
			})
			result.NewVideos++
		}
		x.mu.Unlock()
	}

	return result
}

// isRateLimitSignal reports whether an error looks like quota or rate
// pressure, either structurally or by upstream message text.
func isRateLimitSignal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, quota.ErrQuotaExceeded) || errors.Is(err, youtube.ErrRateLimited) {
		return true
	}
	var upstream *youtube.UpstreamError
	if errors.As(err, &upstream) && upstream.Status == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota")
}
