package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chesstrainer/video-indexer/internal/config"
	"github.com/chesstrainer/video-indexer/internal/model"
	"github.com/chesstrainer/video-indexer/internal/quota"
	"github.com/chesstrainer/video-indexer/internal/rss"
	"github.com/chesstrainer/video-indexer/internal/youtube"
)

type fakeClient struct {
	uploads map[string][]model.Video
	details map[string]model.Video
	errs    map[string]error

	calls atomic.Int64
}

func (f *fakeClient) ListChannelUploads(_ context.Context, channelID string, _ youtube.ListOptions) ([]model.Video, error) {
	f.calls.Add(1)
	if err, ok := f.errs[channelID]; ok {
		return nil, err
	}
	return f.uploads[channelID], nil
}

func (f *fakeClient) BatchFetchVideoDetails(_ context.Context, ids []string) ([]model.Video, error) {
	f.calls.Add(1)
	var out []model.Video
	for _, id := range ids {
		if d, ok := f.details[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeFeeds struct{}

func (fakeFeeds) Fetch(context.Context, string) ([]rss.Entry, error) { return nil, nil }

func upload(id, channelID, title string) model.Video {
	return model.Video{
		ID:          id,
		ChannelID:   channelID,
		Title:       title,
		PublishedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func detail(id, title string) model.Video {
	return model.Video{
		ID:              id,
		Title:           title,
		Duration:        "PT20M",
		CategoryID:      "27",
		DefaultLanguage: "en",
		Tags:            []string{"chess", "opening theory"},
		Statistics:      model.Statistics{ViewCount: 100000, LikeCount: 4000, CommentCount: 1000},
		ContentDetails: model.ContentDetails{
			Duration:   "PT20M",
			Definition: "hd",
			Caption:    true,
		},
		Status:              model.Status{Embeddable: true, PublicStatsViewable: true},
		TopicCategories:     []string{"https://en.wikipedia.org/wiki/Chess"},
		HasEnhancedMetadata: true,
	}
}

type fixture struct {
	cfg    *config.Config
	client *fakeClient
	ledger *quota.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	channels := `{"trusted_channels": [
		{"channel_id": "UCpremium", "name": "Premium Chess", "quality_tier": "premium", "priority": 1},
		{"channel_id": "UCstandard", "name": "Standard Chess", "quality_tier": "standard", "priority": 2}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "channels.json"), []byte(channels), 0o644))

	openings := `[
		{"fen": "fen/scandinavian b01", "eco": "B01", "name": "Scandinavian Defense", "aliases": ["Center Counter Defense"]},
		{"fen": "fen/sicilian b20", "eco": "B20", "name": "Sicilian Defense"},
		{"fen": "fen/obscure a00", "eco": "A00", "name": "Obscure Opening"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "openings.json"), []byte(openings), 0o644))

	cfg := &config.Config{
		YouTube: config.YouTubeConfig{APIKey: "test-key", QuotaLimit: 10000},
		Indexer: config.IndexerConfig{HistoryYears: 15, ChannelConcurrency: 2},
		Matcher: config.MatcherConfig{MaxResults: 10, MinScore: 60},
		Enricher: config.EnricherConfig{
			BatchSize: 50,
			CacheTTL:  7 * 24 * time.Hour,
		},
		Paths: config.PathsConfig{
			ChannelsFile:   filepath.Join(dir, "channels.json"),
			CatalogFile:    filepath.Join(dir, "openings.json"),
			CacheFile:      filepath.Join(dir, "cache.json"),
			VideosDir:      filepath.Join(dir, "videos"),
			IndexFile:      filepath.Join(dir, "index.json"),
			CheckpointFile: filepath.Join(dir, "checkpoint.json"),
			SummaryFile:    filepath.Join(dir, "summary.json"),
		},
	}

	client := &fakeClient{
		uploads: map[string][]model.Video{
			"UCpremium": {
				upload("vid-scan", "UCpremium", "Center Counter Defense Guide"),
				upload("vid-sici", "UCpremium", "Sicilian Defense Masterclass"),
				upload("vid-blitz", "UCpremium", "Blitz Chess Marathon"),
			},
			"UCstandard": {
				upload("vid-sici2", "UCstandard", "Sicilian Defense Repertoire for Club Players"),
			},
		},
		details: map[string]model.Video{
			"vid-scan":  detail("vid-scan", "Center Counter Defense Guide"),
			"vid-sici":  detail("vid-sici", "Sicilian Defense Masterclass"),
			"vid-blitz": detail("vid-blitz", "Blitz Chess Marathon"),
			"vid-sici2": detail("vid-sici2", "Sicilian Defense Repertoire for Club Players"),
		},
	}

	return &fixture{cfg: cfg, client: client, ledger: quota.NewLedger(cfg.YouTube.QuotaLimit)}
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Config: f.cfg,
		Ledger: f.ledger,
		Client: f.client,
		Feeds:  fakeFeeds{},
	})
	require.NoError(t, err)
	return p
}

func TestRunFullPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sum, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 0, sum.Skipped)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, int64(4), sum.Metrics["videos_indexed"])
	// The blitz video is rejected before matching.
	assert.Equal(t, int64(1), sum.Metrics["prefilter_rejected"])

	st := f.pipeline(t).store
	vf, err := st.ReadVideoFile("fen/scandinavian b01")
	require.NoError(t, err)
	require.Equal(t, 1, vf.VideoCount, "alias match lands in the scandinavian file")
	assert.Equal(t, "vid-scan", vf.Videos[0].ID)
	assert.Positive(t, vf.Videos[0].Analysis.RelevanceScore)

	vf, err = st.ReadVideoFile("fen/sicilian b20")
	require.NoError(t, err)
	assert.Equal(t, 2, vf.VideoCount)

	// No file for the opening nothing matched.
	assert.False(t, st.HasVideos("fen/obscure a00"))

	// Checkpoint and summary artifacts exist.
	_, err = os.Stat(f.cfg.Paths.CheckpointFile)
	assert.NoError(t, err)
	_, err = os.Stat(f.cfg.Paths.SummaryFile)
	assert.NoError(t, err)
}

func TestRunWarmCacheSecondRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Positive(t, first.Metrics["newly_enriched"])
	require.Equal(t, int64(0), first.Metrics["cached"])
	callsAfterFirst := f.client.calls.Load()

	// Fresh videos dir so the catalog is reprocessed; index snapshot and
	// enrichment cache carry over.
	f.cfg.Paths.VideosDir = f.cfg.Paths.VideosDir + "-second"

	second, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Metrics["newly_enriched"])
	assert.Equal(t, first.Metrics["newly_enriched"], second.Metrics["cached"])
	assert.Equal(t, callsAfterFirst, f.client.calls.Load(), "second run issues zero upstream calls")
}

func TestRunDeterministicOutputs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	firstStore := f.pipeline(t).store
	firstScan, err := firstStore.ReadVideoFile("fen/scandinavian b01")
	require.NoError(t, err)

	f.cfg.Paths.VideosDir = f.cfg.Paths.VideosDir + "-second"
	_, err = f.pipeline(t).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	secondScan, err := f.pipeline(t).store.ReadVideoFile("fen/scandinavian b01")
	require.NoError(t, err)

	require.Equal(t, len(firstScan.Videos), len(secondScan.Videos))
	for i := range firstScan.Videos {
		assert.Equal(t, firstScan.Videos[i].ID, secondScan.Videos[i].ID)
		assert.Equal(t, firstScan.Videos[i].Analysis, secondScan.Videos[i].Analysis)
	}
}

func TestRunSkipsOpeningsWithVideos(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, first.Skipped)

	second, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	// The two openings that got files are skipped; the obscure one remains.
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 0, second.VideosAdded)
}

func TestRunECOFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sum, err := f.pipeline(t).Run(context.Background(), RunOptions{ECOLetter: "A"})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Processed, "only the A00 opening is considered")
	assert.Equal(t, 0, sum.VideosAdded)
}

func TestRunQuotaExceeded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.client.errs = map[string]error{
		"UCpremium":  fmt.Errorf("list uploads: %w", quota.ErrQuotaExceeded),
		"UCstandard": fmt.Errorf("list uploads: %w", quota.ErrQuotaExceeded),
	}

	sum, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, quota.ErrQuotaExceeded))
	assert.NotEmpty(t, sum.Errors)

	// State is persisted before exit.
	_, serr := os.Stat(f.cfg.Paths.SummaryFile)
	assert.NoError(t, serr)
	_, ierr := os.Stat(f.cfg.Paths.IndexFile)
	assert.NoError(t, ierr)
}

func TestRunMissingChannelsFileIsConfigError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Paths.ChannelsFile = filepath.Join(t.TempDir(), "nope.json")

	_, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))
}

func TestRunResumeFromCheckpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first, err := f.pipeline(t).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	// Resume with a videos dir wiped: matching is skipped, the checkpointed
	// matches feed enrichment directly.
	f.cfg.Paths.VideosDir = f.cfg.Paths.VideosDir + "-second"
	callsBefore := f.client.calls.Load()

	second, err := f.pipeline(t).Run(context.Background(), RunOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, first.VideosAdded, second.VideosAdded)
	assert.Equal(t, callsBefore, f.client.calls.Load())
}
