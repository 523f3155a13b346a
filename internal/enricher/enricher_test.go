package enricher

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chesstrainer/video-indexer/internal/model"
)

func opening(fen, name string) model.Opening {
	return model.Opening{FEN: fen, ECO: "B20", Name: name}
}

func rawVideo(id string) model.Video {
	return model.Video{
		ID:         id,
		ChannelID:  "premium-ch",
		Title:      "Sicilian Defense Tutorial " + id,
		Tags:       []string{"chess", "opening theory"},
		CategoryID: "27",
		Statistics: model.Statistics{ViewCount: 10000, LikeCount: 700, CommentCount: 50},
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

func groupsWithSharedVideos(n int) []model.OpeningMatches {
	videos := make([]model.Match, n)
	for i := range videos {
		videos[i] = model.Match{Video: rawVideo(fmt.Sprintf("vid-%d", i)), Score: 70 + i}
	}
	return []model.OpeningMatches{
		{Opening: opening("fen-1", "Sicilian Defense"), Matches: videos},
		{Opening: opening("fen-2", "Sicilian Defense, Najdorf"), Matches: videos},
		{Opening: opening("fen-3", "Sicilian Defense, Dragon"), Matches: videos},
	}
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()

	d := Deduplicate(groupsWithSharedVideos(5))

	require.Len(t, d.Videos, 5)
	for i, v := range d.Videos {
		assert.Equal(t, fmt.Sprintf("vid-%d", i), v.ID, "first-seen order preserved")
		assert.Equal(t, []string{"fen-1", "fen-2", "fen-3"}, d.Openings[v.ID])
	}
}

func TestEnrichSharedVideosOnce(t *testing.T) {
	t.Parallel()

	// Three openings listing the same five videos enrich exactly five
	// records; no detail fetch is involved because indexing already supplied
	// the metadata. Remap restores all three groups at full size.
	groups := groupsWithSharedVideos(5)
	cache := OpenCache(t.TempDir()+"/cache.json", 0, nil)
	e := New(Options{BatchDelay: time.Millisecond})

	result, err := e.Enrich(context.Background(), GroupedInput(groups), cache)
	require.NoError(t, err)

	assert.Len(t, result.Videos, 5)
	assert.Equal(t, 5, result.NewlyEnriched)
	assert.Equal(t, 0, result.Cached)

	remapped := Remap(groups, result.Videos)
	require.Len(t, remapped, 3)
	for _, ov := range remapped {
		assert.Len(t, ov.Videos, 5)
		for i, ev := range ov.Videos {
			assert.Equal(t, 70+i, ev.Analysis.RelevanceScore)
			assert.Equal(t, "https://www.youtube.com/watch?v="+ev.ID, ev.URL)
		}
	}
}

func TestWarmCacheRun(t *testing.T) {
	t.Parallel()

	// Second run over the same 50 videos is served entirely from cache.
	var videos []model.Video
	for i := 0; i < 50; i++ {
		videos = append(videos, rawVideo(fmt.Sprintf("vid-%02d", i)))
	}
	path := t.TempDir() + "/cache.json"
	e := New(Options{BatchDelay: time.Millisecond})

	first, err := e.Enrich(context.Background(), UniqueInput(videos), OpenCache(path, 0, nil))
	require.NoError(t, err)
	assert.Equal(t, 50, first.NewlyEnriched)
	assert.Equal(t, 0, first.Cached)

	second, err := e.Enrich(context.Background(), UniqueInput(videos), OpenCache(path, 0, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewlyEnriched)
	assert.Equal(t, 50, second.Cached)
	for _, ev := range second.Videos {
		assert.True(t, ev.Metadata.Cached)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	cache := OpenCache(t.TempDir()+"/cache.json", time.Hour, nil)
	ev := model.EnrichedVideo{Video: rawVideo("vid-1")}
	ev.Metadata.IndexedAt = time.Now().Add(-2 * time.Hour)
	cache.Put(ev)

	_, hit := cache.Lookup("vid-1", time.Now())
	assert.False(t, hit, "stale entry is a miss")

	ev.Metadata.IndexedAt = time.Now().Add(-time.Minute)
	cache.Put(ev)
	_, hit = cache.Lookup("vid-1", time.Now())
	assert.True(t, hit)
}

func TestCacheMissingFileStartsEmpty(t *testing.T) {
	t.Parallel()

	cache := OpenCache(t.TempDir()+"/nope/cache.json", 0, nil)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheCorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/cache.json"
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cache := OpenCache(path, 0, nil)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheLegacyFlatLayout(t *testing.T) {
	t.Parallel()

	// Older files mixed metadata keys with video ids at the top level.
	path := t.TempDir() + "/cache.json"
	legacy := `{
		"lastUpdated": "2024-01-01T00:00:00Z",
		"version": "1.0",
		"vid-1": {"id": "vid-1", "title": "Old Entry", "metadata": {"indexedAt": "2024-01-01T00:00:00Z"}},
		"vid-2": "not an object"
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	cache := OpenCache(path, 0, nil)
	assert.Equal(t, 1, cache.Len(), "unreadable entries are dropped")
}

func TestCacheFlushRoundTrip(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/sub/cache.json"
	cache := OpenCache(path, 0, nil)

	ev := model.EnrichedVideo{Video: rawVideo("vid-1"), URL: "https://www.youtube.com/watch?v=vid-1"}
	ev.Metadata.IndexedAt = time.Now().UTC()
	cache.Put(ev)
	require.NoError(t, cache.Flush())

	reloaded := OpenCache(path, 0, nil)
	assert.Equal(t, 1, reloaded.Len())
	got, hit := reloaded.Lookup("vid-1", time.Now())
	require.True(t, hit)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid-1", got.URL)
}

func TestEnrichBatchingAndProgress(t *testing.T) {
	t.Parallel()

	var videos []model.Video
	for i := 0; i < 7; i++ {
		videos = append(videos, rawVideo(fmt.Sprintf("vid-%d", i)))
	}

	var events []Progress
	e := New(Options{
		BatchSize:  3,
		BatchDelay: time.Millisecond,
		OnProgress: func(p Progress) { events = append(events, p) },
	})

	_, err := e.Enrich(context.Background(), UniqueInput(videos), OpenCache(t.TempDir()+"/cache.json", 0, nil))
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, 3, events[0].Processed)
	assert.Equal(t, 6, events[1].Processed)
	assert.Equal(t, 7, events[2].Processed)
	assert.Equal(t, "vid-6", events[2].Current)
	assert.InDelta(t, 100.0, events[2].Percentage, 0.01)
	for _, p := range events {
		assert.Equal(t, 7, p.Total)
		assert.False(t, p.FromCache)
	}
}

func TestEnrichCancellationAtBatchBoundary(t *testing.T) {
	t.Parallel()

	var videos []model.Video
	for i := 0; i < 6; i++ {
		videos = append(videos, rawVideo(fmt.Sprintf("vid-%d", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	path := t.TempDir() + "/cache.json"
	e := New(Options{
		BatchSize:  3,
		BatchDelay: time.Millisecond,
		OnProgress: func(p Progress) { cancel() },
	})

	result, err := e.Enrich(ctx, UniqueInput(videos), OpenCache(path, 0, nil))
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, result.Videos, 3, "terminates after the in-flight batch")

	// The completed batch was flushed before exit.
	reloaded := OpenCache(path, 0, nil)
	assert.Equal(t, 3, reloaded.Len())
}

func TestDeriveAnalysis(t *testing.T) {
	t.Parallel()

	e := New(Options{Tiers: map[string]model.QualityTier{"premium-ch": model.TierPremium}})

	tests := []struct {
		name   string
		mutate func(*model.Video)
		check  func(t *testing.T, a model.Analysis)
	}{
		{
			name:   "rich tutorial",
			mutate: func(v *model.Video) {},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.ContentTutorial, a.ContentType)
				assert.Equal(t, model.LevelHigh, a.VideoQuality)
				assert.Equal(t, model.LevelHigh, a.InstructorQuality)
				assert.Equal(t, model.LevelHigh, a.EducationalValue)
				assert.InDelta(t, 0.075, a.Engagement.EngagementRate, 0.0001)
			},
		},
		{
			name: "beginner keyword wins",
			mutate: func(v *model.Video) {
				v.Title = "Chess Basics for Beginners"
			},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.DifficultyBeginner, a.DifficultyLevel)
			},
		},
		{
			name: "grandmaster keyword is advanced",
			mutate: func(v *model.Video) {
				v.Title = "Grandmaster Preparation Secrets"
				v.Tags = nil
			},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.DifficultyAdvanced, a.DifficultyLevel)
			},
		},
		{
			name: "game analysis outranks tutorial",
			mutate: func(v *model.Video) {
				v.Title = "Game Analysis Tutorial"
				v.Tags = nil
			},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.ContentGameAnalysis, a.ContentType)
			},
		},
		{
			name: "bare upload scores low",
			mutate: func(v *model.Video) {
				v.Title = "casual stuff"
				v.Tags = nil
				v.CategoryID = ""
				v.TopicCategories = nil
				v.Statistics = model.Statistics{ViewCount: 100}
				v.ContentDetails = model.ContentDetails{Duration: "PT1M"}
				v.Status = model.Status{}
				v.ChannelID = "unknown-ch"
			},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.LevelLow, a.VideoQuality)
				assert.Equal(t, model.LevelLow, a.EducationalValue)
				assert.Equal(t, model.LevelMedium, a.InstructorQuality)
				assert.Equal(t, model.ContentGeneral, a.ContentType)
			},
		},
		{
			name: "engagement rounds to four decimals",
			mutate: func(v *model.Video) {
				v.Statistics = model.Statistics{ViewCount: 3, LikeCount: 1}
			},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, 0.3333, a.Engagement.EngagementRate)
				assert.Equal(t, 0.3333, a.Engagement.LikeRatio)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := rawVideo("vid-1")
			tt.mutate(&v)
			tt.check(t, e.enrichOne(v).Analysis)
		})
	}
}
