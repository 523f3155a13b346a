package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chesstrainer/video-indexer/internal/model"
	"github.com/chesstrainer/video-indexer/internal/quota"
	"github.com/chesstrainer/video-indexer/internal/rss"
	"github.com/chesstrainer/video-indexer/internal/youtube"
)

type fakeClient struct {
	uploads map[string][]model.Video
	details map[string]model.Video
	errs    map[string]error

	detailCalls int
}

func (f *fakeClient) ListChannelUploads(_ context.Context, channelID string, _ youtube.ListOptions) ([]model.Video, error) {
	if err, ok := f.errs[channelID]; ok {
		return nil, err
	}
	return f.uploads[channelID], nil
}

func (f *fakeClient) BatchFetchVideoDetails(_ context.Context, ids []string) ([]model.Video, error) {
	f.detailCalls++
	var out []model.Video
	for _, id := range ids {
		if d, ok := f.details[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeFeeds struct {
	entries map[string][]rss.Entry
	errs    map[string]error
}

func (f *fakeFeeds) Fetch(_ context.Context, channelID string) ([]rss.Entry, error) {
	if err, ok := f.errs[channelID]; ok {
		return nil, err
	}
	return f.entries[channelID], nil
}

func partial(id, channelID, title string) model.Video {
	return model.Video{
		ID:          id,
		Title:       title,
		ChannelID:   channelID,
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func detail(id string, views int64) model.Video {
	v := partial(id, "", "")
	v.Statistics.ViewCount = views
	v.ContentDetails.Definition = "hd"
	v.HasEnhancedMetadata = true
	return v
}

func TestBuildLocalIndexPartialFailure(t *testing.T) {
	t.Parallel()

	// Channels [C1, C2]; C1 yields 2 uploads, C2 fails with a rate-limit
	// error. The build records the error and continues.
	client := &fakeClient{
		uploads: map[string][]model.Video{
			"C1": {partial("v1", "C1", "London System Guide"), partial("v2", "C1", "Sicilian Theory")},
		},
		details: map[string]model.Video{
			"v1": detail("v1", 1000),
			"v2": detail("v2", 2000),
		},
		errs: map[string]error{
			"C2": youtube.ErrRateLimited,
		},
	}
	x := New(client, nil, nil)

	result, err := x.BuildLocalIndex(context.Background(), []model.TrustedChannel{
		{ChannelID: "C1"}, {ChannelID: "C2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalVideos)
	assert.Equal(t, 1, result.ChannelsCovered)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "C2", result.Errors[0].ChannelID)
}

func TestBuildLocalIndexAllFailedRateLimit(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		errs: map[string]error{
			"C1": errors.New("API rate limit exceeded"),
		},
	}
	x := New(client, nil, nil)

	_, err := x.BuildLocalIndex(context.Background(), []model.TrustedChannel{{ChannelID: "C1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, quota.ErrQuotaExceeded))
}

func TestBuildLocalIndexAllFailedOtherError(t *testing.T) {
	t.Parallel()

	// Non-rate-limit failures never escalate to QuotaExceeded.
	client := &fakeClient{
		errs: map[string]error{
			"C1": errors.New("connection refused"),
		},
	}
	x := New(client, nil, nil)

	result, err := x.BuildLocalIndex(context.Background(), []model.TrustedChannel{{ChannelID: "C1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ChannelsCovered)
	assert.Len(t, result.Errors, 1)
}

func TestBuildLocalIndexChannelKeyInvariant(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		uploads: map[string][]model.Video{
			"C1": {partial("v1", "", "t")},
		},
		details: map[string]model.Video{"v1": detail("v1", 10)},
	}
	x := New(client, nil, nil)

	_, err := x.BuildLocalIndex(context.Background(), []model.TrustedChannel{{ChannelID: "C1"}})
	require.NoError(t, err)

	for channelID, videos := range x.Index().Channels {
		for _, v := range videos {
			assert.Equal(t, channelID, v.ChannelID)
		}
	}
}

func TestMergeDetails(t *testing.T) {
	t.Parallel()

	partials := []model.Video{
		partial("v1", "C1", "Partial Title"),
		partial("v2", "C1", "Only Partial"),
		partial("v1", "C1", "Duplicate"), // duplicate id is dropped
	}
	details := []model.Video{detail("v1", 500)}

	merged := mergeDetails(partials, details, "C1")
	require.Len(t, merged, 2)

	// Detail record wins, partial fields are fallbacks.
	assert.True(t, merged[0].HasEnhancedMetadata)
	assert.Equal(t, "Partial Title", merged[0].Title)
	assert.Equal(t, int64(500), merged[0].Statistics.ViewCount)
	assert.Equal(t, "C1", merged[0].ChannelID)

	// Missing detail keeps the partial with zero statistics.
	assert.False(t, merged[1].HasEnhancedMetadata)
	assert.Equal(t, int64(0), merged[1].Statistics.ViewCount)
}

func TestUpdateFromRSS(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{
		entries: map[string][]rss.Entry{
			"C1": {
				{VideoID: "v1", Title: "Already Indexed"},
				{VideoID: "v9", Title: "Brand New", PublishedAt: time.Now()},
			},
		},
		errs: map[string]error{
			"C2": &rss.ParseError{ChannelID: "C2", Err: errors.New("bad xml")},
		},
	}
	x := New(nil, feeds, nil)
	x.Index().Channels["C1"] = []model.Video{partial("v1", "C1", "Already Indexed")}

	result := x.UpdateFromRSS(context.Background(), []model.TrustedChannel{
		{ChannelID: "C1"}, {ChannelID: "C2"},
	})

	assert.Equal(t, 1, result.NewVideos)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "C2", result.Errors[0].ChannelID)

	// v9 appended, v1 not duplicated.
	require.Len(t, x.Index().Channels["C1"], 2)
	assert.Equal(t, "v9", x.Index().Channels["C1"][1].ID)
	assert.False(t, x.Index().Channels["C1"][1].HasEnhancedMetadata)
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/index.json"

	x := New(nil, nil, nil)
	x.Index().Channels["C1"] = []model.Video{partial("v1", "C1", "Saved Video")}
	x.Index().Enriched["v1"] = model.EnrichedVideo{
		Video: partial("v1", "C1", "Saved Video"),
		URL:   "https://www.youtube.com/watch?v=v1",
	}

	require.NoError(t, x.SaveIndex(path))

	loaded := New(nil, nil, nil)
	require.NoError(t, loaded.LoadIndex(path))

	assert.Equal(t, x.Index().Channels, loaded.Index().Channels)
	assert.Equal(t, x.Index().Enriched, loaded.Index().Enriched)
}

func TestIsIndexRecent(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/index.json"
	assert.False(t, IsIndexRecent(path, 0), "missing file is not recent")

	x := New(nil, nil, nil)
	require.NoError(t, x.SaveIndex(path))
	assert.True(t, IsIndexRecent(path, 0))
	assert.False(t, IsIndexRecent(path, time.Nanosecond))
}
