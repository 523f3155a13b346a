// Package youtube implements the quota- and rate-governed upstream client.
//
// Every operation reserves its quota cost on the shared ledger before the
// request is issued, then passes through the shared token-bucket limiter.
// Cost is charged whether or not the request ultimately succeeds.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chesstrainer/video-indexer/internal/model"
	"github.com/chesstrainer/video-indexer/internal/quota"
)

const (
	// DefaultBaseURL is the production API endpoint. Tests point the client
	// at an httptest server instead.
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	// DefaultRequestTimeout bounds each upstream request.
	DefaultRequestTimeout = 30 * time.Second

	// maxIDsPerDetailRequest is the upstream batch ceiling for videos.list.
	maxIDsPerDetailRequest = 50

	costList   = 1   // per page of channels/playlistItems/videos listings
	costSearch = 100 // per search.list call

	rateLimitRetries   = 3
	rateLimitRetryBase = 1 * time.Second
)

// Recorder observes upstream request outcomes. The metrics package provides
// the production implementation.
type Recorder interface {
	ObserveRequest(endpoint, outcome string)
}

// Options configures a Client.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Options struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64 // <= 0 disables the limiter (test mode)
	RequestTimeout    time.Duration
	HTTPClient        *http.Client
	Recorder          Recorder
	Logger            *zap.Logger
}

// Client is the only component that talks to the video service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	ledger     *quota.Ledger
	limiter    *rate.Limiter
	timeout    time.Duration
	recorder   Recorder
	logger     *zap.Logger

	retries   int
	retryBase time.Duration
}

// NewClient creates a client bound to the given quota ledger.
func NewClient(ledger *quota.Ledger, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("youtube: API key is required")
	}
	if ledger == nil {
		return nil, errors.New("youtube: quota ledger is required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     opts.APIKey,
		ledger:     ledger,
		limiter:    limiter,
		timeout:    timeout,
		recorder:   opts.Recorder,
		logger:     logger.Named("youtube"),
		retries:    rateLimitRetries,
		retryBase:  rateLimitRetryBase,
	}, nil
}

// ListOptions controls ListChannelUploads.
type ListOptions struct {
	// MaxResults caps the returned videos; <= 0 means unlimited ("all").
	MaxResults int
	// PublishedAfter drops older uploads client-side.
	PublishedAfter time.Time
	// OrderByDate sorts the result descending by publish time.
	OrderByDate bool
}

// ListChannelUploads enumerates a channel's uploads playlist with
// pagination. Each page costs one quota unit; an empty channel still costs
// exactly one.
func (c *Client) ListChannelUploads(ctx context.Context, channelID string, opts ListOptions) ([]model.Video, error) {
	playlistID := uploadsPlaylistID(channelID)

	var videos []model.Video
	pageToken := ""

	for {
		params := url.Values{
			"part":       {"snippet,contentDetails"},
			"playlistId": {playlistID},
			"maxResults": {"50"},
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page playlistItemsResponse
		if err := c.doJSON(ctx, "playlistItems", params, costList, &page); err != nil {
			return nil, fmt.Errorf("list uploads for channel %s: %w", channelID, err)
		}

		for _, item := range page.Items {
			v := partialFromPlaylistItem(item, channelID)
			if !opts.PublishedAfter.IsZero() && v.PublishedAt.Before(opts.PublishedAfter) {
				continue
			}
			videos = append(videos, v)
		}

		if opts.MaxResults > 0 && len(videos) >= opts.MaxResults {
			videos = videos[:opts.MaxResults]
			break
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if opts.OrderByDate {
		sort.SliceStable(videos, func(i, j int) bool {
			if !videos[i].PublishedAt.Equal(videos[j].PublishedAt) {
				return videos[i].PublishedAt.After(videos[j].PublishedAt)
			}
			return videos[i].ID < videos[j].ID
		})
	}

	return videos, nil
}

// BatchFetchVideoDetails fetches full records for the given ids, chunked
// into requests of at most 50 ids. Each chunk costs one quota unit.
func (c *Client) BatchFetchVideoDetails(ctx context.Context, videoIDs []string) ([]model.Video, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}

	var videos []model.Video
	for _, chunk := range chunkIDs(videoIDs, maxIDsPerDetailRequest) {
		params := url.Values{
			"part": {"snippet,statistics,contentDetails,status,topicDetails"},
			"id":   {strings.Join(chunk, ",")},
		}

		var resp videosResponse
		if err := c.doJSON(ctx, "videos", params, costList, &resp); err != nil {
			return nil, fmt.Errorf("fetch video details: %w", err)
		}

		for _, item := range resp.Items {
			videos = append(videos, fullFromVideoJSON(item))
		}
	}

	return videos, nil
}

// SearchVideos is the expensive discovery fallback: 100 units for the search
// plus one unit for the detail merge. Must be used sparingly.
func (c *Client) SearchVideos(ctx context.Context, query, channelID string) ([]model.Video, error) {
	params := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"q":          {query},
		"maxResults": {"25"},
	}
	if channelID != "" {
		params.Set("channelId", channelID)
	}

	var resp searchResponse
	if err := c.doJSON(ctx, "search", params, costSearch, &resp); err != nil {
		return nil, fmt.Errorf("search videos %q: %w", query, err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return c.BatchFetchVideoDetails(ctx, ids)
}

// ChannelResult is a channel search hit. Used only by tooling.
type ChannelResult struct {
	ChannelID   string
	Title       string
	Description string
}

// SearchChannels finds channels by query at 100 units per call.
func (c *Client) SearchChannels(ctx context.Context, query string) ([]ChannelResult, error) {
	params := url.Values{
		"part":       {"snippet"},
		"type":       {"channel"},
		"q":          {query},
		"maxResults": {"25"},
	}

	var resp searchResponse
	if err := c.doJSON(ctx, "search", params, costSearch, &resp); err != nil {
		return nil, fmt.Errorf("search channels %q: %w", query, err)
	}

	results := make([]ChannelResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.ChannelID == "" {
			continue
		}
		results = append(results, ChannelResult{
			ChannelID:   item.ID.ChannelID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
		})
	}

	return results, nil
}

// doJSON reserves cost on the ledger, waits on the limiter, issues the
// request and decodes the body. HTTP 429 is retried with exponential backoff
// before being reported as an UpstreamError.
func (c *Client) doJSON(ctx context.Context, endpoint string, params url.Values, cost int, out interface{}) error {
	if err := c.ledger.Reserve(cost); err != nil {
		c.observe(endpoint, "quota_rejected")
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.retryBase << (attempt - 1)
			c.logger.Warn("rate limited, backing off",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.doOnce(ctx, endpoint, params, out)
		if lastErr == nil {
			c.observe(endpoint, "ok")
			return nil
		}
		if !errors.Is(lastErr, ErrRateLimited) {
			c.observe(endpoint, "error")
			return lastErr
		}
	}

	// Backoff exhausted: report as a plain upstream failure.
	c.observe(endpoint, "rate_limited")
	return fmt.Errorf("%w after %d retries: %v", &UpstreamError{Status: http.StatusTooManyRequests}, c.retries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("key", c.apiKey)

	reqURL := c.baseURL + "/" + endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &UpstreamError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) observe(endpoint, outcome string) {
	if c.recorder != nil {
		c.recorder.ObserveRequest(endpoint, outcome)
	}
}

// uploadsPlaylistID derives the uploads playlist from the channel id. The
// upstream convention maps UC-prefixed channel ids to UU-prefixed playlists,
// which saves a channels.list unit per channel.
func uploadsPlaylistID(channelID string) string {
	if strings.HasPrefix(channelID, "UC") {
		return "UU" + channelID[2:]
	}
	return channelID
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

func partialFromPlaylistItem(item playlistItemJSON, channelID string) model.Video {
	id := item.ContentDetails.VideoID
	if id == "" {
		id = item.Snippet.ResourceID.VideoID
	}

	v := model.Video{
		ID:           id,
		Title:        item.Snippet.Title,
		Description:  item.Snippet.Description,
		ChannelID:    item.Snippet.ChannelID,
		ChannelTitle: item.Snippet.ChannelTitle,
	}
	if v.ChannelID == "" {
		v.ChannelID = channelID
	}
	if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		v.PublishedAt = t
	}
	if len(item.Snippet.Thumbnails) > 0 {
		v.Thumbnails = make(map[string]string, len(item.Snippet.Thumbnails))
		for name, thumb := range item.Snippet.Thumbnails {
			v.Thumbnails[name] = thumb.URL
		}
	}
	return v
}

func fullFromVideoJSON(item videoJSON) model.Video {
	v := model.Video{
		ID:                  item.ID,
		Title:               item.Snippet.Title,
		Description:         item.Snippet.Description,
		ChannelID:           item.Snippet.ChannelID,
		ChannelTitle:        item.Snippet.ChannelTitle,
		Tags:                item.Snippet.Tags,
		CategoryID:          item.Snippet.CategoryID,
		DefaultLanguage:     item.Snippet.Language,
		Duration:            item.ContentDetails.Duration,
		TopicCategories:     item.TopicDetails.TopicCategories,
		HasEnhancedMetadata: true,
	}
	if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		v.PublishedAt = t
	}
	if len(item.Snippet.Thumbnails) > 0 {
		v.Thumbnails = make(map[string]string, len(item.Snippet.Thumbnails))
		for name, thumb := range item.Snippet.Thumbnails {
			v.Thumbnails[name] = thumb.URL
		}
	}

	// Missing statistics are zero-filled.
	v.Statistics = model.Statistics{
		ViewCount:    parseCount(item.Statistics.ViewCount),
		LikeCount:    parseCount(item.Statistics.LikeCount),
		CommentCount: parseCount(item.Statistics.CommentCount),
	}
	v.ContentDetails = model.ContentDetails{
		Duration:   item.ContentDetails.Duration,
		Definition: item.ContentDetails.Definition,
		Caption:    item.ContentDetails.Caption == "true",
	}
	v.Status = model.Status{
		PrivacyStatus:       item.Status.PrivacyStatus,
		Embeddable:          item.Status.Embeddable,
		PublicStatsViewable: item.Status.PublicStatsViewable,
	}
	return v
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
