// Package rss fetches and parses the per-channel Atom upload feeds. Feed
// reads cost no upstream quota, which makes them the cheap delta-discovery
// path between full index builds.
package rss

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the production feed endpoint; the channel id is appended
// as the channel_id query parameter.
const DefaultBaseURL = "https://www.youtube.com/feeds/videos.xml"

// Entry is one upload taken from a channel feed.
type Entry struct {
	VideoID      string
	Title        string
	PublishedAt  time.Time
	ChannelTitle string
}

// ParseError reports a feed that could not be decoded. The caller receives
// an empty entry list alongside it and continues with other channels.
type ParseError struct {
	ChannelID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed for channel %s: %v", e.ChannelID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// atomFeed mirrors the Atom 1.0 structure of the upload feed, including the
// YouTube namespace for video ids.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Author  atomAuthor  `xml:"author"`
	Entries []atomEntry `xml:"entry"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomEntry struct {
	VideoID   string    `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title     string    `xml:"title"`
	Published time.Time `xml:"published"`
	Author    atomAuthor `xml:"author"`
}

// Fetcher retrieves channel feeds over HTTP.
type Fetcher struct {
	client  *http.Client
	baseURL string
}

// NewFetcher creates a feed fetcher. baseURL is overridable for tests; empty
// selects the production endpoint.
func NewFetcher(client *http.Client, baseURL string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Fetcher{client: client, baseURL: baseURL}
}

// Fetch downloads and parses one channel's feed. Malformed XML yields an
// empty list plus a ParseError rather than failing the poll.
func (f *Fetcher) Fetch(ctx context.Context, channelID string) ([]Entry, error) {
	feedURL := fmt.Sprintf("%s?channel_id=%s", f.baseURL, channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed for channel %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed for channel %s: HTTP %d", channelID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed for channel %s: %w", channelID, err)
	}

	entries, err := Parse(body)
	if err != nil {
		return nil, &ParseError{ChannelID: channelID, Err: err}
	}
	return entries, nil
}

// Parse decodes Atom feed bytes into entries. Entries missing a video id are
// dropped.
func Parse(data []byte) ([]Entry, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("unmarshal atom feed: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e.VideoID == "" {
			continue
		}
		channelTitle := e.Author.Name
		if channelTitle == "" {
			channelTitle = feed.Author.Name
		}
		entries = append(entries, Entry{
			VideoID:      e.VideoID,
			Title:        e.Title,
			PublishedAt:  e.Published,
			ChannelTitle: channelTitle,
		})
	}
	return entries, nil
}
