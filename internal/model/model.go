// Package model defines the shared data types flowing through the indexing
// pipeline: catalog openings, trusted channels, raw and enriched videos, and
// the persisted artifacts (checkpoints, per-opening video files).
package model

import "time"

// Opening is an immutable catalog entry. The FEN fingerprint is the primary
// key; the core never mutates openings.
type Opening struct {
	FEN       string   `json:"fen"`
	ECO       string   `json:"eco"`
	Name      string   `json:"name"`
	Variation string   `json:"variation,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
	Moves     string   `json:"moves,omitempty"`
}

// QualityTier classifies a trusted channel.
type QualityTier string

const (
	TierPremium  QualityTier = "premium"
	TierStandard QualityTier = "standard"
)

// TrustedChannel is a configured video source. Lower priority sorts first.
type TrustedChannel struct {
	ChannelID string      `json:"channel_id"`
	Name      string      `json:"name"`
	Tier      QualityTier `json:"quality_tier"`
	Priority  int         `json:"priority"`
}

// RSSURL returns the channel's Atom feed URL.
func (c TrustedChannel) RSSURL() string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + c.ChannelID
}

// Statistics holds the numeric engagement counters of a video. Missing
// statistics are filled with zeros at indexing time.
type Statistics struct {
	ViewCount    int64 `json:"viewCount"`
	LikeCount    int64 `json:"likeCount"`
	CommentCount int64 `json:"commentCount"`
}

// ContentDetails carries playback metadata from the detail fetch.
type ContentDetails struct {
	Duration   string `json:"duration,omitempty"` // ISO-8601 period, e.g. PT14M5S
	Definition string `json:"definition,omitempty"`
	Caption    bool   `json:"caption"`
}

// Status carries upload/privacy flags from the detail fetch.
type Status struct {
	PrivacyStatus       string `json:"privacyStatus,omitempty"`
	Embeddable          bool   `json:"embeddable"`
	PublicStatsViewable bool   `json:"publicStatsViewable"`
}

// Video is a raw indexed video. Partial records produced by the uploads
// listing carry only snippet-level fields; the batched detail fetch fills in
// the rest and sets HasEnhancedMetadata.
type Video struct {
	ID                  string            `json:"id"`
	Title               string            `json:"title"`
	Description         string            `json:"description,omitempty"`
	PublishedAt         time.Time         `json:"publishedAt"`
	ChannelID           string            `json:"channelId"`
	ChannelTitle        string            `json:"channelTitle,omitempty"`
	Thumbnails          map[string]string `json:"thumbnails,omitempty"`
	Duration            string            `json:"duration,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	CategoryID          string            `json:"categoryId,omitempty"`
	DefaultLanguage     string            `json:"defaultLanguage,omitempty"`
	Statistics          Statistics        `json:"statistics"`
	ContentDetails      ContentDetails    `json:"contentDetails"`
	Status              Status            `json:"status"`
	TopicCategories     []string          `json:"topicCategories,omitempty"`
	HasEnhancedMetadata bool              `json:"hasEnhancedMetadata"`
}

// WatchURL returns the canonical watch URL for the video.
func (v Video) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Level is a coarse low/medium/high classification.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Difficulty buckets for derived analysis.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// ContentType buckets for derived analysis, in precedence order.
type ContentType string

const (
	ContentGameAnalysis  ContentType = "game-analysis"
	ContentTutorial      ContentType = "tutorial"
	ContentOpeningTheory ContentType = "opening-theory"
	ContentLive          ContentType = "live-content"
	ContentGeneral       ContentType = "general"
)

// EngagementMetrics are ratios derived from statistics, rounded to four
// decimal places.
type EngagementMetrics struct {
	EngagementRate float64 `json:"engagementRate"`
	LikeRatio      float64 `json:"likeRatio"`
	CommentRatio   float64 `json:"commentRatio"`
}

// Analysis holds the fields derived during enrichment. No upstream call is
// involved; everything is computed from metadata fetched at indexing time.
type Analysis struct {
	RelevanceScore    int               `json:"relevanceScore"`
	DifficultyLevel   Difficulty        `json:"difficultyLevel"`
	ContentType       ContentType       `json:"contentType"`
	InstructorQuality Level             `json:"instructorQuality"`
	VideoQuality      Level             `json:"videoQuality"`
	Engagement        EngagementMetrics `json:"engagementMetrics"`
	EducationalValue  Level             `json:"educationalValue"`
}

// EnrichMetadata records provenance of an enriched record.
type EnrichMetadata struct {
	IndexedAt time.Time `json:"indexedAt"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Cached    bool      `json:"cached"`
}

// EnrichedVideo is a raw video plus derived analysis and provenance.
type EnrichedVideo struct {
	Video
	URL      string         `json:"url"`
	Analysis Analysis       `json:"analysis"`
	Metadata EnrichMetadata `json:"metadata"`
}

// MatchType names the rubric contribution that produced the top score.
type MatchType string

const (
	MatchTitleExact   MatchType = "title_exact"
	MatchExact        MatchType = "exact"
	MatchFamily       MatchType = "family"
	MatchPartialTitle MatchType = "partial_title"
	MatchAbbreviation MatchType = "abbreviation"
	MatchECO          MatchType = "eco"
)

// Match is a scored (video, opening) pair, scoped to a single run.
type Match struct {
	Video Video     `json:"video"`
	Score int       `json:"score"`
	Type  MatchType `json:"matchType"`
}

// OpeningMatches groups the selected matches of one opening.
type OpeningMatches struct {
	Opening Opening `json:"opening"`
	Matches []Match `json:"matches"`
}

// OpeningVideos is the per-opening shape after enrichment.
type OpeningVideos struct {
	Opening Opening         `json:"opening"`
	Videos  []EnrichedVideo `json:"videos"`
}

// VideoFile is the persisted per-position record. The filename is derived
// from the FEN by store.SanitizeFEN; external readers compute it identically.
type VideoFile struct {
	FEN         string          `json:"fen"`
	Name        string          `json:"name"`
	ECO         string          `json:"eco"`
	ExtractedAt time.Time       `json:"extracted_at"`
	VideoCount  int             `json:"video_count"`
	Videos      []EnrichedVideo `json:"videos"`
}

// Checkpoint is written at phase boundaries so an interrupted run can resume.
type Checkpoint struct {
	RunID          string           `json:"run_id"`
	Timestamp      time.Time        `json:"timestamp"`
	Phase          string           `json:"phase"`
	OpeningsCount  int              `json:"openings_count"`
	MatchesCount   int              `json:"matches_count"`
	VideoInstances int              `json:"total_video_instances"`
	Metrics        map[string]int64 `json:"metrics,omitempty"`
	Matches        []OpeningMatches `json:"matches"`
}

// Summary is the user-visible result of a run.
type Summary struct {
	RunID       string           `json:"run_id"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Processed   int              `json:"processed"`
	Skipped     int              `json:"skipped"`
	VideosAdded int              `json:"videos_added"`
	QuotaSpent  int              `json:"quota_spent"`
	Errors      []string         `json:"errors,omitempty"`
	Metrics     map[string]int64 `json:"metrics,omitempty"`
}
