package enricher

import (
	"math"
	"strings"

	"github.com/chesstrainer/video-indexer/internal/model"
)

var beginnerKeywords = []string{"beginner", "basics", "introduction", "fundamentals", "learn chess", "first steps"}
var advancedKeywords = []string{"advanced", "master", "expert", "grandmaster", "deep dive", "gm "}
var intermediateKeywords = []string{"intermediate", "improving", "club player", "club level"}

var educationalTagKeywords = []string{"opening", "theory", "strategy", "tactics", "lesson", "tutorial", "endgame", "chess"}

// searchText concatenates the scannable metadata of a video, lower-cased.
func searchText(v model.Video) string {
	parts := make([]string, 0, len(v.Tags)+2)
	parts = append(parts, v.Title, v.Description)
	parts = append(parts, v.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

func deriveDifficulty(v model.Video) model.Difficulty {
	text := searchText(v)
	for _, kw := range beginnerKeywords {
		if strings.Contains(text, kw) {
			return model.DifficultyBeginner
		}
	}
	for _, kw := range advancedKeywords {
		if strings.Contains(text, kw) {
			return model.DifficultyAdvanced
		}
	}
	for _, kw := range intermediateKeywords {
		if strings.Contains(text, kw) {
			return model.DifficultyIntermediate
		}
	}
	return model.DifficultyIntermediate
}

// deriveContentType picks the first bucket whose keywords appear, in
// precedence order.
func deriveContentType(v model.Video) model.ContentType {
	text := searchText(v)
	switch {
	case containsAny(text, "game analysis", "analyzed", "analysis", "annotated"):
		return model.ContentGameAnalysis
	case containsAny(text, "tutorial", "how to", "guide", "lesson", "course", "masterclass", "explained"):
		return model.ContentTutorial
	case containsAny(text, "opening", "theory", "repertoire", "variation", "gambit", "defense", "defence"):
		return model.ContentOpeningTheory
	case containsAny(text, "live", "stream"):
		return model.ContentLive
	default:
		return model.ContentGeneral
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// deriveVideoQuality scores production signals: HD and a lesson-length
// duration weigh double.
func deriveVideoQuality(v model.Video, durationSeconds int, durationKnown bool) model.Level {
	score := 0
	if strings.EqualFold(v.ContentDetails.Definition, "hd") {
		score += 2
	}
	if v.ContentDetails.Caption {
		score++
	}
	if v.Status.Embeddable {
		score++
	}
	if v.Status.PublicStatsViewable {
		score++
	}
	if durationKnown && durationSeconds >= 5*60 && durationSeconds <= 45*60 {
		score += 2
	}
	switch {
	case score >= 5:
		return model.LevelHigh
	case score >= 3:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

func deriveEngagement(s model.Statistics) model.EngagementMetrics {
	if s.ViewCount <= 0 {
		return model.EngagementMetrics{}
	}
	views := float64(s.ViewCount)
	return model.EngagementMetrics{
		EngagementRate: round4(float64(s.LikeCount+s.CommentCount) / views),
		LikeRatio:      round4(float64(s.LikeCount) / views),
		CommentRatio:   round4(float64(s.CommentCount) / views),
	}
}

// deriveEducationalValue scores teaching signals: the education category and
// chess topic carry the most weight, educational tags count up to three.
func deriveEducationalValue(v model.Video, engagement model.EngagementMetrics) model.Level {
	score := 0
	if v.CategoryID == "27" {
		score += 3
	}
	for _, topic := range v.TopicCategories {
		if strings.Contains(strings.ToLower(topic), "chess") {
			score += 2
			break
		}
	}
	tagHits := 0
	for _, tag := range v.Tags {
		lower := strings.ToLower(tag)
		for _, kw := range educationalTagKeywords {
			if strings.Contains(lower, kw) {
				tagHits++
				break
			}
		}
	}
	if tagHits > 3 {
		tagHits = 3
	}
	score += tagHits
	if v.ContentDetails.Caption {
		score++
	}
	if engagement.EngagementRate > 0.05 {
		score += 2
	}
	switch {
	case score >= 7:
		return model.LevelHigh
	case score >= 4:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}

func deriveInstructorQuality(tier model.QualityTier) model.Level {
	switch tier {
	case model.TierPremium:
		return model.LevelHigh
	default:
		return model.LevelMedium
	}
}
