// Package prefilter gates indexed videos before any expensive scoring. The
// title, duration and channel-tier checks eliminate the bulk of
// non-educational uploads (tournament streams, blitz sessions, reaction
// content) so the matcher only scores plausible candidates.
package prefilter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chesstrainer/video-indexer/internal/model"
)

// Tier duration floors in seconds. Premium channels earn a lower floor
// because their short-form content is still instructional.
const (
	MinDurationPremium  = 240
	MinDurationStandard = 480
)

// Exclusion families. A title hitting any of these is rejected outright.
var exclusionPatterns = []*regexp.Regexp{
	// Tournament / live coverage
	regexp.MustCompile(`(?i)\b(tournament|live|stream|streamed|round \d+|arena|candidates|olympiad)\b`),
	// Non-chess sports
	regexp.MustCompile(`(?i)\b(football|soccer|basketball|cricket|tennis|boxing)\b`),
	// Casual play formats
	regexp.MustCompile(`(?i)\b(blitz|bullet|hyperbullet|rapid|casual|speedrun)\b`),
	// Reaction / commentary content
	regexp.MustCompile(`(?i)\b(react|reacts|reaction|reacting|commentary)\b`),
	// Podcast / interview formats
	regexp.MustCompile(`(?i)\b(podcast|interview|q&a|ama)\b`),
	// Non-chess topics that show up on chess-adjacent channels
	regexp.MustCompile(`(?i)\b(poker|checkers|backgammon|unboxing|vlog)\b`),
}

// Educational families. At least one must match for acceptance.
var educationalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(opening|openings|defense|defence|gambit|variation|repertoire|theory)\b`),
	regexp.MustCompile(`(?i)\b(tactic|tactics|puzzle|puzzles|combination)\b`),
	regexp.MustCompile(`(?i)\b(endgame|endgames|ending)\b`),
	regexp.MustCompile(`(?i)\b(analysis|analyze|analysed|analyzed|masterclass|lesson|course|guide|explained)\b`),
	regexp.MustCompile(`(?i)\b(strategy|strategic|positional|plan|planning)\b`),
}

var casualLanguagePattern = regexp.MustCompile(`(?i)\b(funny|meme|memes|hilarious|troll|lol|clickbait|insane|crazy)\b`)

// isoDurationPattern matches the P[n]DT[h]H[m]M[s]S period form.
var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDurationSeconds converts an ISO-8601-style period string into
// seconds. Malformed input yields ok=false and the duration check is
// skipped by the caller.
func ParseDurationSeconds(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	// "P" alone carries no information.
	if m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "" {
		return 0, false
	}

	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		total += n * mult
	}
	return total, true
}

// Filter is a pure, stable predicate over videos. Channel tiers are fixed at
// construction.
type Filter struct {
	tiers map[string]model.QualityTier
}

// New builds a filter from the trusted-channel set.
func New(channels []model.TrustedChannel) *Filter {
	tiers := make(map[string]model.QualityTier, len(channels))
	for _, ch := range channels {
		tiers[ch.ChannelID] = ch.Tier
	}
	return &Filter{tiers: tiers}
}

// Keep reports whether the video survives the gates. The predicate is pure:
// same video in, same verdict out.
func (f *Filter) Keep(v model.Video) bool {
	title := strings.ToLower(v.Title)

	for _, p := range exclusionPatterns {
		if p.MatchString(title) {
			return false
		}
	}

	tier := f.tiers[v.ChannelID]

	duration := v.Duration
	if duration == "" {
		duration = v.ContentDetails.Duration
	}
	if seconds, ok := ParseDurationSeconds(duration); ok {
		floor := MinDurationStandard
		if tier == model.TierPremium {
			floor = MinDurationPremium
		}
		if seconds < floor {
			return false
		}
	}

	if tier != model.TierPremium && casualLanguagePattern.MatchString(title) {
		return false
	}

	for _, p := range educationalPatterns {
		if p.MatchString(title) {
			return true
		}
	}
	return false
}

// Result summarizes a batch pass.
type Result struct {
	Candidates          []model.Video
	TotalInput          int
	RejectedCount       int
	ReductionPercentage float64
}

// Apply runs the predicate over a batch and reports the reduction.
func (f *Filter) Apply(videos []model.Video) Result {
	r := Result{TotalInput: len(videos)}
	for _, v := range videos {
		if f.Keep(v) {
			r.Candidates = append(r.Candidates, v)
		} else {
			r.RejectedCount++
		}
	}
	if r.TotalInput > 0 {
		r.ReductionPercentage = float64(r.RejectedCount) / float64(r.TotalInput) * 100
	}
	return r
}
