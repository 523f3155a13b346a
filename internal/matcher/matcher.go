// Package matcher scores indexed videos against catalog openings locally.
// No upstream call happens here: everything works off metadata fetched at
// indexing time, so matching is free in quota terms and fully deterministic.
package matcher

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chesstrainer/video-indexer/internal/model"
)

const (
	// DefaultMaxResults caps the matches kept per opening.
	DefaultMaxResults = 10
	// DefaultMinScore rejects weak matches.
	DefaultMinScore = 60

	titleHitScore       = 15
	tagHitScore         = 12
	descriptionHitScore = 5

	// crossFamilyPenalty applies when the title names a different, but not
	// severely incompatible, opening family.
	crossFamilyPenalty = 30

	premiumBoost  = 1.3
	standardBoost = 1.1
)

// Options configure a Matcher. Zero values fall back to defaults.
type Options struct {
	MaxResults  int
	MinScore    int
	Concurrency int
	Tiers       map[string]model.QualityTier
	Logger      *zap.Logger
}

// Matcher pairs openings with candidate videos using the scoring rubric.
type Matcher struct {
	maxResults  int
	minScore    int
	concurrency int
	tiers       map[string]model.QualityTier
	logger      *zap.Logger
}

func New(opts Options) *Matcher {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MinScore <= 0 {
		opts.MinScore = DefaultMinScore
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Tiers == nil {
		opts.Tiers = map[string]model.QualityTier{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Matcher{
		maxResults:  opts.MaxResults,
		minScore:    opts.MinScore,
		concurrency: opts.Concurrency,
		tiers:       opts.Tiers,
		logger:      opts.Logger,
	}
}

// MatchOpenings scores every (opening, video) pair and returns, per opening,
// the top matches ordered by score. Openings are processed concurrently but
// the result preserves catalog order. The optional progress callback receives
// (openings processed, total, matches so far).
func (m *Matcher) MatchOpenings(ctx context.Context, openings []model.Opening, videos []model.Video, progress func(done, total, matches int)) ([]model.OpeningMatches, error) {
	results := make([]model.OpeningMatches, len(openings))
	var done, matchCount atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, opening := range openings {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			selected := m.matchOne(opening, videos)
			results[i] = model.OpeningMatches{
				Opening: opening,
				Matches: selected,
			}
			total := matchCount.Add(int64(len(selected)))
			if progress != nil {
				progress(int(done.Add(1)), len(openings), int(total))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// matchOne scores all candidates against a single opening and keeps the top
// maxResults, ties broken by view count then video id for stable output.
func (m *Matcher) matchOne(opening model.Opening, videos []model.Video) []model.Match {
	patterns := generatePatterns(opening)
	family := FamilyForECO(opening.ECO)

	var matches []model.Match
	for _, v := range videos {
		score, matchType, ok := m.score(opening, family, patterns, v)
		if !ok || score < m.minScore {
			continue
		}
		matches = append(matches, model.Match{Video: v, Score: score, Type: matchType})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Video.Statistics.ViewCount != matches[j].Video.Statistics.ViewCount {
			return matches[i].Video.Statistics.ViewCount > matches[j].Video.Statistics.ViewCount
		}
		return matches[i].Video.ID < matches[j].Video.ID
	})

	if len(matches) > m.maxResults {
		matches = matches[:m.maxResults]
	}
	return matches
}

// score applies the rubric to one pair. ok is false when no pattern matched
// at all or when a severe family conflict voids the pairing.
func (m *Matcher) score(opening model.Opening, family Family, patterns []pattern, v model.Video) (int, model.MatchType, bool) {
	title := strings.ToLower(v.Title)
	description := strings.ToLower(v.Description)
	tags := make([]string, len(v.Tags))
	for i, t := range v.Tags {
		tags[i] = strings.ToLower(t)
	}

	base := 0
	var nameInTitle, exactHit, abbrevHit, partialInTitle, ecoHit bool
	for _, p := range patterns {
		hit := false
		if strings.Contains(title, p.text) {
			base += titleHitScore
			hit = true
			switch p.kind {
			case kindName:
				nameInTitle = true
			case kindWord, kindCombo:
				partialInTitle = true
			}
		}
		for _, tag := range tags {
			if strings.Contains(tag, p.text) {
				base += tagHitScore
				hit = true
				break
			}
		}
		if strings.Contains(description, p.text) {
			base += descriptionHitScore
			hit = true
		}
		if !hit {
			continue
		}
		switch p.kind {
		case kindName, kindAlias:
			exactHit = true
		case kindAbbreviation:
			abbrevHit = true
		case kindECO:
			ecoHit = true
		}
	}
	if base == 0 {
		return 0, "", false
	}

	// Family guard: a title naming a severely incompatible family voids the
	// match regardless of pattern hits.
	if conflict := conflictingFamily(v.Title, family); conflict != FamilyUnknown {
		if IsSevereConflict(conflict, family) {
			return 0, "", false
		}
		base -= crossFamilyPenalty
	}

	bonus := 0
	if views := v.Statistics.ViewCount; views > 0 {
		bonus += int(2 * math.Log10(float64(views)))
		engagement := float64(v.Statistics.LikeCount+v.Statistics.CommentCount) / float64(views)
		eb := int(engagement * 1000)
		if eb > 10 {
			eb = 10
		}
		bonus += eb
	}
	if strings.EqualFold(v.ContentDetails.Definition, "hd") {
		bonus += 3
	}
	if v.ContentDetails.Caption {
		bonus += 2
	}
	if v.CategoryID == "27" { // Education
		bonus += 5
	}
	for _, topic := range v.TopicCategories {
		t := strings.ToLower(topic)
		if strings.Contains(t, "chess") || strings.Contains(t, "strategy") || strings.Contains(t, "board_game") {
			bonus += 8
			break
		}
	}
	if strings.HasPrefix(strings.ToLower(v.DefaultLanguage), "en") {
		bonus += 2
	}

	boost := 1.0
	switch m.tiers[v.ChannelID] {
	case model.TierPremium:
		boost = premiumBoost
	case model.TierStandard:
		boost = standardBoost
	}

	score := int(float64(base+bonus) * boost)
	if score < 0 {
		score = 0
	}

	matchType := model.MatchPartialTitle
	switch {
	case nameInTitle:
		matchType = model.MatchTitleExact
	case exactHit:
		matchType = model.MatchExact
	case abbrevHit:
		matchType = model.MatchAbbreviation
	case partialInTitle:
		matchType = model.MatchPartialTitle
	case ecoHit:
		matchType = model.MatchECO
	case sameFamilyCue(v.Title, family):
		matchType = model.MatchFamily
	}

	return score, matchType, true
}

// sameFamilyCue reports whether the title names the opening's own family.
func sameFamilyCue(title string, family Family) bool {
	for _, cue := range familyCues {
		if cue.family == family && cue.pattern.MatchString(title) {
			return true
		}
	}
	return false
}
