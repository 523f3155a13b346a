package matcher

import (
	"sort"
	"strings"

	"github.com/chesstrainer/video-indexer/internal/model"
)

type patternKind int

const (
	kindName patternKind = iota
	kindAlias
	kindAbbreviation
	kindWord
	kindCombo
	kindECO
)

type pattern struct {
	text string
	kind patternKind
}

// stopWords are too generic to identify an opening on their own.
var stopWords = map[string]bool{
	"the":     true,
	"and":     true,
	"for":     true,
	"defense": true,
	"defence": true,
	"attack":  true,
	"gambit":  true,
	"opening": true,
}

// comboKeywords are paired with each significant name word to form
// two-word search patterns in both orders.
var comboKeywords = []string{
	"opening",
	"defense",
	"theory",
	"repertoire",
	"guide",
	"masterclass",
	"explained",
	"variation",
	"course",
}

// generatePatterns derives the lowercase search patterns for one opening:
// the full name, aliases, significant name words, word+keyword combinations
// in both orders, and ECO-code compounds. Patterns shorter than three
// characters are discarded and the result is ordered longest first so the
// most specific pattern wins ties.
func generatePatterns(o model.Opening) []pattern {
	seen := make(map[string]bool)
	var out []pattern

	add := func(text string, kind patternKind) {
		text = strings.ToLower(strings.TrimSpace(text))
		if len(text) < 3 || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, pattern{text: text, kind: kind})
	}

	add(o.Name, kindName)
	if o.Variation != "" {
		add(o.Name+" "+o.Variation, kindName)
		add(o.Variation, kindAlias)
	}
	for _, alias := range o.Aliases {
		kind := kindAlias
		if isAbbreviation(alias) {
			kind = kindAbbreviation
		}
		add(alias, kind)
	}

	words := significantWords(o.Name)
	for _, w := range words {
		add(w, kindWord)
		for _, kw := range comboKeywords {
			add(w+" "+kw, kindCombo)
			add(kw+" "+w, kindCombo)
		}
	}

	if eco := strings.ToLower(strings.TrimSpace(o.ECO)); len(eco) == 3 {
		add(eco, kindECO)
		add(eco+" opening", kindECO)
		add(eco+" chess", kindECO)
		add(eco+" theory", kindECO)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].text) != len(out[j].text) {
			return len(out[i].text) > len(out[j].text)
		}
		return out[i].text < out[j].text
	})
	return out
}

// significantWords splits an opening name into the words that actually
// identify it: longer than three characters and not a stop word.
func significantWords(name string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(name)) {
		w = strings.Trim(w, ",.:;()'\"")
		if len(w) <= 3 || stopWords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

// isAbbreviation treats short all-caps aliases such as "QGD" or "KID" as
// abbreviations for match-type reporting.
func isAbbreviation(alias string) bool {
	alias = strings.TrimSpace(alias)
	if len(alias) < 2 || len(alias) > 4 {
		return false
	}
	for _, r := range alias {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
