// Package catalog loads the opening catalog consumed by the pipeline. The
// catalog is produced externally; positions are keyed by FEN.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/chesstrainer/video-indexer/internal/model"
)

// Load reads openings from a JSON file. Both a bare array and an
// {"openings": [...]} wrapper are accepted. Entries without a FEN or name
// are rejected; the catalog is a contract, not best-effort input.
func Load(path string) ([]model.Opening, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var openings []model.Opening
	if err := json.Unmarshal(data, &openings); err != nil {
		var wrapper struct {
			Openings []model.Opening `json:"openings"`
		}
		if werr := json.Unmarshal(data, &wrapper); werr != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		openings = wrapper.Openings
	}

	seen := make(map[string]bool, len(openings))
	for i, o := range openings {
		if o.FEN == "" || o.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: missing fen or name", i)
		}
		if seen[o.FEN] {
			return nil, fmt.Errorf("catalog entry %d: duplicate fen %q", i, o.FEN)
		}
		seen[o.FEN] = true
	}
	return openings, nil
}

// FilterByECOLetter keeps openings whose ECO code starts with the given
// letter (A–E, case-insensitive). An empty letter keeps everything.
func FilterByECOLetter(openings []model.Opening, letter string) []model.Opening {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return openings
	}

	var out []model.Opening
	for _, o := range openings {
		if strings.HasPrefix(strings.ToUpper(o.ECO), letter) {
			out = append(out, o)
		}
	}
	return out
}

// NeedingVideos drops openings that already have videos according to the
// predicate, returning the remaining work and the skip count.
func NeedingVideos(openings []model.Opening, hasVideos func(fen string) bool) ([]model.Opening, int) {
	var out []model.Opening
	skipped := 0
	for _, o := range openings {
		if hasVideos(o.FEN) {
			skipped++
			continue
		}
		out = append(out, o)
	}
	return out, skipped
}
