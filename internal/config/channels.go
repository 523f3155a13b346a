package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/chesstrainer/video-indexer/internal/model"
)

type channelsFile struct {
	TrustedChannels []model.TrustedChannel `json:"trusted_channels"`
}

// LoadChannels reads the trusted-channel configuration file and returns the
// channels sorted by priority (lower first). The set is read once at start.
func LoadChannels(path string) ([]model.TrustedChannel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read channels file %s: %v", ErrInvalid, path, err)
	}

	var f channelsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse channels file %s: %v", ErrInvalid, path, err)
	}
	if len(f.TrustedChannels) == 0 {
		return nil, fmt.Errorf("%w: channels file %s lists no trusted channels", ErrInvalid, path)
	}

	seen := make(map[string]bool, len(f.TrustedChannels))
	for i, ch := range f.TrustedChannels {
		if ch.ChannelID == "" {
			return nil, fmt.Errorf("%w: channel entry %d missing channel_id", ErrInvalid, i)
		}
		if seen[ch.ChannelID] {
			return nil, fmt.Errorf("%w: duplicate channel_id %s", ErrInvalid, ch.ChannelID)
		}
		seen[ch.ChannelID] = true
		switch ch.Tier {
		case model.TierPremium, model.TierStandard:
		case "":
			f.TrustedChannels[i].Tier = model.TierStandard
		default:
			return nil, fmt.Errorf("%w: channel %s has unknown quality_tier %q", ErrInvalid, ch.ChannelID, ch.Tier)
		}
	}

	sort.SliceStable(f.TrustedChannels, func(i, j int) bool {
		return f.TrustedChannels[i].Priority < f.TrustedChannels[j].Priority
	})

	return f.TrustedChannels, nil
}
