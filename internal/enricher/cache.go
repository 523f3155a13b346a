package enricher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"github.com/chesstrainer/video-indexer/internal/model"
)

// DefaultCacheTTL bounds how long a cached enrichment stays valid.
const DefaultCacheTTL = 7 * 24 * time.Hour

const cacheVersion = "2.0"

// cacheFile is the on-disk shape. Metadata lives under meta so it can never
// collide with a video id key.
type cacheFile struct {
	Meta    cacheMeta                      `json:"meta"`
	Entries map[string]model.EnrichedVideo `json:"entries"`
}

type cacheMeta struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Version     string    `json:"version"`
}

// Cache holds enriched videos keyed by video id, persisted as a single JSON
// file. It is single-writer during a run; flushes replace the file atomically
// so concurrent readers never observe a partial write.
type Cache struct {
	path    string
	ttl     time.Duration
	entries map[string]model.EnrichedVideo
	logger  *zap.Logger
}

// OpenCache loads the cache at path. A missing or unreadable file starts an
// empty cache without error; it will be rebuilt over the run.
func OpenCache(path string, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		path:    path,
		ttl:     ttl,
		entries: make(map[string]model.EnrichedVideo),
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("enrichment cache unreadable, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return c
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err == nil && file.Entries != nil {
		c.entries = file.Entries
		return c
	}

	// Older cache files mixed metadata keys and video ids at the top level.
	var legacy map[string]json.RawMessage
	if err := json.Unmarshal(data, &legacy); err != nil {
		logger.Warn("enrichment cache corrupt, starting empty",
			zap.String("path", path), zap.Error(err))
		return c
	}
	for key, raw := range legacy {
		switch key {
		case "lastUpdated", "version", "entries", "meta":
			continue
		}
		var ev model.EnrichedVideo
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Warn("dropping unreadable cache entry", zap.String("videoId", key), zap.Error(err))
			continue
		}
		c.entries[key] = ev
	}
	return c
}

// Lookup returns the cached enrichment for id if it is younger than the TTL.
// A stale entry counts as a miss.
func (c *Cache) Lookup(id string, now time.Time) (model.EnrichedVideo, bool) {
	ev, ok := c.entries[id]
	if !ok {
		return model.EnrichedVideo{}, false
	}
	if now.Sub(ev.Metadata.IndexedAt) >= c.ttl {
		return model.EnrichedVideo{}, false
	}
	return ev, true
}

// Put stores or replaces an entry. It does not persist; call Flush.
func (c *Cache) Put(ev model.EnrichedVideo) {
	c.entries[ev.ID] = ev
}

// Len reports the number of entries, stale ones included.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Flush atomically rewrites the cache file.
func (c *Cache) Flush() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(cacheFile{
		Meta:    cacheMeta{LastUpdated: time.Now().UTC(), Version: cacheVersion},
		Entries: c.entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal enrichment cache: %w", err)
	}

	pending, err := renameio.NewPendingFile(c.path)
	if err != nil {
		return fmt.Errorf("create pending cache file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // cleanup after commit is a no-op

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write enrichment cache: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace enrichment cache: %w", err)
	}
	return nil
}
