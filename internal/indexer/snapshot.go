package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// SnapshotTTL is how long a saved index counts as recent enough to reuse
// instead of rebuilding.
const SnapshotTTL = 7 * 24 * time.Hour

type snapshotFile struct {
	SavedAt time.Time `json:"saved_at"`
	Index   *Index    `json:"index"`
}

// SaveIndex atomically serializes the index and its enriched map. Readers
// never observe a partial file.
func (x *Indexer) SaveIndex(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	x.mu.Lock()
	data, err := json.MarshalIndent(snapshotFile{SavedAt: time.Now().UTC(), Index: x.index}, "", "  ")
	x.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal index snapshot: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending index file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // cleanup after commit is a no-op

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write index snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace index snapshot: %w", err)
	}
	return nil
}

// LoadIndex reads a snapshot back into the indexer.
func (x *Indexer) LoadIndex(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index snapshot: %w", err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode index snapshot: %w", err)
	}
	if snap.Index == nil {
		snap.Index = NewIndex()
	}

	x.SetIndex(snap.Index)
	return nil
}

// IsIndexRecent reports whether the snapshot at path was written within the
// TTL. A missing file is simply not recent.
func IsIndexRecent(path string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = SnapshotTTL
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < ttl
}
