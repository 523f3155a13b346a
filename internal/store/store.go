// Package store persists the pipeline's file artifacts: per-position video
// files, the matches checkpoint and the run summary. Filenames derived from
// FENs are a stable wire contract; external readers compute them the same
// way. All writes are atomic so readers never observe partial files.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/chesstrainer/video-indexer/internal/model"
)

// SanitizeFEN maps a position fingerprint to a filesystem-safe name:
// slashes become underscores, whitespace becomes hyphens, lower-cased.
func SanitizeFEN(fen string) string {
	s := strings.ReplaceAll(fen, "/", "_")
	s = strings.Join(strings.Fields(s), "-")
	return strings.ToLower(s)
}

// Store reads and writes the pipeline artifacts under a videos directory.
type Store struct {
	videosDir        string
	consolidatedPath string
}

// New creates a store rooted at videosDir. consolidatedPath may be empty;
// when set, read paths prefer the consolidated index over per-FEN files.
func New(videosDir, consolidatedPath string) *Store {
	return &Store{videosDir: videosDir, consolidatedPath: consolidatedPath}
}

// VideoFilePath returns the canonical per-position file path for a FEN.
func (s *Store) VideoFilePath(fen string) string {
	return filepath.Join(s.videosDir, SanitizeFEN(fen)+".json")
}

// WriteVideoFile persists one opening's enriched videos.
func (s *Store) WriteVideoFile(ov model.OpeningVideos) error {
	file := model.VideoFile{
		FEN:         ov.Opening.FEN,
		Name:        ov.Opening.Name,
		ECO:         ov.Opening.ECO,
		ExtractedAt: time.Now().UTC(),
		VideoCount:  len(ov.Videos),
		Videos:      ov.Videos,
	}
	return writeJSON(s.VideoFilePath(ov.Opening.FEN), file)
}

// ReadVideoFile loads the record for a FEN. The consolidated index, when
// configured and present, is preferred over the per-FEN file.
func (s *Store) ReadVideoFile(fen string) (model.VideoFile, error) {
	if s.consolidatedPath != "" {
		if vf, err := s.readConsolidated(fen); err == nil {
			return vf, nil
		}
	}

	var vf model.VideoFile
	data, err := os.ReadFile(s.VideoFilePath(fen))
	if err != nil {
		return vf, fmt.Errorf("read video file: %w", err)
	}
	if err := json.Unmarshal(data, &vf); err != nil {
		return vf, fmt.Errorf("decode video file: %w", err)
	}
	return vf, nil
}

// HasVideos reports whether a non-empty video file already exists for the
// FEN. Used to skip positions processed by earlier runs.
func (s *Store) HasVideos(fen string) bool {
	vf, err := s.ReadVideoFile(fen)
	return err == nil && vf.VideoCount > 0
}

func (s *Store) readConsolidated(fen string) (model.VideoFile, error) {
	var vf model.VideoFile
	data, err := os.ReadFile(s.consolidatedPath)
	if err != nil {
		return vf, err
	}
	var all map[string]model.VideoFile
	if err := json.Unmarshal(data, &all); err != nil {
		return vf, fmt.Errorf("decode consolidated index: %w", err)
	}
	vf, ok := all[SanitizeFEN(fen)]
	if !ok {
		return vf, fmt.Errorf("fen %q not in consolidated index", fen)
	}
	return vf, nil
}

// WriteCheckpoint persists the matches checkpoint at a phase boundary.
func WriteCheckpoint(path string, cp model.Checkpoint) error {
	return writeJSON(path, cp)
}

// LoadCheckpoint reads a checkpoint back for a resumed run.
func LoadCheckpoint(path string) (model.Checkpoint, error) {
	var cp model.Checkpoint
	data, err := os.ReadFile(path)
	if err != nil {
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

// WriteSummary persists the run summary.
func WriteSummary(path string, sum model.Summary) error {
	return writeJSON(path, sum)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file %s: %w", path, err)
	}
	defer pending.Cleanup() //nolint:errcheck // cleanup after commit is a no-op

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
