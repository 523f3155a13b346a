package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chesstrainer/video-indexer/internal/model"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openings.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("bare array", func(t *testing.T) {
		t.Parallel()

		path := writeCatalog(t, `[
			{"fen": "f1", "eco": "B01", "name": "Scandinavian Defense", "aliases": ["Center Counter Defense"]},
			{"fen": "f2", "eco": "B20", "name": "Sicilian Defense", "moves": "1. e4 c5"}
		]`)

		openings, err := Load(path)
		require.NoError(t, err)
		require.Len(t, openings, 2)
		assert.Equal(t, "Scandinavian Defense", openings[0].Name)
		assert.Equal(t, []string{"Center Counter Defense"}, openings[0].Aliases)
		assert.Equal(t, "1. e4 c5", openings[1].Moves)
	})

	t.Run("wrapped object", func(t *testing.T) {
		t.Parallel()

		path := writeCatalog(t, `{"openings": [{"fen": "f1", "eco": "C00", "name": "French Defense"}]}`)

		openings, err := Load(path)
		require.NoError(t, err)
		require.Len(t, openings, 1)
		assert.Equal(t, "French Defense", openings[0].Name)
	})

	t.Run("missing fen rejected", func(t *testing.T) {
		t.Parallel()

		path := writeCatalog(t, `[{"eco": "B01", "name": "No FEN"}]`)
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("duplicate fen rejected", func(t *testing.T) {
		t.Parallel()

		path := writeCatalog(t, `[
			{"fen": "f1", "name": "A"},
			{"fen": "f1", "name": "B"}
		]`)
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
	})
}

func TestFilterByECOLetter(t *testing.T) {
	t.Parallel()

	openings := []model.Opening{
		{FEN: "f1", ECO: "A10", Name: "English Opening"},
		{FEN: "f2", ECO: "B20", Name: "Sicilian Defense"},
		{FEN: "f3", ECO: "B01", Name: "Scandinavian Defense"},
	}

	assert.Len(t, FilterByECOLetter(openings, "B"), 2)
	assert.Len(t, FilterByECOLetter(openings, "b"), 2)
	assert.Len(t, FilterByECOLetter(openings, "E"), 0)
	assert.Len(t, FilterByECOLetter(openings, ""), 3)
}

func TestNeedingVideos(t *testing.T) {
	t.Parallel()

	openings := []model.Opening{
		{FEN: "done", Name: "A"},
		{FEN: "todo", Name: "B"},
	}

	remaining, skipped := NeedingVideos(openings, func(fen string) bool { return fen == "done" })
	require.Len(t, remaining, 1)
	assert.Equal(t, "todo", remaining[0].FEN)
	assert.Equal(t, 1, skipped)
}
