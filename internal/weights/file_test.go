package weights

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	topo, err := NewTopology(4, 1)
	require.NoError(t, err)

	original := testValues(t, topo, 17)
	path := filepath.Join(t.TempDir(), "weights-100.txt")

	require.NoError(t, Save(path, topo, original))

	loaded, err := Load(path, topo)
	require.NoError(t, err)
	for i := range original {
		for j := range original[i] {
			assert.InDelta(t, original[i][j], loaded[i][j], 1e-5, "tensor %d element %d", i, j)
		}
	}
}

// TestSaveLeavesNoTempFiles: the fresh-file-then-rename discipline must not
// litter the directory, even though it never mutates an existing file in
// place.
func TestSaveLeavesNoTempFiles(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "weights.txt")
	require.NoError(t, Save(path, topo, testValues(t, topo, 1)))
	// Overwrite an existing file the same way.
	require.NoError(t, Save(path, topo, testValues(t, topo, 2)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "weights.txt", entries[0].Name())
}

func TestLoadMissingFile(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "absent.txt"), topo)
	require.Error(t, err)
}

func TestLoadReportsPathOnFormatError(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("3\n"), 0o644))

	_, err = Load(path, topo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.txt")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
