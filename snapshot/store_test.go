package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "master_state.json"))
	want := sampleSnapshot(1700000000000)

	require.NoError(t, store.Write(want))

	got, hash, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want.ContentHash(), hash)

	// No stray temp file after a successful publish.
	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStoreReadMissingFile(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	_, _, err := store.Read()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStoreReadCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "master_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"positions": [trunc`), 0o644))

	_, _, err := NewStore(path).Read()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStoreOverwrite(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "master_state.json"))

	first := sampleSnapshot(1)
	require.NoError(t, store.Write(first))

	second := sampleSnapshot(2)
	second.Positions = nil
	require.NoError(t, store.Write(second))

	got, _, err := store.Read()
	require.NoError(t, err)
	assert.Empty(t, got.Positions)
	assert.Equal(t, int64(2), got.ServerTimeMillis)
}
