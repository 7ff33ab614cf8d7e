package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestWriteThenRead(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Write("day_2026-08-31", payload{Name: "x", Count: 3}))

	var got payload
	require.True(t, store.Read("day_2026-08-31", &got))
	assert.Equal(t, payload{Name: "x", Count: 3}, got)
}

func TestReadMissingKey(t *testing.T) {
	store := newTestStore(t)

	var got payload
	assert.False(t, store.Read("nope", &got))
}

func TestReadCorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	var got payload
	assert.False(t, store.Read("bad", &got))
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store.Write("k", payload{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k.json", entries[0].Name())
}

func TestWriteReplacesExisting(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Write("k", payload{Count: 1}))
	require.NoError(t, store.Write("k", payload{Count: 2}))

	var got payload
	require.True(t, store.Read("k", &got))
	assert.Equal(t, 2, got.Count)
}

func TestListKeysFiltersAndSorts(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Write("day_2026-09-02", payload{}))
	require.NoError(t, store.Write("day_2026-09-01", payload{}))
	require.NoError(t, store.Write("other_thing", payload{}))

	assert.Equal(t, []string{"day_2026-09-01", "day_2026-09-02"}, store.ListKeys("day_"))
	assert.Len(t, store.ListKeys(""), 3)
}

func TestKeyWithPathSeparatorStaysInDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store.Write("a/b", payload{Count: 7}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a_b.json", entries[0].Name())
}
