package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "her-test.db")
	s, err := Open(path, 10, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	_, err := s.db.Exec("INSERT INTO promotions (page_sig, frame_hash, label_key, selector, updated_at) VALUES ('p','f','l','s', 0)")
	require.NoError(t, err)
}

func TestRecordAndLookupSuccess(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='x']", true))

	selector, ok, err := s.Lookup("page1", "frame1", "submit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "//button[@id='x']", selector)
}

func TestLookupMissingReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Lookup("nope", "nope", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupRejectsAllFailureEntries(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='x']", false))

	_, ok, err := s.Lookup("page1", "frame1", "submit")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupPrefersHigherSuccessCount(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='a']", true))
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='b']", true))
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='b']", true))

	selector, ok, err := s.Lookup("page1", "frame1", "submit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "//button[@id='b']", selector)
}

func TestDemotePenalizesSelector(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='x']", true))
	require.NoError(t, s.Demote("page1", "frame1", "submit", "//button[@id='x']"))

	entries, err := s.ListEntries("page1", "frame1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].SuccessCount)
	assert.Equal(t, 1, entries[0].FailureCount)
	assert.Equal(t, 1, entries[0].ConsecutiveFailures)
}

func TestDemoteExcludesSelectorAfterThreshold(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='x']", true))

	for i := 0; i < demoteThreshold; i++ {
		require.NoError(t, s.Demote("page1", "frame1", "submit", "//button[@id='x']"))
	}

	_, ok, err := s.Lookup("page1", "frame1", "submit")
	require.NoError(t, err)
	assert.False(t, ok, "a selector with demoteThreshold consecutive failures must stop being returned even with a positive lifetime success_count")
}

func TestConsecutiveFailuresResetsOnSuccess(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='x']", true))
	require.NoError(t, s.Demote("page1", "frame1", "submit", "//button[@id='x']"))
	require.NoError(t, s.Record("page1", "frame1", "submit", "//button[@id='x']", true))

	entries, err := s.ListEntries("page1", "frame1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].ConsecutiveFailures)
}

func TestScopeLabelKeyPrefixesExactMode(t *testing.T) {
	assert.Equal(t, "no-semantic:submit", ScopeLabelKey("submit", false))
	assert.Equal(t, "submit", ScopeLabelKey("submit", true))
}

func TestEmbeddingCachePutAndGet(t *testing.T) {
	s := openTestStore(t)
	cache := NewEmbeddingCache(s)

	vec := []float32{0.1, 0.2, 0.3}
	cache.Put("hash1", "minilm-local", vec)

	got, ok := cache.Get("hash1", "minilm-local")
	require.True(t, ok)
	assert.InDeltaSlice(t, vec, got, 0.0001)
}

func TestEmbeddingCacheMissReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	cache := NewEmbeddingCache(s)
	_, ok := cache.Get("nope", "minilm-local")
	assert.False(t, ok)
}

func TestEmbeddingCacheScopedByModelName(t *testing.T) {
	s := openTestStore(t)
	cache := NewEmbeddingCache(s)
	cache.Put("hash1", "minilm-local", []float32{1, 2})

	_, ok := cache.Get("hash1", "markuplm-local")
	assert.False(t, ok)
}

func TestMaintainNoopsBelowSoftCap(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Maintain())
}
