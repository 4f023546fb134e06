package persist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphstore/internal/cache"
)

func sampleSnapshot() cache.Snapshot {
	return cache.Snapshot{
		cache.RootID: {
			"viewer": map[string]any{"__link": "User:1"},
		},
		"User:1": {
			"__typename": "User",
			"id":         "1",
			"name":       "Ada",
			"age":        float64(36),
			"friends":    map[string]any{"__links": []any{"User:2", nil}},
		},
		"User:2": {
			"__typename": "User",
			"id":         "2",
		},
	}
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoad(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, s.Save(sampleSnapshot()))

	got, err := s.Load()
	require.NoError(t, err)
	if diff := cmp.Diff(sampleSnapshot(), got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveReplacesPrevious(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, s.Save(sampleSnapshot()))
	require.NoError(t, s.Save(cache.Snapshot{"User:3": {"id": "3"}}))

	got, err := s.Load()
	require.NoError(t, err)
	if diff := cmp.Diff(cache.Snapshot{"User:3": {"id": "3"}}, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEmpty(t *testing.T) {
	got, err := openMemory(t).Load()
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCacheRestore(t *testing.T) {
	// Pattern: a cache saved by one client hydrates another
	src := cache.New(cache.Options{})
	require.NoError(t, src.Hydrate(sampleSnapshot()))

	s := openMemory(t)
	require.NoError(t, s.SaveCache(src))

	dst := cache.New(cache.Options{})
	require.NoError(t, s.Restore(dst))
	if diff := cmp.Diff(src.Snapshot(), dst.Snapshot()); diff != "" {
		t.Fatalf("restored cache mismatch (-want +got):\n%s", diff)
	}
	root, ok := dst.Record(cache.RootID)
	require.True(t, ok)
	require.Equal(t, cache.Link("User:1"), root["viewer"])
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Save(sampleSnapshot()))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}
