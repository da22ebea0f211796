package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"modsync/internal/paths"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	dp, err := paths.Resolve(t.TempDir())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return NewCache(dp)
}

func TestCacheGetMissing(t *testing.T) {
	cache := testCache(t)
	if _, ok := cache.Get("294100", "123"); ok {
		t.Fatal("expected missing metadata to be absent")
	}
}

func TestCachePutGet(t *testing.T) {
	cache := testCache(t)
	meta := ItemMetadata{
		ID:   "123",
		Name: "Combat Extended",
		Dependencies: []Dependency{
			{ID: "456", Name: "Harmony"},
			{ID: "789"},
		},
	}
	if err := cache.Put("294100", meta); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := cache.Get("294100", "123")
	if !ok {
		t.Fatal("expected metadata")
	}
	if got.Name != "Combat Extended" || len(got.Dependencies) != 2 || got.Dependencies[0].ID != "456" {
		t.Fatalf("unexpected metadata %+v", got)
	}
	if _, ok := cache.Get("107410", "123"); ok {
		t.Fatal("expected metadata to be scoped per collection")
	}
}

func TestCacheCorruptIsAbsent(t *testing.T) {
	cache := testCache(t)
	dir := cache.Paths.Collection("294100").CacheDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "123.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := cache.Get("294100", "123"); ok {
		t.Fatal("expected corrupt metadata to be absent")
	}
}

func TestCacheRejectsPathIDs(t *testing.T) {
	cache := testCache(t)
	if err := cache.Put("294100", ItemMetadata{ID: "../escape"}); err == nil {
		t.Fatal("expected error for path-like id")
	}
	if _, ok := cache.Get("294100", ".."); ok {
		t.Fatal("expected path-like id to be absent")
	}
}
