package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modsync/internal/paths"
)

// Dependency is a declared requirement of an item.
type Dependency struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ItemMetadata is the cached description of an item.
type ItemMetadata struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Lookup returns metadata for an item. ok is false when nothing is known
// about the id, which callers treat as "no dependencies".
type Lookup interface {
	Get(collectionID, id string) (ItemMetadata, bool)
}

// Cache stores one JSON document per item under the collection's cache dir.
type Cache struct {
	Paths paths.DataPaths
}

// NewCache returns a Cache rooted at the data paths.
func NewCache(dp paths.DataPaths) *Cache {
	return &Cache{Paths: dp}
}

// Get reads the cached metadata. Missing or undecodable files are reported
// as absent.
func (c *Cache) Get(collectionID, id string) (ItemMetadata, bool) {
	path, err := c.file(collectionID, id)
	if err != nil {
		return ItemMetadata{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ItemMetadata{}, false
	}
	var meta ItemMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return ItemMetadata{}, false
	}
	if meta.ID == "" {
		meta.ID = id
	}
	return meta, true
}

// Put writes metadata for meta.ID.
func (c *Cache) Put(collectionID string, meta ItemMetadata) error {
	path, err := c.file(collectionID, meta.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (c *Cache) file(collectionID, id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := paths.ValidateID(id); err != nil {
		return "", fmt.Errorf("item id: %w", err)
	}
	return filepath.Join(c.Paths.Collection(collectionID).CacheDir, id+".json"), nil
}

// Map is an in-memory Lookup keyed by item id; the collection is ignored.
type Map map[string]ItemMetadata

// Get implements Lookup.
func (m Map) Get(_ string, id string) (ItemMetadata, bool) {
	meta, ok := m[id]
	return meta, ok
}

var (
	_ Lookup = (*Cache)(nil)
	_ Lookup = Map(nil)
)
