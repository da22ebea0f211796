// Package registry persists the per-collection item registry: which items are
// tracked, whether they are pending or installed, and where they live.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"modsync/internal/paths"
)

// Status enumerates the lifecycle of a tracked item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInstalled Status = "installed"
)

// ErrNotFound is returned when a collection or item is not tracked.
var ErrNotFound = errors.New("not found")

// Item is one unit of externally hosted content tracked by the registry.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	LocalPath   string    `json:"local_path"`
	LastUpdated time.Time `json:"last_updated"`
}

// CollectionInfo describes a managed collection (one game or catalog).
type CollectionInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	InstallRoot string `json:"install_root"`
}

// ItemStore is the registry surface consumed by the acquisition pipeline.
type ItemStore interface {
	GetItems(collectionID string) ([]Item, error)
	SaveItems(collectionID string, items []Item) error
	AddPendingItem(collectionID, id, name string) (bool, error)
	GetCollectionInfo(collectionID string) (CollectionInfo, error)
}

// Store is a file-backed ItemStore rooted at a data directory.
type Store struct {
	Paths paths.DataPaths

	mu sync.Mutex
}

var nowFunc = time.Now

// NewStore returns a Store for the given data paths.
func NewStore(dp paths.DataPaths) *Store {
	return &Store{Paths: dp}
}

// GetItems returns every item tracked for the collection. A collection with
// no items file yields an empty slice.
func (s *Store) GetItems(collectionID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readItems(collectionID)
}

// SaveItems replaces the collection's item list.
func (s *Store) SaveItems(collectionID string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeItems(collectionID, items)
}

// AddPendingItem tracks a new pending item. It returns false when the id is
// already tracked, whatever its status.
func (s *Store) AddPendingItem(collectionID, id, name string) (bool, error) {
	id = strings.TrimSpace(id)
	if err := paths.ValidateID(id); err != nil {
		return false, fmt.Errorf("item id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readItems(collectionID)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.ID == id {
			return false, nil
		}
	}

	items = append(items, Item{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Status:      StatusPending,
		LastUpdated: nowFunc().UTC(),
	})
	if err := s.writeItems(collectionID, items); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveItem stops tracking an item and returns the removed entry.
func (s *Store) RemoveItem(collectionID, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readItems(collectionID)
	if err != nil {
		return Item{}, err
	}
	for i, item := range items {
		if item.ID != id {
			continue
		}
		items = append(items[:i], items[i+1:]...)
		if err := s.writeItems(collectionID, items); err != nil {
			return Item{}, err
		}
		return item, nil
	}
	return Item{}, fmt.Errorf("item %s in collection %s: %w", id, collectionID, ErrNotFound)
}

// GetCollectionInfo reads the collection descriptor.
func (s *Store) GetCollectionInfo(collectionID string) (CollectionInfo, error) {
	cp := s.Paths.Collection(collectionID)
	data, err := os.ReadFile(cp.InfoFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CollectionInfo{}, fmt.Errorf("collection %s: %w", collectionID, ErrNotFound)
		}
		return CollectionInfo{}, fmt.Errorf("read collection info: %w", err)
	}
	var info CollectionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return CollectionInfo{}, fmt.Errorf("decode collection info: %w", err)
	}
	if info.ID == "" {
		info.ID = collectionID
	}
	return info, nil
}

// SaveCollectionInfo writes the collection descriptor, creating the
// collection's directory layout.
func (s *Store) SaveCollectionInfo(info CollectionInfo) error {
	if err := paths.ValidateID(info.ID); err != nil {
		return fmt.Errorf("collection id: %w", err)
	}
	cp := s.Paths.Collection(info.ID)
	if err := cp.Ensure(); err != nil {
		return err
	}
	return writeJSONAtomic(cp.InfoFile, info)
}

// ListCollections returns the ids of every collection with a descriptor.
func (s *Store) ListCollections() ([]string, error) {
	entries, err := os.ReadDir(s.Paths.CollectionsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list collections: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if ok, _ := paths.FileExists(s.Paths.Collection(entry.Name()).InfoFile); ok {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) readItems(collectionID string) ([]Item, error) {
	cp := s.Paths.Collection(collectionID)
	data, err := os.ReadFile(cp.ItemsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("read items: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func (s *Store) writeItems(collectionID string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	cp := s.Paths.Collection(collectionID)
	return writeJSONAtomic(cp.ItemsFile, items)
}

func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// InstalledIDs returns the ids of items whose status is installed.
func InstalledIDs(items []Item) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Status == StatusInstalled {
			out[item.ID] = struct{}{}
		}
	}
	return out
}

// Pending returns the pending items in registry order.
func Pending(items []Item) []Item {
	var out []Item
	for _, item := range items {
		if item.Status == StatusPending {
			out = append(out, item)
		}
	}
	return out
}

var _ ItemStore = (*Store)(nil)
