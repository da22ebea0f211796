package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modsync/internal/config"
)

// DataPaths captures canonical locations for a modsync data directory.
type DataPaths struct {
	Root        string
	ConfigFile  string
	LogsDir     string
	RunsDir     string
	MetricsFile string
}

// CollectionPaths captures the on-disk layout of one managed collection.
type CollectionPaths struct {
	Dir        string
	InfoFile   string
	ItemsFile  string
	CacheDir   string
	StagingDir string
}

// Resolve determines the data root using the optional --data flag or the
// current working directory when the flag is empty.
func Resolve(dataFlag string) (DataPaths, error) {
	var (
		root string
		err  error
	)

	if dataFlag != "" {
		root, err = filepath.Abs(dataFlag)
	} else {
		root, err = os.Getwd()
	}
	if err != nil {
		return DataPaths{}, fmt.Errorf("resolve data root: %w", err)
	}

	return newDataPaths(root), nil
}

func newDataPaths(root string) DataPaths {
	return DataPaths{
		Root:       root,
		ConfigFile: filepath.Join(root, "modsync.yaml"),
		LogsDir:    filepath.Join(root, "logs"),
		RunsDir:    filepath.Join(root, "runs"),
	}
}

// ApplyConfig relocates paths according to the loaded configuration.
func ApplyConfig(dp DataPaths, cfg config.Config) DataPaths {
	if dir := strings.TrimSpace(cfg.DataDir); dir != "" {
		configFile := dp.ConfigFile
		dp = newDataPaths(resolveRootPath(dp.Root, dir))
		dp.ConfigFile = configFile
	}
	if textfile := strings.TrimSpace(cfg.Metrics.Textfile); textfile != "" {
		dp.MetricsFile = resolveRootPath(dp.Root, textfile)
	}
	return dp
}

// Collection returns the layout for the given collection id.
func (p DataPaths) Collection(collectionID string) CollectionPaths {
	dir := filepath.Join(p.Root, "collections", collectionID)
	return CollectionPaths{
		Dir:        dir,
		InfoFile:   filepath.Join(dir, "collection.json"),
		ItemsFile:  filepath.Join(dir, "items.json"),
		CacheDir:   filepath.Join(dir, "cache"),
		StagingDir: filepath.Join(dir, "staging"),
	}
}

// CollectionsDir returns the directory holding one subdirectory per collection.
func (p DataPaths) CollectionsDir() string {
	return filepath.Join(p.Root, "collections")
}

// ResolveFetcher returns the configured fetcher path made absolute against
// the data root. Bare command names are returned unchanged so they can be
// looked up on PATH.
func (p DataPaths) ResolveFetcher(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return ""
	}
	if filepath.IsAbs(configured) || !strings.ContainsAny(configured, `/\`) {
		return configured
	}
	return filepath.Join(p.Root, configured)
}

func resolveRootPath(root, value string) string {
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(root, value)
}

// EnsureDirs creates the logs and runs directories under the data root.
func (p DataPaths) EnsureDirs() error {
	dirs := []string{p.Root, p.LogsDir, p.RunsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Ensure creates the collection directory hierarchy.
func (c CollectionPaths) Ensure() error {
	dirs := []string{c.Dir, c.CacheDir, c.StagingDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// ErrInvalidID is returned for ids that cannot be used as a single path
// component.
var ErrInvalidID = errors.New("invalid id")

// ValidateID checks that id names exactly one entry inside a directory:
// it must be non-empty, contain no separator and not be "." or "..".
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.TrimSpace(id) != id {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// Within reports whether path is strictly inside dir.
func Within(dir, path string) bool {
	if strings.TrimSpace(dir) == "" || strings.TrimSpace(path) == "" {
		return false
	}
	absDir, errDir := filepath.Abs(dir)
	absPath, errPath := filepath.Abs(path)
	if errDir != nil || errPath != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
