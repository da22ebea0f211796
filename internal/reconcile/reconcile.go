// Package reconcile interprets finished fetcher output: it moves reported
// content from staging into the install root, records installed items in
// the registry and collects the items that need another attempt.
package reconcile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"modsync/internal/logx"
	"modsync/internal/paths"
	"modsync/internal/registry"
)

// Reason classifies why an item was not installed.
type Reason string

const (
	ReasonNotReported    Reason = "not-reported"
	ReasonContentMissing Reason = "content-missing"
	ReasonMoveFailed     Reason = "move-failed"
)

// Failure is one item that was not installed.
type Failure struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// Outcome is the result of one reconciliation pass.
type Outcome struct {
	Succeeded []string  `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// Counts returns the number of succeeded and failed items.
func (o Outcome) Counts() (succeeded, failed int) {
	return len(o.Succeeded), len(o.Failed)
}

// FailedIDs returns the ids of failed items in batch order.
func (o Outcome) FailedIDs() []string {
	out := make([]string, 0, len(o.Failed))
	for _, f := range o.Failed {
		out = append(out, f.ID)
	}
	return out
}

// Event is reported for every item as it is classified.
type Event struct {
	ItemID  string
	Success bool
	Path    string
	Failure *Failure
}

// Store is the registry surface reconciliation writes to.
type Store interface {
	GetItems(collectionID string) ([]registry.Item, error)
	SaveItems(collectionID string, items []registry.Item) error
}

// Engine reconciles fetcher logs against the registry and the filesystem.
type Engine struct {
	Store   Store
	Logger  logx.Logger
	OnEvent func(Event)
	Now     func() time.Time
}

// Reconcile classifies every batch item against log, moves staged content of
// successful items into installRoot/<id> (replacing any previous copy) and
// saves all successful items as installed in a single registry write.
// Per-item problems end up in Outcome.Failed; an error is returned only when
// the pass cannot run at all.
func (e *Engine) Reconcile(collectionID string, batch []registry.Item, log, installRoot string) (Outcome, error) {
	if e.Store == nil {
		return Outcome{}, errors.New("reconcile: store is nil")
	}
	installRoot = strings.TrimSpace(installRoot)
	if installRoot == "" {
		return Outcome{}, fmt.Errorf("reconcile: collection %s has no install root", collectionID)
	}
	items, err := e.Store.GetItems(collectionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: load registry: %w", err)
	}
	if err := os.MkdirAll(installRoot, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("reconcile: ensure install root: %w", err)
	}

	logger := logx.OrNop(e.Logger)
	outcome := Outcome{Succeeded: []string{}, Failed: []Failure{}}
	installed := make(map[string]string)
	seen := make(map[string]struct{}, len(batch))

	for _, item := range batch {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}

		dest, failure := e.reconcileItem(item, log, installRoot)
		if failure != nil {
			logger.Printf("reconcile collection=%s item=%s failed: %s", collectionID, item.ID, failure.Message)
			outcome.Failed = append(outcome.Failed, *failure)
			e.emit(Event{ItemID: item.ID, Failure: failure})
			continue
		}
		logger.Printf("reconcile collection=%s item=%s installed at %s", collectionID, item.ID, dest)
		outcome.Succeeded = append(outcome.Succeeded, item.ID)
		installed[item.ID] = dest
		e.emit(Event{ItemID: item.ID, Success: true, Path: dest})
	}

	if len(installed) == 0 {
		return outcome, nil
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	stamp := now().UTC()
	for i := range items {
		dest, ok := installed[items[i].ID]
		if !ok {
			continue
		}
		items[i].Status = registry.StatusInstalled
		items[i].LocalPath = dest
		items[i].LastUpdated = stamp
		delete(installed, items[i].ID)
	}
	// Items installed without ever being tracked are added in batch order.
	for _, item := range batch {
		dest, ok := installed[item.ID]
		if !ok {
			continue
		}
		items = append(items, registry.Item{
			ID:          item.ID,
			Name:        item.Name,
			Status:      registry.StatusInstalled,
			LocalPath:   dest,
			LastUpdated: stamp,
		})
		delete(installed, item.ID)
	}
	if err := e.Store.SaveItems(collectionID, items); err != nil {
		return outcome, fmt.Errorf("reconcile: save registry: %w", err)
	}
	return outcome, nil
}

func (e *Engine) reconcileItem(item registry.Item, log, installRoot string) (string, *Failure) {
	fail := func(reason Reason, format string, args ...any) *Failure {
		return &Failure{ID: item.ID, Name: item.Name, Reason: reason, Message: fmt.Sprintf(format, args...)}
	}

	staged, ok := FindStagingPath(log, item.ID)
	if !ok {
		return "", fail(ReasonNotReported, "item %s was not reported as successful by the fetcher", item.ID)
	}
	info, err := os.Stat(staged)
	if err != nil {
		return "", fail(ReasonContentMissing, "item %s reported success but content is missing at %s", item.ID, staged)
	}

	dest := filepath.Join(installRoot, item.ID)
	if paths.ValidateID(item.ID) != nil || !paths.Within(installRoot, dest) {
		return "", fail(ReasonMoveFailed, "item %s: install path %s is not inside %s", item.ID, dest, installRoot)
	}
	if samePath(staged, dest) {
		return dest, nil
	}
	if paths.Within(staged, dest) {
		return "", fail(ReasonMoveFailed, "item %s: staged content %s contains the install path %s", item.ID, staged, dest)
	}

	// Content staged below the previous install is lifted out before that
	// install is removed.
	if paths.Within(dest, staged) {
		tmp, err := os.MkdirTemp(installRoot, ".lift-")
		if err != nil {
			return "", fail(ReasonMoveFailed, "item %s: create lift directory: %v", item.ID, err)
		}
		// Remove only succeeds once the lifted content has moved on.
		defer os.Remove(tmp)
		lifted := filepath.Join(tmp, item.ID)
		if err := move(staged, lifted, info); err != nil {
			return "", fail(ReasonMoveFailed, "item %s: move %s out of %s: %v", item.ID, staged, dest, err)
		}
		staged = lifted
	}
	if err := os.RemoveAll(dest); err != nil {
		return "", fail(ReasonMoveFailed, "item %s: remove previous install %s: %v", item.ID, dest, err)
	}
	if err := move(staged, dest, info); err != nil {
		return "", fail(ReasonMoveFailed, "item %s: move %s to %s: %v", item.ID, staged, dest, err)
	}
	return dest, nil
}

func (e *Engine) emit(ev Event) {
	if e.OnEvent != nil {
		e.OnEvent(ev)
	}
}

// FindStagingPath searches log for the fetcher's success line for id and
// returns the reported path. The id must match exactly; the token is matched
// case-insensitively.
func FindStagingPath(log, id string) (string, bool) {
	if id == "" {
		return "", false
	}
	pattern := `(?i)Success\. Downloaded item "` + regexp.QuoteMeta(id) + `" to "([^"\r\n]*)"`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false
	}
	match := re.FindStringSubmatch(log)
	if match == nil {
		return "", false
	}
	path := strings.Trim(strings.TrimSpace(match[1]), `'"`)
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}
	return path, true
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	return absA == absB
}
