package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"modsync/internal/config"
	"modsync/internal/metadata"
	"modsync/internal/paths"
	"modsync/internal/pipeline"
	"modsync/internal/registry"
)

// seedDownload registers a collection whose item 100 depends on 200.
func seedDownload(t *testing.T, root, policy string, maxAttempts int) (string, *registry.Store) {
	t.Helper()
	writeFetcherConfig(t, root, policy, maxAttempts)
	installRoot := filepath.Join(root, "game", "Mods")
	addCollection(t, "294100", installRoot)

	dp, err := paths.Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cache := metadata.NewCache(dp)
	if err := cache.Put("294100", metadata.ItemMetadata{
		ID:           "100",
		Name:         "Combat Extended",
		Dependencies: []metadata.Dependency{{ID: "200", Name: "Harmony"}},
	}); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	return installRoot, registry.NewStore(dp)
}

func itemStatuses(t *testing.T, store *registry.Store) map[string]registry.Status {
	t.Helper()
	items, err := store.GetItems("294100")
	if err != nil {
		t.Fatalf("get items: %v", err)
	}
	out := make(map[string]registry.Status, len(items))
	for _, item := range items {
		out[item.ID] = item.Status
	}
	return out
}

func TestDownloadPlainInstallsWithDependencies(t *testing.T) {
	root := useDataDir(t, false)
	installRoot, store := seedDownload(t, root, config.PolicyAll, 2)

	stdout, stderr, err := runCommand(t, newDownloadCmd(), "", "294100", "100", "404", "--no-progress")
	if err != nil {
		t.Fatalf("download: %v\nstderr: %s", err, stderr)
	}

	for _, want := range []string{"ID", "STATUS", "100", "200", "404", "not-reported"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "Added dependency 200 (Harmony) as pending") {
		t.Fatalf("expected dependency notice, got stderr:\n%s", stderr)
	}
	if !strings.Contains(stderr, "Retrying 1 items (attempt 2)") {
		t.Fatalf("expected a retry of the failed item, got stderr:\n%s", stderr)
	}

	for _, id := range []string{"100", "200"} {
		if _, err := os.Stat(filepath.Join(installRoot, id, "payload.txt")); err != nil {
			t.Fatalf("expected %s installed: %v", id, err)
		}
	}
	statuses := itemStatuses(t, store)
	if statuses["100"] != registry.StatusInstalled || statuses["200"] != registry.StatusInstalled {
		t.Fatalf("unexpected statuses %v", statuses)
	}
	if statuses["404"] != registry.StatusPending {
		t.Fatalf("expected 404 to stay pending, got %v", statuses)
	}
}

func TestDownloadJSON(t *testing.T) {
	root := useDataDir(t, true)
	seedDownload(t, root, config.PolicyNone, 1)

	stdout, _, err := runCommand(t, newDownloadCmd(), "", "294100", "100")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	var payload struct {
		Report  pipeline.Report `json:"report"`
		Skipped []string        `json:"skipped"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if payload.Report.Attempts != 1 || len(payload.Report.Succeeded) != 1 || payload.Report.Succeeded[0] != "100" {
		t.Fatalf("unexpected report %+v", payload.Report)
	}
	if len(payload.Report.Failed) != 0 || len(payload.Report.LogFiles) != 1 {
		t.Fatalf("unexpected report %+v", payload.Report)
	}

	// Installed items are skipped on the next run.
	stdout, _, err = runCommand(t, newDownloadCmd(), "", "294100", "100")
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	payload.Skipped = nil
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if len(payload.Skipped) != 1 || payload.Skipped[0] != "100" {
		t.Fatalf("expected 100 skipped, got %+v", payload.Skipped)
	}
}

func TestDownloadPromptCancel(t *testing.T) {
	root := useDataDir(t, false)
	installRoot, store := seedDownload(t, root, config.PolicyPrompt, 0)

	_, stderr, err := runCommand(t, newDownloadCmd(), "c\n", "294100", "100", "--no-progress")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.Contains(stderr, "Combat Extended requires items that are not installed") {
		t.Fatalf("expected dependency prompt, got:\n%s", stderr)
	}
	if !strings.Contains(stderr, "Download cancelled.") {
		t.Fatalf("expected cancel notice, got:\n%s", stderr)
	}
	if _, err := os.Stat(filepath.Join(installRoot, "100")); !os.IsNotExist(err) {
		t.Fatalf("nothing should be installed after cancel, stat err=%v", err)
	}
	if statuses := itemStatuses(t, store); statuses["100"] != registry.StatusPending {
		t.Fatalf("expected 100 pending, got %v", statuses)
	}
}

func TestDownloadNothingPending(t *testing.T) {
	root := useDataDir(t, false)
	seedDownload(t, root, config.PolicyAll, 1)

	stdout, _, err := runCommand(t, newDownloadCmd(), "", "294100")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.Contains(stdout, "no pending items") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestDownloadRejectsUnknownPolicy(t *testing.T) {
	root := useDataDir(t, false)
	seedDownload(t, root, config.PolicyAll, 1)

	if _, _, err := runCommand(t, newDownloadCmd(), "", "294100", "100", "--policy", "maybe"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
