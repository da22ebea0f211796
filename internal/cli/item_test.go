package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"modsync/internal/paths"
	"modsync/internal/registry"
)

func TestItemAddListRemove(t *testing.T) {
	root := useDataDir(t, false)
	addCollection(t, "294100", filepath.Join(root, "Mods"))

	stdout, _, err := runCommand(t, newItemCmd(), "", "add", "294100", "818773962", "--name", "HugsLib")
	if err != nil {
		t.Fatalf("item add: %v", err)
	}
	if !strings.Contains(stdout, "Added 818773962 as pending") {
		t.Fatalf("unexpected add output %q", stdout)
	}
	stdout, _, err = runCommand(t, newItemCmd(), "", "add", "294100", "818773962")
	if err != nil {
		t.Fatalf("item add again: %v", err)
	}
	if !strings.Contains(stdout, "already tracked") {
		t.Fatalf("expected duplicate notice, got %q", stdout)
	}

	outputJSON = true
	stdout, _, err = runCommand(t, newItemCmd(), "", "list", "294100", "--status", "pending")
	if err != nil {
		t.Fatalf("item list: %v", err)
	}
	var listed struct {
		Items []registry.Item `json:"items"`
	}
	if err := json.Unmarshal([]byte(stdout), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Items) != 1 || listed.Items[0].Name != "HugsLib" {
		t.Fatalf("unexpected items %+v", listed.Items)
	}
	outputJSON = false

	if _, _, err := runCommand(t, newItemCmd(), "", "remove", "294100", "818773962"); err != nil {
		t.Fatalf("item remove: %v", err)
	}
	if _, _, err := runCommand(t, newItemCmd(), "", "remove", "294100", "818773962"); err == nil {
		t.Fatal("expected error removing an untracked item")
	}
}

func TestItemAddNameWithManyIDs(t *testing.T) {
	root := useDataDir(t, false)
	addCollection(t, "294100", filepath.Join(root, "Mods"))
	if _, _, err := runCommand(t, newItemCmd(), "", "add", "294100", "1", "2", "--name", "x"); err == nil {
		t.Fatal("expected error for --name with several ids")
	}
}

func TestItemRemoveDeletesFiles(t *testing.T) {
	root := useDataDir(t, false)
	installRoot := filepath.Join(root, "Mods")
	addCollection(t, "294100", installRoot)

	dest := filepath.Join(installRoot, "2009463077")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dp, _ := paths.Resolve(root)
	store := registry.NewStore(dp)
	if err := store.SaveItems("294100", []registry.Item{{ID: "2009463077", Status: registry.StatusInstalled, LocalPath: dest}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, _, err := runCommand(t, newItemCmd(), "", "remove", "294100", "2009463077", "--delete-files"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("expected %s deleted, stat err=%v", dest, err)
	}
}
