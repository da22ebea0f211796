package cli

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"modsync/internal/paths"
	"modsync/internal/registry"
)

func TestCollectionAddAndList(t *testing.T) {
	root := useDataDir(t, false)
	installRoot := filepath.Join(root, "game", "Mods")
	addCollection(t, "294100", installRoot)

	dp, _ := paths.Resolve(root)
	info, err := registry.NewStore(dp).GetCollectionInfo("294100")
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if info.Name != "RimWorld" || info.InstallRoot != installRoot {
		t.Fatalf("unexpected collection %+v", info)
	}

	stdout, _, err := runCommand(t, newCollectionCmd(), "", "list")
	if err != nil {
		t.Fatalf("collection list: %v", err)
	}
	if !strings.Contains(stdout, "INSTALL ROOT") || !strings.Contains(stdout, "294100") || !strings.Contains(stdout, "RimWorld") {
		t.Fatalf("unexpected list output %q", stdout)
	}
}

func TestCollectionAddRequiresInstallRoot(t *testing.T) {
	useDataDir(t, false)
	if _, _, err := runCommand(t, newCollectionCmd(), "", "add", "294100"); err == nil {
		t.Fatal("expected error without --install-root")
	}
}

func TestCollectionAddRejectsInvalidID(t *testing.T) {
	root := useDataDir(t, false)
	_, _, err := runCommand(t, newCollectionCmd(), "", "add", "..", "--install-root", filepath.Join(root, "Mods"))
	if !errors.Is(err, paths.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestCollectionAddUpdatesExisting(t *testing.T) {
	root := useDataDir(t, false)
	installRoot := filepath.Join(root, "Mods")
	addCollection(t, "294100", installRoot)

	if _, _, err := runCommand(t, newCollectionCmd(), "", "add", "294100", "--name", "RimWorld 1.5"); err != nil {
		t.Fatalf("update: %v", err)
	}
	dp, _ := paths.Resolve(root)
	info, _ := registry.NewStore(dp).GetCollectionInfo("294100")
	if info.Name != "RimWorld 1.5" || info.InstallRoot != installRoot {
		t.Fatalf("expected name update with install root kept, got %+v", info)
	}
}

func TestCollectionListJSON(t *testing.T) {
	root := useDataDir(t, false)
	addCollection(t, "294100", filepath.Join(root, "Mods"))
	outputJSON = true

	stdout, _, err := runCommand(t, newCollectionCmd(), "", "list")
	if err != nil {
		t.Fatalf("collection list: %v", err)
	}
	var got []collectionSummary
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if len(got) != 1 || got[0].ID != "294100" || got[0].Items != 0 {
		t.Fatalf("unexpected summaries %+v", got)
	}
}
