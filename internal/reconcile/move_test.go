package reconcile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyTree(t *testing.T) {
	src := filepath.Join(t.TempDir(), "123")
	nested := filepath.Join(src, "Textures", "UI")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "About.xml"), []byte("<mod/>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "icon.png"), []byte("png"), 0o600); err != nil {
		t.Fatalf("write nested: %v", err)
	}
	if err := os.Symlink("About.xml", filepath.Join(src, "Preview.xml")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "installed")
	if err := copyTree(src, dest); err != nil {
		t.Fatalf("copyTree: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "Textures", "UI", "icon.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("expected nested file copied, got %q (%v)", data, err)
	}
	info, err := os.Stat(filepath.Join(dest, "Textures", "UI", "icon.png"))
	if err != nil {
		t.Fatalf("stat nested: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600 kept, got %v", info.Mode().Perm())
	}

	linkInfo, err := os.Lstat(filepath.Join(dest, "Preview.xml"))
	if err != nil {
		t.Fatalf("lstat link: %v", err)
	}
	if linkInfo.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected symlink to be recreated, got mode %v", linkInfo.Mode())
	}
	target, err := os.Readlink(filepath.Join(dest, "Preview.xml"))
	if err != nil || target != "About.xml" {
		t.Fatalf("expected link to About.xml, got %q (%v)", target, err)
	}
	data, err = os.ReadFile(filepath.Join(dest, "Preview.xml"))
	if err != nil || string(data) != "<mod/>" {
		t.Fatalf("expected link to resolve inside the copy, got %q (%v)", data, err)
	}

	// The source is left for move to remove.
	if _, err := os.Stat(filepath.Join(src, "About.xml")); err != nil {
		t.Fatalf("expected source untouched: %v", err)
	}
}

func TestCopyFileReplacesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "mod.dll")
	dest := filepath.Join(dir, "out.dll")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if err := os.WriteFile(dest, []byte("old contents"), 0o600); err != nil {
		t.Fatalf("write dest: %v", err)
	}

	if err := copyFile(src, dest, 0o640); err != nil {
		t.Fatalf("copyFile: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "new" {
		t.Fatalf("expected replaced contents, got %q (%v)", data, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("expected mode 0640, got %v", info.Mode().Perm())
	}
	if leftovers, _ := filepath.Glob(filepath.Join(dir, "out.dll.tmp-*")); len(leftovers) != 0 {
		t.Fatalf("expected no temp files, got %v", leftovers)
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := copyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "out"), 0o644); err == nil {
		t.Fatal("expected error for missing source")
	}
}
