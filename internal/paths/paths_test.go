package paths

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"modsync/internal/config"
)

func TestApplyConfigRelative(t *testing.T) {
	root := t.TempDir()
	dp := newDataPaths(root)

	cfg := config.Config{}
	cfg.DataDir = "store"
	cfg.Metrics.Textfile = "metrics/modsync.prom"

	applied := ApplyConfig(dp, cfg)

	expectedRoot := filepath.Join(root, "store")
	if applied.Root != expectedRoot {
		t.Fatalf("expected root %s, got %s", expectedRoot, applied.Root)
	}
	if applied.ConfigFile != dp.ConfigFile {
		t.Fatalf("expected config file to stay at %s, got %s", dp.ConfigFile, applied.ConfigFile)
	}
	if applied.LogsDir != filepath.Join(expectedRoot, "logs") {
		t.Fatalf("unexpected logs dir %s", applied.LogsDir)
	}
	expectedMetrics := filepath.Join(expectedRoot, "metrics/modsync.prom")
	if applied.MetricsFile != expectedMetrics {
		t.Fatalf("expected metrics file %s, got %s", expectedMetrics, applied.MetricsFile)
	}
}

func TestApplyConfigAbsolute(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	dp := newDataPaths(root)

	cfg := config.Config{DataDir: other}
	applied := ApplyConfig(dp, cfg)
	if applied.Root != filepath.Clean(other) {
		t.Fatalf("expected root %s, got %s", other, applied.Root)
	}
	if applied.MetricsFile != "" {
		t.Fatalf("expected no metrics file, got %s", applied.MetricsFile)
	}
}

func TestCollectionLayout(t *testing.T) {
	dp := newDataPaths("/data")
	cp := dp.Collection("294100")
	if cp.Dir != filepath.Join("/data", "collections", "294100") {
		t.Fatalf("unexpected collection dir %s", cp.Dir)
	}
	if cp.ItemsFile != filepath.Join(cp.Dir, "items.json") {
		t.Fatalf("unexpected items file %s", cp.ItemsFile)
	}
	if cp.StagingDir != filepath.Join(cp.Dir, "staging") {
		t.Fatalf("unexpected staging dir %s", cp.StagingDir)
	}
}

func TestResolveFetcher(t *testing.T) {
	dp := newDataPaths("/data")
	cases := map[string]string{
		"":                  "",
		"steamcmd":          "steamcmd",
		"/opt/steamcmd.sh":  "/opt/steamcmd.sh",
		"tools/steamcmd.sh": filepath.Join("/data", "tools/steamcmd.sh"),
	}
	for in, want := range cases {
		if got := dp.ResolveFetcher(in); got != want {
			t.Errorf("ResolveFetcher(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsure(t *testing.T) {
	dp := newDataPaths(t.TempDir())
	if err := dp.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	cp := dp.Collection("107410")
	if err := cp.Ensure(); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	for _, dir := range []string{dp.LogsDir, dp.RunsDir, cp.CacheDir, cp.StagingDir} {
		ok, err := DirExists(dir)
		if err != nil || !ok {
			t.Fatalf("expected %s to exist (err=%v)", dir, err)
		}
	}

	file := filepath.Join(cp.Dir, "x.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok, _ := FileExists(file); !ok {
		t.Fatal("expected file to exist")
	}
	if ok, _ := FileExists(cp.Dir); ok {
		t.Fatal("expected directory not to count as file")
	}
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"818773962", "my-mod_2", "a.b"} {
		if err := ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q): %v", id, err)
		}
	}
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "../x", " 1"} {
		err := ValidateID(id)
		if !errors.Is(err, ErrInvalidID) {
			t.Errorf("ValidateID(%q) = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestWithin(t *testing.T) {
	cases := []struct {
		dir, path string
		want      bool
	}{
		{"/games/Mods", "/games/Mods/123", true},
		{"/games/Mods", "/games/Mods/a/b", true},
		{"/games/Mods", "/games/Mods", false},
		{"/games/Mods", "/games/Mods/.", false},
		{"/games/Mods", "/games", false},
		{"/games/Mods", "/games/Mods/..", false},
		{"/games/Mods", "/games/Other/123", false},
		{"/games/Mods", "/games/Mods/../x", false},
		{"/games/Mods", "/games/Mods2/x", false},
		{"", "/games/Mods/123", false},
	}
	for _, tc := range cases {
		if got := Within(tc.dir, tc.path); got != tc.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tc.dir, tc.path, got, tc.want)
		}
	}
}
