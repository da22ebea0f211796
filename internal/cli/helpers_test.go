package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"modsync/internal/config"
)

// useDataDir points the --data and --json globals at a fresh directory for
// the duration of the test.
func useDataDir(t *testing.T, jsonOut bool) string {
	t.Helper()
	prevData := dataDir
	prevJSON := outputJSON
	t.Cleanup(func() {
		dataDir = prevData
		outputJSON = prevJSON
	})
	dataDir = t.TempDir()
	outputJSON = jsonOut
	return dataDir
}

func runCommand(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

const fakeFetcher = `#!/bin/sh
stage=""
script=""
while [ $# -gt 0 ]; do
  case "$1" in
    +force_install_dir) stage="$2"; shift 2 ;;
    +runscript) script="$2"; shift 2 ;;
    *) shift ;;
  esac
done
while read -r cmd app id; do
  [ "$cmd" = "workshop_download_item" ] || continue
  if [ "$id" = "404" ]; then
    echo "ERROR! Download item $id failed (Failure)."
    continue
  fi
  dir="$stage/steamapps/workshop/content/$app/$id"
  mkdir -p "$dir"
  echo "$id" > "$dir/payload.txt"
  echo "Success. Downloaded item \"$id\" to \"$dir\" (3 bytes)"
done < "$script"
`

// writeFetcherConfig installs the fake fetcher and a config using it.
func writeFetcherConfig(t *testing.T, root, policy string, maxAttempts int) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake fetcher requires /bin/sh")
	}
	fetcher := filepath.Join(root, "bin", "steamcmd.sh")
	if err := os.MkdirAll(filepath.Dir(fetcher), 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	if err := os.WriteFile(fetcher, []byte(fakeFetcher), 0o755); err != nil {
		t.Fatalf("write fetcher: %v", err)
	}
	cfg := config.Default()
	cfg.Fetcher.Path = fetcher
	cfg.Resolve.Policy = policy
	cfg.Retry.MaxAttempts = maxAttempts
	if err := config.Save(filepath.Join(root, "modsync.yaml"), cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
}

func addCollection(t *testing.T, id, installRoot string) {
	t.Helper()
	if _, _, err := runCommand(t, newCollectionCmd(), "", "add", id, "--name", "RimWorld", "--install-root", installRoot); err != nil {
		t.Fatalf("collection add: %v", err)
	}
}
