package acquire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScriptOptions configures a SteamCMD runscript.
type ScriptOptions struct {
	AppID   string
	ItemIDs []string
	// Login defaults to "anonymous".
	Login string
}

// RenderScript returns the runscript text that downloads every item in
// order and then quits.
func RenderScript(opts ScriptOptions) (string, error) {
	appID := strings.TrimSpace(opts.AppID)
	if appID == "" {
		return "", errors.New("script: app id is empty")
	}
	if len(opts.ItemIDs) == 0 {
		return "", errors.New("script: no items to download")
	}
	login := strings.TrimSpace(opts.Login)
	if login == "" {
		login = "anonymous"
	}

	var b strings.Builder
	b.WriteString("@ShutdownOnFailedCommand 1\n")
	b.WriteString("@NoPromptForPassword 1\n")
	fmt.Fprintf(&b, "login %s\n", login)
	for _, id := range opts.ItemIDs {
		id = strings.TrimSpace(id)
		if id == "" || strings.ContainsAny(id, " \t\r\n") {
			return "", fmt.Errorf("script: invalid item id %q", id)
		}
		fmt.Fprintf(&b, "workshop_download_item %s %s\n", appID, id)
	}
	b.WriteString("quit\n")
	return b.String(), nil
}

// WriteScript renders the runscript to path and returns the absolute path.
func WriteScript(path string, opts ScriptOptions) (string, error) {
	text, err := RenderScript(opts)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve script path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("ensure script dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	return abs, nil
}

// SteamCMDArgs returns the argument list that runs script, preceded by any
// extra arguments from configuration.
func SteamCMDArgs(script string, extra []string) []string {
	args := make([]string, 0, len(extra)+2)
	args = append(args, extra...)
	return append(args, "+runscript", script)
}
