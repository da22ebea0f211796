package tui

import (
	"io"
	"os"
	"runtime"
	"strings"
)

// OutputMode describes how download progress is rendered.
type OutputMode int

const (
	// ModeTUI renders the live progress table and asks questions with key presses.
	ModeTUI OutputMode = iota
	// ModePlain streams fetcher output as lines and prints a table at the end.
	ModePlain
	// ModeJSON prints one JSON report and nothing else on stdout.
	ModeJSON
)

func (m OutputMode) String() string {
	switch m {
	case ModeTUI:
		return "tui"
	case ModePlain:
		return "plain"
	case ModeJSON:
		return "json"
	}
	return "unknown"
}

// DetectMode picks the output mode. The TUI needs a terminal on both ends:
// the dependency picker and retry confirmation read key presses from in.
func DetectMode(out io.Writer, in io.Reader, noProgress, jsonOutput bool) OutputMode {
	if jsonOutput {
		return ModeJSON
	}
	if noProgress || !isTerminal(out) || !isTerminal(in) {
		return ModePlain
	}
	if runtime.GOOS != "windows" {
		term := os.Getenv("TERM")
		if term == "" || strings.EqualFold(term, "dumb") {
			return ModePlain
		}
	}
	return ModeTUI
}

func isTerminal(v any) bool {
	file, ok := v.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
