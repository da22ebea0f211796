package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"modsync/internal/paths"
)

// Logger is the minimal logging surface accepted by modsync components.
type Logger interface {
	Printf(format string, v ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Printf(string, ...any) {}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}

// New creates a logger that writes to a timestamped file inside the data
// directory's logs folder. The returned closer should be closed when logging
// is no longer needed.
func New(p paths.DataPaths, command string) (*log.Logger, io.Closer, error) {
	return NewInDir(p.LogsDir, command)
}

// NewInDir is New for an explicit directory.
func NewInDir(dir, command string) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	if command != "" {
		filename = command + "-" + filename
	}
	filePath := filepath.Join(dir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := log.New(file, "", log.LstdFlags|log.Lmicroseconds)
	return logger, file, nil
}
