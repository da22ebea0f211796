// Package acquire drives a single external fetch process per batch and
// streams its merged stdout/stderr to observers line by line.
package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// CancelLine is emitted once when a live run is cancelled.
const CancelLine = "--- task cancelled by user ---"

// terminateGrace is how long a cancelled process may take to exit after the
// termination request before it is killed.
var terminateGrace = 5 * time.Second

// Spec describes one fetcher invocation.
type Spec struct {
	Executable string
	// Script, when set, must exist before the process is spawned. It is not
	// appended to Args; callers build the argument list.
	Script string
	Args   []string
	Dir    string
	Env    []string
}

// Handlers receive run events. All of them are invoked from the run's own
// goroutine, never concurrently with each other.
type Handlers struct {
	OnLine     func(line string)
	OnComplete func(log string)
	OnFatal    func(message string)
}

// Result is produced once per run.
type Result struct {
	Log          string
	ExitObserved bool
	ExitCode     int
	Cancelled    bool
	// Fatal is set when the run was reported through OnFatal.
	Fatal string
}

// Handle controls a running fetch.
type Handle struct {
	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
	result     Result
}

// Run validates spec and starts the fetcher in the background. Problems with
// the executable, the script, or spawning are reported through OnFatal; Run
// itself never fails. Cancelling ctx has the same effect as Handle.Cancel.
func Run(ctx context.Context, spec Spec, handlers Handlers) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	h := &Handle{
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.run(ctx, spec, handlers)
	return h
}

// Cancel requests termination of the fetch process. It emits CancelLine when
// the process is still running and is a no-op once the run has finished.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancelCh) })
}

// Done is closed when the run has finished and every handler has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

func (h *Handle) run(ctx context.Context, spec Spec, handlers Handlers) {
	defer close(h.done)

	fatal := func(msg string) {
		h.result.Fatal = msg
		if handlers.OnFatal != nil {
			handlers.OnFatal(msg)
		}
	}

	executable, msg := validate(spec)
	if msg != "" {
		fatal(msg)
		return
	}

	cmd := exec.Command(executable, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	configureProcess(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		fatal(fmt.Sprintf("unexpected error preparing fetcher output: %v", err))
		return
	}
	defer pr.Close()
	// Same writer for both streams: one merged, ordered stream.
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			fatal(fmt.Sprintf("fetcher executable not found: %q", executable))
		} else {
			fatal(fmt.Sprintf("unexpected error starting fetcher: %v", err))
		}
		return
	}
	pw.Close()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go readLines(pr, lines, readErr)

	var (
		log       strings.Builder
		killTimer *time.Timer
	)
	emit := func(line string) {
		log.WriteString(line)
		log.WriteByte('\n')
		if handlers.OnLine != nil {
			handlers.OnLine(line)
		}
	}
	terminate := func() {
		if h.result.Cancelled {
			return
		}
		h.result.Cancelled = true
		terminateProcess(cmd)
		killTimer = time.AfterFunc(terminateGrace, func() { killProcess(cmd) })
		emit(CancelLine)
	}

	cancelCh := h.cancelCh
	ctxDone := ctx.Done()
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			emit(line)
		case <-cancelCh:
			cancelCh = nil
			terminate()
		case <-ctxDone:
			ctxDone = nil
			terminate()
		}
	}

	var streamErr error
	select {
	case streamErr = <-readErr:
	default:
	}
	if streamErr != nil {
		killProcess(cmd)
	}

	waitErr := cmd.Wait()
	if killTimer != nil {
		killTimer.Stop()
	}
	h.result.Log = log.String()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		h.result.ExitObserved = true
	case errors.As(waitErr, &exitErr):
		h.result.ExitObserved = true
		h.result.ExitCode = exitErr.ExitCode()
	}

	if streamErr != nil {
		fatal(fmt.Sprintf("error reading fetcher output: %v", streamErr))
		return
	}
	if handlers.OnComplete != nil {
		handlers.OnComplete(h.result.Log)
	}
}

func readLines(r io.Reader, lines chan<- string, errs chan<- error) {
	defer close(lines)
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				errs <- err
			}
			return
		}
	}
}

// validate checks the executable and script before anything is spawned and
// returns the resolved executable or a fatal message.
func validate(spec Spec) (string, string) {
	executable := strings.TrimSpace(spec.Executable)
	if executable == "" {
		return "", "fetcher executable is not configured"
	}
	resolved, err := LocateExecutable(executable)
	if err != nil {
		return "", fmt.Sprintf("fetcher executable not found: %q", executable)
	}
	if spec.Script != "" {
		info, err := os.Stat(spec.Script)
		if err != nil {
			return "", fmt.Sprintf("fetch script not found: %q", spec.Script)
		}
		if info.IsDir() {
			return "", fmt.Sprintf("fetch script is a directory: %q", spec.Script)
		}
	}
	return resolved, ""
}

// LocateExecutable resolves a configured fetcher. Values containing a path
// separator must exist on disk; bare names are looked up on PATH.
func LocateExecutable(configured string) (string, error) {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return "", errors.New("fetcher executable is not configured")
	}
	if !strings.ContainsAny(configured, `/\`) {
		path, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("locate %s: %w", configured, err)
		}
		return path, nil
	}
	info, err := os.Stat(configured)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", configured, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", configured)
	}
	return configured, nil
}
