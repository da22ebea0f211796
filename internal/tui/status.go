package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// StatusWriter keeps a single spinner line on w while work runs outside a
// bubbletea program, such as dependency resolution before the progress
// table starts. Pause clears the line so an interactive prompt can take
// over the terminal; the next Update brings it back.
type StatusWriter struct {
	w        io.Writer
	mu       sync.Mutex
	message  string
	started  time.Time
	paused   bool
	stopped  bool
	done     chan struct{}
	finished chan struct{}
}

// NewStatusWriter starts rendering to w every 100ms. Nothing is drawn
// until the first Update.
func NewStatusWriter(w io.Writer) *StatusWriter {
	sw := &StatusWriter{
		w:        w,
		started:  time.Now(),
		paused:   true,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go sw.loop()
	return sw
}

// Update sets the message, restarts the elapsed timer and resumes drawing.
func (sw *StatusWriter) Update(msg string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	sw.message = msg
	sw.started = time.Now()
	sw.paused = false
}

// Pause clears the line and stops drawing until the next Update.
func (sw *StatusWriter) Pause() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped || sw.paused {
		return
	}
	sw.paused = true
	fmt.Fprint(sw.w, "\r\033[K")
}

// Stop clears the line and ends the render loop. It is safe to call twice.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	wasDrawing := !sw.paused
	sw.mu.Unlock()

	close(sw.done)
	<-sw.finished
	if wasDrawing {
		fmt.Fprint(sw.w, "\r\033[K")
	}
}

func (sw *StatusWriter) loop() {
	defer close(sw.finished)
	frames := spinner.Dot.Frames
	tick := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			if !sw.paused {
				frame := frames[tick%len(frames)]
				tick++
				fmt.Fprintf(sw.w, "\r\033[K%s %s (%s)", frame, sw.message, formatElapsed(time.Since(sw.started)))
			}
			sw.mu.Unlock()
		}
	}
}

// formatElapsed formats a duration for the status line.
func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
