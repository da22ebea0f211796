package tui

import (
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork creates a bubbletea program, launches workFn in a goroutine,
// and blocks until both the program and workFn have returned. workFn
// receives a send callback that wraps tea.Program.Send with a small yield to
// give the renderer time to draw between updates.
//
// A ConfirmMsg passed to send blocks until the user answers. Its Reply
// receives false when the program exits first, so Reply should be buffered.
func RunWithWork(out io.Writer, model ProgressModel, workFn func(send func(tea.Msg))) error {
	p := tea.NewProgram(model, tea.WithOutput(out))
	finished := make(chan struct{})
	workDone := make(chan struct{})

	send := func(msg tea.Msg) {
		if c, ok := msg.(ConfirmMsg); ok {
			inner := make(chan bool, 1)
			p.Send(ConfirmMsg{Question: c.Question, Reply: inner})
			select {
			case yes := <-inner:
				c.Reply <- yes
			case <-finished:
				c.Reply <- false
			}
			return
		}
		p.Send(msg)
		time.Sleep(5 * time.Millisecond)
	}

	go func() {
		defer close(workDone)
		// Let bubbletea start its event loop and render the initial frame.
		time.Sleep(50 * time.Millisecond)
		workFn(send)
		p.Send(WorkDoneMsg{})
	}()

	finalModel, err := p.Run()
	close(finished)
	<-workDone
	if err != nil {
		return err
	}
	if m, ok := finalModel.(ProgressModel); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}

// Confirm asks question through send and returns the answer.
func Confirm(send func(tea.Msg), question string) bool {
	reply := make(chan bool, 1)
	send(ConfirmMsg{Question: question, Reply: reply})
	return <-reply
}
