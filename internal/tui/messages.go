package tui

// RowUpdateMsg updates a single row's fields by column name.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// LogLineMsg appends one fetcher output line to the log tail.
type LogLineMsg struct {
	Line string
}

// PhaseMsg replaces the footer text shown next to the spinner.
type PhaseMsg struct {
	Text string
}

// ConfirmMsg asks the user a yes/no question. The answer is sent on Reply
// exactly once; Reply must be buffered or have a waiting receiver.
type ConfirmMsg struct {
	Question string
	Reply    chan<- bool
}

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
