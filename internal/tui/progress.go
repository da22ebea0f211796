package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	tickInterval = 150 * time.Millisecond
	marqueeGap   = "   "
	logTailSize  = 6
	logLineWidth = 100
)

// tickMsg drives the marquee animation.
type tickMsg time.Time

// Column defines a single column in the progress table.
type Column struct {
	Header string
	Width  int
}

// Row holds the field values for a single table row.
type Row struct {
	Key    string
	Fields []string
}

// ProgressModel is a bubbletea model that renders a tabular progress display
// with a tail of the most recent fetcher output underneath.
type ProgressModel struct {
	columns  []Column
	rows     []Row
	rowIndex map[string]int
	title    string
	done     bool
	err      error

	// statusCol caches the index of the STATUS column (-1 if absent).
	statusCol int

	logTail []string
	phase   string
	confirm *ConfirmMsg

	onInterrupt func()
	interrupted bool

	spinner spinner.Model
	tick    int
}

// NewProgressModel creates a progress model with the given title and columns.
func NewProgressModel(title string, columns []Column) ProgressModel {
	statusCol := -1
	for i, c := range columns {
		if strings.EqualFold(c.Header, "STATUS") {
			statusCol = i
			break
		}
	}
	return ProgressModel{
		columns:   columns,
		rows:      nil,
		rowIndex:  make(map[string]int),
		title:     title,
		statusCol: statusCol,
		phase:     "Processing",
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// AddRow pre-populates a row. Call this before the program starts.
func (m *ProgressModel) AddRow(key string, fields []string) {
	padded := make([]string, len(m.columns))
	copy(padded, fields)
	m.rowIndex[key] = len(m.rows)
	m.rows = append(m.rows, Row{Key: key, Fields: padded})
}

// OnInterrupt registers fn to run on the first ctrl+c. The model keeps
// running so the work can wind down; a second ctrl+c quits immediately.
func (m *ProgressModel) OnInterrupt(fn func()) {
	m.onInterrupt = fn
}

func scheduleTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init satisfies the tea.Model interface.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(scheduleTick(), m.spinner.Tick)
}

// Update satisfies the tea.Model interface.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, scheduleTick()

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case RowUpdateMsg:
		m.applyRowUpdate(msg)
		return m, nil

	case LogLineMsg:
		m.appendLog(msg.Line)
		return m, nil

	case PhaseMsg:
		m.phase = msg.Text
		return m, nil

	case ConfirmMsg:
		if m.done {
			msg.Reply <- false
			return m, nil
		}
		m.answer(false)
		m.confirm = &msg
		return m, nil

	case WorkDoneMsg:
		m.answer(false)
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.answer(false)
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		key := msg.String()
		if m.confirm != nil {
			switch key {
			case "y", "Y", "enter":
				m.answer(true)
				return m, nil
			case "n", "N", "esc":
				m.answer(false)
				return m, nil
			}
		}
		switch key {
		case "ctrl+c", "q":
			m.answer(false)
			if m.onInterrupt != nil && !m.interrupted && !m.done {
				m.interrupted = true
				m.phase = "Cancelling"
				m.onInterrupt()
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// answer replies to the pending confirmation, if any.
func (m *ProgressModel) answer(yes bool) {
	if m.confirm == nil {
		return
	}
	m.confirm.Reply <- yes
	m.confirm = nil
}

func (m *ProgressModel) appendLog(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	m.logTail = append(m.logTail, line)
	if len(m.logTail) > logTailSize {
		m.logTail = append([]string(nil), m.logTail[len(m.logTail)-logTailSize:]...)
	}
}

// applyRowUpdate updates a row's fields from a RowUpdateMsg.
func (m *ProgressModel) applyRowUpdate(msg RowUpdateMsg) {
	idx, ok := m.rowIndex[msg.Key]
	if !ok {
		return
	}
	row := &m.rows[idx]
	for j, col := range m.columns {
		if val, exists := msg.Fields[col.Header]; exists {
			row.Fields[j] = val
		}
	}
}

// View satisfies the tea.Model interface.
func (m ProgressModel) View() string {
	if m.done && m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	// Content is truncated or marqueed to fit rather than expanding columns.
	widths := make([]int, len(m.columns))
	for i, col := range m.columns {
		widths[i] = len(col.Header)
		if col.Width > widths[i] {
			widths[i] = col.Width
		}
	}

	var b strings.Builder

	if m.title != "" {
		b.WriteString(HeaderStyle.Render(m.title))
		b.WriteString("\n\n")
	}

	headerParts := make([]string, len(m.columns))
	for i, col := range m.columns {
		headerParts[i] = HeaderStyle.Render(pad(col.Header, widths[i]))
	}
	b.WriteString(strings.Join(headerParts, "  "))
	b.WriteByte('\n')

	for _, row := range m.rows {
		parts := make([]string, len(m.columns))
		for i := range m.columns {
			val := ""
			if i < len(row.Fields) {
				val = row.Fields[i]
			}
			if !m.done && len(strings.TrimSpace(val)) > widths[i] {
				val = marqueeText(val, widths[i], m.tick)
			} else {
				val = TruncateWithEllipsis(val, widths[i])
			}
			if i == m.statusCol {
				parts[i] = StatusStyle(val).Render(pad(val, widths[i]))
			} else {
				parts[i] = pad(val, widths[i])
			}
		}
		b.WriteString(strings.Join(parts, "  "))
		b.WriteByte('\n')
	}

	if !m.done && len(m.logTail) > 0 {
		b.WriteByte('\n')
		for _, line := range m.logTail {
			b.WriteString(LogStyle.Render("  " + TruncateWithEllipsis(line, logLineWidth)))
			b.WriteByte('\n')
		}
	}

	if m.confirm != nil {
		fmt.Fprintf(&b, "\n%s %s\n", PromptStyle.Render(m.confirm.Question), LogStyle.Render("[y/N]"))
		return b.String()
	}

	if !m.done {
		processed, total := m.progressCounts()
		fmt.Fprintf(&b, "\n%s %s %d/%d...\n", m.spinner.View(), m.phase, processed, total)
	}

	return b.String()
}

// progressCounts returns (processed, total) based on how many rows have left
// an in-flight state.
func (m ProgressModel) progressCounts() (int, int) {
	total := len(m.rows)
	processed := 0
	if m.statusCol < 0 {
		return 0, total
	}
	for _, row := range m.rows {
		if m.statusCol < len(row.Fields) {
			if isSettled(strings.TrimSpace(row.Fields[m.statusCol])) {
				processed++
			}
		}
	}
	return processed, total
}

func isSettled(status string) bool {
	switch status {
	case "", "pending", "queued", "downloading", "retrying":
		return false
	}
	return true
}

// Done returns whether the model has finished (work done or error).
func (m ProgressModel) Done() bool {
	return m.done
}

// Err returns any fatal error that occurred.
func (m ProgressModel) Err() error {
	return m.err
}

// Interrupted reports whether the user pressed ctrl+c during the run.
func (m ProgressModel) Interrupted() bool {
	return m.interrupted
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// marqueeText renders a scrolling window over text that exceeds the given width.
// The text slides left on each tick, with a gap between cycles.
func marqueeText(text string, width, tick int) string {
	text = strings.TrimSpace(text)
	if width <= 0 {
		return ""
	}
	if len(text) <= width {
		return text
	}
	cycle := text + marqueeGap
	cycleLen := len(cycle)
	offset := tick % cycleLen
	var result strings.Builder
	result.Grow(width)
	for i := 0; i < width; i++ {
		result.WriteByte(cycle[(offset+i)%cycleLen])
	}
	return result.String()
}

// NonEmptyOrDash returns "-" for empty/whitespace strings.
func NonEmptyOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}

// TruncateWithEllipsis truncates a string and adds "..." if it exceeds max length.
func TruncateWithEllipsis(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
