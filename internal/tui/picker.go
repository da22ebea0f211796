package tui

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"modsync/internal/resolve"
)

type pickerRow struct {
	dep     resolve.Dependency
	checked bool
}

// dependencyPickerModel is a checklist of missing dependencies. Every row
// starts checked.
type dependencyPickerModel struct {
	req       resolve.DecisionRequest
	rows      []pickerRow
	focused   int
	done      bool
	cancelled bool
}

func newDependencyPickerModel(req resolve.DecisionRequest) dependencyPickerModel {
	rows := make([]pickerRow, 0, len(req.Missing))
	for _, dep := range req.Missing {
		rows = append(rows, pickerRow{dep: dep, checked: true})
	}
	return dependencyPickerModel{req: req, rows: rows}
}

func (m dependencyPickerModel) Init() tea.Cmd {
	return nil
}

func (m dependencyPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.focused > 0 {
			m.focused--
		}
	case "down", "j":
		if m.focused < len(m.rows)-1 {
			m.focused++
		}
	case " ", "space", "x":
		if len(m.rows) > 0 {
			m.rows[m.focused].checked = !m.rows[m.focused].checked
		}
	case "a":
		all := true
		for _, row := range m.rows {
			all = all && row.checked
		}
		for i := range m.rows {
			m.rows[i].checked = !all
		}
	case "enter":
		m.done = true
		return m, tea.Quit
	case "esc", "q", "ctrl+c":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m dependencyPickerModel) View() string {
	faint := lipgloss.NewStyle().Faint(true)

	if m.cancelled {
		return faint.Render("  cancelled") + "\n"
	}

	name := m.req.ItemName
	if strings.TrimSpace(name) == "" {
		name = m.req.ItemID
	}

	var sb strings.Builder
	if m.done {
		for _, row := range m.rows {
			if row.checked {
				sb.WriteString(fmt.Sprintf("%s %s\n", faint.Render("  + "+row.dep.ID), row.dep.Name))
			}
		}
		return sb.String()
	}

	focused := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))

	sb.WriteString("\n")
	sb.WriteString(HeaderStyle.Render(fmt.Sprintf("%s requires items that are not installed:", name)))
	sb.WriteString("\n\n")
	for i, row := range m.rows {
		box := "[ ]"
		if row.checked {
			box = "[x]"
		}
		line := fmt.Sprintf("%s %-12s %s", box, row.dep.ID, row.dep.Name)
		if i == m.focused {
			sb.WriteString("▸ " + focused.Render(line) + "\n")
		} else {
			sb.WriteString("  " + line + "\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(faint.Render("  [↑↓] Navigate  [Space] Toggle  [a] All  [Enter] Confirm  [Esc] Cancel download"))
	sb.WriteString("\n")
	return sb.String()
}

func (m dependencyPickerModel) decision() resolve.Decision {
	if m.cancelled || !m.done {
		return resolve.Decision{Cancelled: true}
	}
	chosen := make([]resolve.Dependency, 0, len(m.rows))
	for _, row := range m.rows {
		if row.checked {
			chosen = append(chosen, row.dep)
		}
	}
	return resolve.Decision{Chosen: chosen}
}

// RunDependencyPicker shows the missing dependencies of one item and returns
// the user's selection. Esc cancels the whole download.
func RunDependencyPicker(w io.Writer, req resolve.DecisionRequest) (resolve.Decision, error) {
	model := newDependencyPickerModel(req)
	p := tea.NewProgram(model, tea.WithOutput(w))
	finalModel, err := p.Run()
	if err != nil {
		return resolve.Decision{}, err
	}
	return finalModel.(dependencyPickerModel).decision(), nil
}

// PickerDecider is a resolve.DecisionMaker backed by RunDependencyPicker.
type PickerDecider struct {
	Out io.Writer
}

// Decide implements resolve.DecisionMaker.
func (d PickerDecider) Decide(req resolve.DecisionRequest) (resolve.Decision, error) {
	return RunDependencyPicker(d.Out, req)
}
