package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"modsync/internal/resolve"
	"modsync/internal/tui"
)

const maxPromptTries = 3

// linePrompter asks questions on a line-oriented terminal. It backs the
// prompt policy whenever the interactive TUI is not in use.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{in: bufio.NewReader(in), out: out}
}

func (p *linePrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Decide implements resolve.DecisionMaker. End of input cancels.
func (p *linePrompter) Decide(req resolve.DecisionRequest) (resolve.Decision, error) {
	name := req.ItemName
	if strings.TrimSpace(name) == "" {
		name = req.ItemID
	}
	fmt.Fprintf(p.out, "%s requires items that are not installed:\n", name)
	for i, dep := range req.Missing {
		fmt.Fprintf(p.out, "  %d) %s  %s\n", i+1, dep.ID, tui.NonEmptyOrDash(dep.Name))
	}

	for try := 0; try < maxPromptTries; try++ {
		fmt.Fprint(p.out, "Include [a]ll, [n]one, numbers like 1,3 or [c]ancel? [a]: ")
		answer, err := p.readLine()
		if err != nil {
			fmt.Fprintln(p.out)
			return resolve.Decision{Cancelled: true}, nil
		}
		decision, ok := parseDecision(answer, req.Missing)
		if ok {
			return decision, nil
		}
		fmt.Fprintf(p.out, "Unrecognized answer %q.\n", answer)
	}
	return resolve.Decision{}, fmt.Errorf("no valid answer for %s after %d tries", req.ItemID, maxPromptTries)
}

func parseDecision(answer string, missing []resolve.Dependency) (resolve.Decision, bool) {
	switch strings.ToLower(answer) {
	case "", "a", "all", "y", "yes":
		return resolve.Decision{Chosen: append([]resolve.Dependency(nil), missing...)}, true
	case "n", "none", "no":
		return resolve.Decision{Chosen: []resolve.Dependency{}}, true
	case "c", "cancel", "q", "quit":
		return resolve.Decision{Cancelled: true}, true
	}

	fields := strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == ' ' })
	chosen := make([]resolve.Dependency, 0, len(fields))
	seen := make(map[int]struct{}, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil || n < 1 || n > len(missing) {
			return resolve.Decision{}, false
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		chosen = append(chosen, missing[n-1])
	}
	if len(chosen) == 0 {
		return resolve.Decision{}, false
	}
	return resolve.Decision{Chosen: chosen}, true
}

// Confirm asks a yes/no question defaulting to no.
func (p *linePrompter) Confirm(question string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	answer, err := p.readLine()
	if err != nil {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
