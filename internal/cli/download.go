package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"modsync/internal/config"
	"modsync/internal/metadata"
	"modsync/internal/metrics"
	"modsync/internal/pipeline"
	"modsync/internal/reconcile"
	"modsync/internal/registry"
	"modsync/internal/resolve"
	"modsync/internal/tui"
)

var (
	downloadForce       bool
	downloadPolicy      string
	downloadMaxAttempts int
	downloadNoProgress  bool
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <collection> [item-id...]",
		Short: "Download items and their dependencies, then install them",
		Long: "Download the given items, or every pending item when none are given.\n" +
			"Missing dependencies are handled according to resolve.policy.",
		Args: cobra.MinimumNArgs(1),
		RunE: runDownload,
	}

	cmd.Flags().BoolVar(&downloadForce, "force", false, "Re-download items that are already installed")
	cmd.Flags().StringVar(&downloadPolicy, "policy", "", "Override resolve.policy (prompt, all, none)")
	cmd.Flags().IntVar(&downloadMaxAttempts, "max-attempts", 0, "Override retry.max_attempts (0 asks before every retry)")
	cmd.Flags().BoolVar(&downloadNoProgress, "no-progress", false, "Disable interactive progress output")
	return cmd
}

var downloadColumns = []tui.Column{
	{Header: "ID", Width: 12},
	{Header: "NAME", Width: 24},
	{Header: "STATUS", Width: 15},
	{Header: "PATH", Width: 40},
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := loadEnv("download")
	if err != nil {
		return err
	}
	defer e.Close()

	collectionID := args[0]
	store := registry.NewStore(e.paths)
	if _, err := store.GetCollectionInfo(collectionID); err != nil {
		return err
	}
	cache := metadata.NewCache(e.paths)

	requested, err := requestedItems(store, cache, collectionID, args[1:])
	if err != nil {
		return err
	}
	if len(requested) == 0 {
		if outputJSON {
			return writeDownloadJSON(cmd, pipeline.Report{CollectionID: collectionID}, nil)
		}
		cmd.Printf("Nothing to download: collection %s has no pending items.\n", collectionID)
		return nil
	}

	policy := e.cfg.Resolve.Policy
	if downloadPolicy != "" {
		policy = strings.ToLower(strings.TrimSpace(downloadPolicy))
	}
	maxAttempts := e.cfg.Retry.MaxAttempts
	if cmd.Flags().Changed("max-attempts") {
		maxAttempts = downloadMaxAttempts
	}
	if maxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative (got %d)", maxAttempts)
	}

	mode := tui.DetectMode(cmd.OutOrStdout(), cmd.InOrStdin(), downloadNoProgress, outputJSON)
	prompter := newLinePrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	decider, err := chooseDecider(policy, mode, prompter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var status *tui.StatusWriter
	if mode == tui.ModeTUI {
		status = tui.NewStatusWriter(cmd.ErrOrStderr())
		defer status.Stop()
		decider = statusDecider{inner: decider, status: status}
	}

	rec := metrics.New()
	defer e.writeMetrics(rec)

	p := &pipeline.Pipeline{
		Paths:    e.paths,
		Store:    store,
		Metadata: cache,
		Decider:  decider,
		Fetcher:  e.fetcher(),
		Logger:   e.logger,
		Metrics:  rec,
	}
	added := 0
	p.Events.OnDependency = func(dep resolve.Dependency, isNew bool) {
		if !isNew {
			return
		}
		added++
		switch {
		case status != nil:
			status.Update(fmt.Sprintf("Resolving dependencies (%d added)", added))
		case !outputJSON:
			cmd.PrintErrf("Added dependency %s (%s) as pending\n", dep.ID, tui.NonEmptyOrDash(dep.Name))
		}
	}

	e.printf("download collection=%s requested=%d policy=%s max_attempts=%d mode=%s", collectionID, len(requested), policy, maxAttempts, mode)
	if status != nil {
		status.Update("Resolving dependencies")
	}
	plan, err := p.Plan(pipeline.DownloadRequest{
		CollectionID: collectionID,
		Requested:    requested,
		Force:        downloadForce,
	})
	if status != nil {
		status.Stop()
	}
	if errors.Is(err, resolve.ErrCancelled) {
		e.printf("download collection=%s cancelled during dependency resolution", collectionID)
		if outputJSON {
			return writeDownloadJSON(cmd, pipeline.Report{CollectionID: collectionID, Cancelled: true}, nil)
		}
		cmd.PrintErrln("Download cancelled.")
		return nil
	}
	if err != nil {
		return err
	}
	if len(plan.Batch) == 0 {
		if outputJSON {
			return writeDownloadJSON(cmd, pipeline.Report{CollectionID: collectionID}, plan.Skipped)
		}
		cmd.Printf("Nothing to download: every requested item is already installed (use --force to re-download).\n")
		return nil
	}

	var report pipeline.Report
	if mode == tui.ModeTUI {
		report, err = runDownloadTUI(ctx, cmd, p, plan, maxAttempts)
	} else {
		report, err = runDownloadPlain(ctx, cmd, p, plan, maxAttempts, prompter)
	}
	if err != nil {
		return err
	}
	e.printf("download collection=%s attempts=%d succeeded=%d failed=%d cancelled=%t",
		collectionID, report.Attempts, len(report.Succeeded), len(report.Failed), report.Cancelled)

	switch mode {
	case tui.ModeJSON:
		return writeDownloadJSON(cmd, report, plan.Skipped)
	case tui.ModeTUI:
		printDownloadSummary(cmd.OutOrStdout(), report)
	default:
		writeDownloadTable(cmd.OutOrStdout(), plan, report)
		printDownloadSummary(cmd.OutOrStdout(), report)
	}
	return nil
}

// requestedItems returns the items named on the command line, tracking any
// that are new as pending, or every pending item when ids is empty.
func requestedItems(store *registry.Store, cache metadata.Lookup, collectionID string, ids []string) ([]registry.Item, error) {
	items, err := store.GetItems(collectionID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return registry.Pending(items), nil
	}

	tracked := make(map[string]registry.Item, len(items))
	for _, item := range items {
		tracked[item.ID] = item
	}
	out := make([]registry.Item, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if item, ok := tracked[id]; ok {
			out = append(out, item)
			continue
		}
		name := ""
		if meta, ok := cache.Get(collectionID, id); ok {
			name = meta.Name
		}
		if _, err := store.AddPendingItem(collectionID, id, name); err != nil {
			return nil, err
		}
		out = append(out, registry.Item{ID: id, Name: name, Status: registry.StatusPending})
	}
	return out, nil
}

func chooseDecider(policy string, mode tui.OutputMode, prompter *linePrompter, out io.Writer) (resolve.DecisionMaker, error) {
	switch policy {
	case config.PolicyAll:
		return resolve.IncludeAll, nil
	case config.PolicyNone:
		return resolve.IncludeNone, nil
	case config.PolicyPrompt, "":
		if mode == tui.ModeTUI {
			return tui.PickerDecider{Out: out}, nil
		}
		return prompter, nil
	}
	return nil, fmt.Errorf("unknown dependency policy %q (want prompt, all or none)", policy)
}

// statusDecider hides the resolution spinner while the picker owns the
// terminal.
type statusDecider struct {
	inner  resolve.DecisionMaker
	status *tui.StatusWriter
}

func (d statusDecider) Decide(req resolve.DecisionRequest) (resolve.Decision, error) {
	d.status.Pause()
	defer d.status.Update("Resolving dependencies")
	return d.inner.Decide(req)
}

func retryQuestion(outcome reconcile.Outcome) string {
	_, failed := outcome.Counts()
	if failed == 1 {
		return fmt.Sprintf("1 item failed (%s). Retry it?", outcome.Failed[0].ID)
	}
	return fmt.Sprintf("%d items failed. Retry them?", failed)
}

func runDownloadPlain(ctx context.Context, cmd *cobra.Command, p *pipeline.Pipeline, plan pipeline.Plan, maxAttempts int, prompter *linePrompter) (pipeline.Report, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	errOut := cmd.ErrOrStderr()
	if maxAttempts > 0 {
		p.Retry = pipeline.MaxAttempts(maxAttempts)
	} else {
		p.Retry = pipeline.RetryFunc(func(_ int, outcome reconcile.Outcome) bool {
			return prompter.Confirm(retryQuestion(outcome))
		})
	}

	if !outputJSON {
		p.Events.OnLine = func(line string) {
			fmt.Fprintln(errOut, line)
		}
		p.Events.OnBatch = func(attempt int, batch []registry.Item) {
			if attempt == 1 {
				fmt.Fprintf(errOut, "Downloading %d items for collection %s\n", len(batch), plan.CollectionID)
				return
			}
			fmt.Fprintf(errOut, "Retrying %d items (attempt %d)\n", len(batch), attempt)
		}
	}
	p.Events.OnFatal = func(msg string) {
		fmt.Fprintf(errOut, "error: %s\n", msg)
	}

	return p.Execute(ctx, plan)
}

func runDownloadTUI(ctx context.Context, cmd *cobra.Command, p *pipeline.Pipeline, plan pipeline.Plan, maxAttempts int) (pipeline.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := buildDownloadProgressModel(plan)
	model.OnInterrupt(cancel)

	var (
		report  pipeline.Report
		execErr error
	)
	work := func(send func(tea.Msg)) {
		if maxAttempts > 0 {
			p.Retry = pipeline.MaxAttempts(maxAttempts)
		} else {
			p.Retry = pipeline.RetryFunc(func(_ int, outcome reconcile.Outcome) bool {
				return tui.Confirm(send, retryQuestion(outcome))
			})
		}
		p.Events.OnLine = func(line string) {
			send(tui.LogLineMsg{Line: line})
		}
		p.Events.OnFatal = func(msg string) {
			send(tui.LogLineMsg{Line: "error: " + msg})
		}
		p.Events.OnBatch = func(attempt int, batch []registry.Item) {
			status, phase := "downloading", "Downloading"
			if attempt > 1 {
				status, phase = "retrying", fmt.Sprintf("Retrying (attempt %d)", attempt)
			}
			send(tui.PhaseMsg{Text: phase})
			for _, item := range batch {
				send(tui.RowUpdateMsg{Key: item.ID, Fields: map[string]string{"STATUS": status}})
			}
		}
		p.Events.OnItem = func(ev reconcile.Event) {
			fields := map[string]string{"STATUS": "installed", "PATH": ev.Path}
			if ev.Failure != nil {
				fields = map[string]string{"STATUS": string(ev.Failure.Reason), "PATH": ev.Failure.Message}
			}
			send(tui.RowUpdateMsg{Key: ev.ItemID, Fields: fields})
		}
		report, execErr = p.Execute(ctx, plan)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Collection: %s\n", collectionLabel(plan.Info))
	if err := tui.RunWithWork(cmd.OutOrStdout(), model, work); err != nil {
		return report, err
	}
	return report, execErr
}

func collectionLabel(info registry.CollectionInfo) string {
	if strings.TrimSpace(info.Name) == "" {
		return info.ID
	}
	return fmt.Sprintf("%s (%s)", info.Name, info.ID)
}

func buildDownloadProgressModel(plan pipeline.Plan) tui.ProgressModel {
	model := tui.NewProgressModel("download "+plan.CollectionID, downloadColumns)
	for _, item := range plan.Batch {
		model.AddRow(item.ID, []string{item.ID, tui.NonEmptyOrDash(item.Name), "queued", "-"})
	}
	return model
}

// finalStatuses maps every item id seen in the report to its final status.
func finalStatuses(report pipeline.Report) map[string]string {
	statuses := make(map[string]string, len(report.Succeeded)+len(report.Failed))
	for _, id := range report.Succeeded {
		statuses[id] = "installed"
	}
	for _, f := range report.Failed {
		statuses[f.ID] = string(f.Reason)
	}
	return statuses
}

func writeDownloadTable(w io.Writer, plan pipeline.Plan, report pipeline.Report) {
	statuses := finalStatuses(report)
	details := make(map[string]string, len(report.Failed))
	for _, f := range report.Failed {
		details[f.ID] = f.Message
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tDETAIL")
	for _, item := range plan.Batch {
		status := statuses[item.ID]
		if status == "" {
			status = "skipped"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.ID, tui.NonEmptyOrDash(item.Name), status, tui.NonEmptyOrDash(details[item.ID]))
	}
	tw.Flush()
}

func printDownloadSummary(w io.Writer, report pipeline.Report) {
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	faint := lipgloss.NewStyle().Faint(true)

	fmt.Fprintln(w)
	summary := fmt.Sprintf("%s installed · %s failed · %d attempt(s)",
		green.Render(fmt.Sprintf("%d", len(report.Succeeded))),
		red.Render(fmt.Sprintf("%d", len(report.Failed))),
		report.Attempts,
	)
	if report.Cancelled {
		summary += " · cancelled"
	}
	fmt.Fprintln(w, summary)
	for _, f := range report.Failed {
		fmt.Fprintf(w, "  %s %s: %s\n", red.Render("✗"), f.ID, f.Message)
	}
	if n := len(report.LogFiles); n > 0 {
		fmt.Fprintln(w, faint.Render("  fetch log: "+report.LogFiles[n-1]))
	}
}

func writeDownloadJSON(cmd *cobra.Command, report pipeline.Report, skipped []string) error {
	if report.Succeeded == nil {
		report.Succeeded = []string{}
	}
	if report.Failed == nil {
		report.Failed = []reconcile.Failure{}
	}
	if skipped == nil {
		skipped = []string{}
	}
	payload := struct {
		Report  pipeline.Report `json:"report"`
		Skipped []string        `json:"skipped"`
	}{
		Report:  report,
		Skipped: skipped,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
