// Package pipeline composes dependency resolution, acquisition and
// reconciliation into a download with caller-controlled retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"modsync/internal/acquire"
	"modsync/internal/logx"
	"modsync/internal/metadata"
	"modsync/internal/metrics"
	"modsync/internal/paths"
	"modsync/internal/reconcile"
	"modsync/internal/registry"
	"modsync/internal/resolve"
)

var (
	// ErrBusy is returned when a download is already running for the collection.
	ErrBusy = errors.New("a download is already running for this collection")
	// ErrFetchFailed wraps fatal fetcher problems (configuration or spawn errors).
	ErrFetchFailed = errors.New("fetch failed")
)

// Store is the registry surface the pipeline needs.
type Store interface {
	registry.ItemStore
}

// RetryPolicy decides whether the failed subset of a pass is re-submitted.
// attempt is the 1-based number of the pass that just finished.
type RetryPolicy interface {
	Retry(attempt int, outcome reconcile.Outcome) bool
}

// RetryFunc adapts a function to RetryPolicy.
type RetryFunc func(attempt int, outcome reconcile.Outcome) bool

// Retry implements RetryPolicy.
func (f RetryFunc) Retry(attempt int, outcome reconcile.Outcome) bool {
	return f(attempt, outcome)
}

// MaxAttempts allows up to n passes in total. Zero allows unlimited passes.
type MaxAttempts int

// Retry implements RetryPolicy.
func (n MaxAttempts) Retry(attempt int, _ reconcile.Outcome) bool {
	return n == 0 || attempt < int(n)
}

// NoRetry runs a single pass.
var NoRetry = MaxAttempts(1)

// Fetcher describes how the external fetcher is invoked.
type Fetcher struct {
	Executable string
	Login      string
	ExtraArgs  []string
	// StageInCollection points the fetcher's install dir at the
	// collection's staging directory.
	StageInCollection bool
}

// Events are optional observers of a download. OnLine, OnFatal and OnItem
// are called from the fetcher's goroutine or during reconciliation; they
// must be safe to call from a goroutine other than the caller's.
type Events struct {
	OnDependency func(dep resolve.Dependency, added bool)
	OnBatch      func(attempt int, batch []registry.Item)
	OnLine       func(line string)
	OnFatal      func(message string)
	OnItem       func(ev reconcile.Event)
	OnOutcome    func(attempt int, outcome reconcile.Outcome)
	// OnStart receives the cancel function of each fetcher run.
	OnStart func(cancel func())
}

// Pipeline runs downloads for collections in one data directory.
type Pipeline struct {
	Paths    paths.DataPaths
	Store    Store
	Metadata metadata.Lookup
	Decider  resolve.DecisionMaker
	Retry    RetryPolicy
	Fetcher  Fetcher
	Logger   logx.Logger
	Metrics  *metrics.Recorder
	Events   Events

	mu     sync.Mutex
	active map[string]struct{}
}

// DownloadRequest selects what to download.
type DownloadRequest struct {
	CollectionID string
	Requested    []registry.Item
	// Force re-downloads items that are already installed.
	Force bool
}

// Report aggregates every pass of a download.
type Report struct {
	CollectionID string              `json:"collection"`
	Resolved     []registry.Item     `json:"resolved"`
	Attempts     int                 `json:"attempts"`
	Succeeded    []string            `json:"succeeded"`
	Failed       []reconcile.Failure `json:"failed"`
	Cancelled    bool                `json:"cancelled"`
	Outcomes     []reconcile.Outcome `json:"outcomes"`
	LogFiles     []string            `json:"log_files"`
}

var nowFunc = time.Now

// Plan is a resolved batch ready to be fetched.
type Plan struct {
	CollectionID string
	Info         registry.CollectionInfo
	// Batch lists the items to fetch, requested items first.
	Batch []registry.Item
	// Skipped lists resolved ids left out because they are installed.
	Skipped []string
}

func (pl Plan) report() Report {
	return Report{
		CollectionID: pl.CollectionID,
		Resolved:     pl.Batch,
		Succeeded:    []string{},
		Failed:       []reconcile.Failure{},
	}
}

// Download resolves dependencies for the requested items, fetches the
// resulting batch and retries failures while the RetryPolicy allows. It
// returns resolve.ErrCancelled when resolution was cancelled and wraps
// ErrFetchFailed when the fetcher could not run.
func (p *Pipeline) Download(ctx context.Context, req DownloadRequest) (Report, error) {
	if !p.acquireCollection(req.CollectionID) {
		return Plan{CollectionID: req.CollectionID}.report(), ErrBusy
	}
	defer p.releaseCollection(req.CollectionID)

	plan, err := p.plan(req)
	if err != nil {
		report := plan.report()
		report.Cancelled = errors.Is(err, resolve.ErrCancelled)
		return report, err
	}
	return p.execute(ctx, plan)
}

// Plan runs dependency resolution only. Interactive front ends call Plan
// and Execute separately so that decisions are taken before progress
// rendering starts.
func (p *Pipeline) Plan(req DownloadRequest) (Plan, error) {
	if !p.acquireCollection(req.CollectionID) {
		return Plan{CollectionID: req.CollectionID}, ErrBusy
	}
	defer p.releaseCollection(req.CollectionID)
	return p.plan(req)
}

// Execute fetches and reconciles a planned batch, retrying failures while
// the RetryPolicy allows.
func (p *Pipeline) Execute(ctx context.Context, plan Plan) (Report, error) {
	if !p.acquireCollection(plan.CollectionID) {
		return plan.report(), ErrBusy
	}
	defer p.releaseCollection(plan.CollectionID)
	return p.execute(ctx, plan)
}

func (p *Pipeline) plan(req DownloadRequest) (Plan, error) {
	plan := Plan{CollectionID: req.CollectionID}
	if p.Store == nil || p.Metadata == nil || p.Decider == nil {
		return plan, errors.New("pipeline: store, metadata and decider are required")
	}
	logger := logx.OrNop(p.Logger)

	info, err := p.Store.GetCollectionInfo(req.CollectionID)
	if err != nil {
		return plan, err
	}
	plan.Info = info
	items, err := p.Store.GetItems(req.CollectionID)
	if err != nil {
		return plan, err
	}
	installed := registry.InstalledIDs(items)

	resolver := &resolve.Resolver{
		Metadata:  p.Metadata,
		Decider:   p.Decider,
		Pending:   p.Store,
		OnPending: p.Events.OnDependency,
		Logger:    p.Logger,
	}
	resolved, err := resolver.Resolve(resolve.Request{
		CollectionID: req.CollectionID,
		Requested:    req.Requested,
		InstalledIDs: installed,
	})
	switch {
	case errors.Is(err, resolve.ErrCancelled):
		p.Metrics.ObserveResolution(req.CollectionID, "cancelled")
		return plan, err
	case err != nil:
		p.Metrics.ObserveResolution(req.CollectionID, "error")
		return plan, err
	}
	p.Metrics.ObserveResolution(req.CollectionID, "resolved")

	plan.Batch = make([]registry.Item, 0, len(resolved))
	for _, item := range resolved {
		if _, ok := installed[item.ID]; ok && !req.Force {
			logger.Printf("download collection=%s skip installed item=%s", req.CollectionID, item.ID)
			plan.Skipped = append(plan.Skipped, item.ID)
			continue
		}
		plan.Batch = append(plan.Batch, item)
	}
	return plan, nil
}

func (p *Pipeline) execute(ctx context.Context, plan Plan) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	report := plan.report()
	logger := logx.OrNop(p.Logger)
	if p.Store == nil {
		return report, errors.New("pipeline: store is required")
	}
	if len(plan.Batch) == 0 {
		logger.Printf("download collection=%s nothing to download", plan.CollectionID)
		return report, nil
	}
	info := plan.Info
	if info.ID == "" {
		var err error
		if info, err = p.Store.GetCollectionInfo(plan.CollectionID); err != nil {
			return report, err
		}
	}
	batch := plan.Batch
	retry := p.Retry
	if retry == nil {
		retry = NoRetry
	}
	succeeded := make(map[string]struct{})

	for attempt := 1; ; attempt++ {
		report.Attempts = attempt
		if p.Events.OnBatch != nil {
			p.Events.OnBatch(attempt, batch)
		}

		result, logFile, err := p.fetch(ctx, info, batch)
		if logFile != "" {
			report.LogFiles = append(report.LogFiles, logFile)
		}
		if err != nil {
			return report, err
		}
		report.Cancelled = result.Cancelled

		engine := &reconcile.Engine{Store: p.Store, Logger: p.Logger, OnEvent: p.Events.OnItem}
		outcome, err := engine.Reconcile(plan.CollectionID, batch, result.Log, info.InstallRoot)
		if err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, outcome)
		for _, id := range outcome.Succeeded {
			if _, ok := succeeded[id]; !ok {
				succeeded[id] = struct{}{}
				report.Succeeded = append(report.Succeeded, id)
			}
		}
		report.Failed = outcome.Failed
		p.recordOutcome(plan.CollectionID, outcome)
		if p.Events.OnOutcome != nil {
			p.Events.OnOutcome(attempt, outcome)
		}

		s, f := outcome.Counts()
		logger.Printf("download collection=%s attempt=%d succeeded=%d failed=%d", plan.CollectionID, attempt, s, f)

		if f == 0 || result.Cancelled || ctx.Err() != nil {
			break
		}
		if !retry.Retry(attempt, outcome) {
			break
		}
		batch = failedSubset(batch, outcome)
	}

	p.Metrics.SetFailedItems(plan.CollectionID, len(report.Failed))
	return report, nil
}

// fetch writes the runscript for batch, runs the fetcher to completion and
// saves the raw log next to the other logs.
func (p *Pipeline) fetch(ctx context.Context, info registry.CollectionInfo, batch []registry.Item) (acquire.Result, string, error) {
	logger := logx.OrNop(p.Logger)
	runID := uuid.NewString()

	ids := make([]string, 0, len(batch))
	for _, item := range batch {
		ids = append(ids, item.ID)
	}
	scriptPath := filepath.Join(p.Paths.RunsDir, fmt.Sprintf("%s-%s.txt", info.ID, runID))
	script, err := acquire.WriteScript(scriptPath, acquire.ScriptOptions{
		AppID:   info.ID,
		ItemIDs: ids,
		Login:   p.Fetcher.Login,
	})
	if err != nil {
		return acquire.Result{}, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer os.Remove(script)

	extra := append([]string(nil), p.Fetcher.ExtraArgs...)
	if p.Fetcher.StageInCollection {
		staging := p.Paths.Collection(info.ID).StagingDir
		if err := os.MkdirAll(staging, 0o755); err != nil {
			return acquire.Result{}, "", fmt.Errorf("ensure staging dir: %w", err)
		}
		extra = append([]string{"+force_install_dir", staging}, extra...)
	}

	logger.Printf("fetch collection=%s run=%s items=%d", info.ID, runID, len(ids))
	start := nowFunc()
	handle := acquire.Run(ctx, acquire.Spec{
		Executable: p.Fetcher.Executable,
		Script:     script,
		Args:       acquire.SteamCMDArgs(script, extra),
	}, acquire.Handlers{
		OnLine:  p.Events.OnLine,
		OnFatal: p.Events.OnFatal,
	})
	if p.Events.OnStart != nil {
		p.Events.OnStart(handle.Cancel)
	}
	result := handle.Wait()
	elapsed := nowFunc().Sub(start)

	logFile := ""
	if result.Log != "" {
		logFile = filepath.Join(p.Paths.LogsDir, fmt.Sprintf("fetch-%s-%s.log", info.ID, runID))
		if err := os.MkdirAll(p.Paths.LogsDir, 0o755); err != nil {
			logger.Printf("fetch collection=%s run=%s: ensure logs dir: %v", info.ID, runID, err)
			logFile = ""
		} else if err := os.WriteFile(logFile, []byte(result.Log), 0o644); err != nil {
			logger.Printf("fetch collection=%s run=%s: save log: %v", info.ID, runID, err)
			logFile = ""
		}
	}

	switch {
	case result.Fatal != "":
		p.Metrics.ObserveRun(info.ID, "fatal", elapsed)
		logger.Printf("fetch collection=%s run=%s fatal: %s", info.ID, runID, result.Fatal)
		return result, logFile, fmt.Errorf("%w: %s", ErrFetchFailed, result.Fatal)
	case result.Cancelled:
		p.Metrics.ObserveRun(info.ID, "cancelled", elapsed)
	default:
		p.Metrics.ObserveRun(info.ID, "completed", elapsed)
	}
	logger.Printf("fetch collection=%s run=%s exit=%d observed=%t cancelled=%t", info.ID, runID, result.ExitCode, result.ExitObserved, result.Cancelled)
	return result, logFile, nil
}

func (p *Pipeline) recordOutcome(collectionID string, outcome reconcile.Outcome) {
	p.Metrics.ObserveItems(collectionID, "installed", len(outcome.Succeeded))
	byReason := make(map[reconcile.Reason]int)
	for _, f := range outcome.Failed {
		byReason[f.Reason]++
	}
	for reason, n := range byReason {
		p.Metrics.ObserveItems(collectionID, string(reason), n)
	}
}

func failedSubset(batch []registry.Item, outcome reconcile.Outcome) []registry.Item {
	failed := make(map[string]struct{}, len(outcome.Failed))
	for _, f := range outcome.Failed {
		failed[f.ID] = struct{}{}
	}
	out := make([]registry.Item, 0, len(failed))
	for _, item := range batch {
		if _, ok := failed[item.ID]; ok {
			out = append(out, item)
		}
	}
	return out
}

func (p *Pipeline) acquireCollection(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		p.active = make(map[string]struct{})
	}
	if _, busy := p.active[id]; busy {
		return false
	}
	p.active[id] = struct{}{}
	return true
}

func (p *Pipeline) releaseCollection(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, id)
}
