package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modsync/internal/metrics"
	"modsync/internal/paths"
	"modsync/internal/reconcile"
	"modsync/internal/registry"
)

var reconcileLogFile string

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <collection> [item-id...]",
		Short: "Install items from a saved fetcher log without downloading again",
		Long: "Parse a fetcher log for success markers and move the staged content of\n" +
			"the given items (or every pending item) into the install root.",
		Args: cobra.MinimumNArgs(1),
		RunE: runReconcile,
	}
	cmd.Flags().StringVar(&reconcileLogFile, "log", "", "Path to a fetcher log (required)")
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	e, err := loadEnv("reconcile")
	if err != nil {
		return err
	}
	defer e.Close()

	collectionID := args[0]
	store := registry.NewStore(e.paths)
	info, err := store.GetCollectionInfo(collectionID)
	if err != nil {
		return err
	}

	logData, err := os.ReadFile(reconcileLogFile)
	if err != nil {
		return fmt.Errorf("read fetcher log: %w", err)
	}

	batch, err := reconcileBatch(store, collectionID, args[1:])
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		cmd.Printf("Nothing to reconcile: collection %s has no pending items.\n", collectionID)
		return nil
	}

	rec := metrics.New()
	defer e.writeMetrics(rec)

	engine := &reconcile.Engine{Store: store, Logger: e.logger}
	outcome, err := engine.Reconcile(collectionID, batch, string(logData), info.InstallRoot)
	if err != nil {
		return err
	}
	rec.ObserveItems(collectionID, "installed", len(outcome.Succeeded))
	for _, f := range outcome.Failed {
		rec.ObserveItems(collectionID, string(f.Reason), 1)
	}
	rec.SetFailedItems(collectionID, len(outcome.Failed))

	if outputJSON {
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	succeeded, failed := outcome.Counts()
	cmd.Printf("Reconciled %d items: %d installed, %d failed\n", len(batch), succeeded, failed)
	for _, f := range outcome.Failed {
		cmd.Printf("  %s: %s\n", f.ID, f.Message)
	}
	return nil
}

// reconcileBatch returns the named items, or every pending item when ids is
// empty. Untracked ids are reconciled too and get added on success.
func reconcileBatch(store *registry.Store, collectionID string, ids []string) ([]registry.Item, error) {
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
	batch := make([]registry.Item, 0, len(ids))
	for _, id := range ids {
		if err := paths.ValidateID(id); err != nil {
			return nil, err
		}
		if item, ok := tracked[id]; ok {
			batch = append(batch, item)
			continue
		}
		batch = append(batch, registry.Item{ID: id})
	}
	return batch, nil
}
