package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modsync/internal/paths"
	"modsync/internal/registry"
	"modsync/internal/tui"
)

var (
	collectionName        string
	collectionInstallRoot string
)

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"collections"},
		Short:   "Manage collections (one per game)",
	}
	cmd.AddCommand(newCollectionAddCmd())
	cmd.AddCommand(newCollectionListCmd())
	return cmd
}

func newCollectionAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <app-id>",
		Short: "Register a collection or update its name and install root",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollectionAdd,
	}
	cmd.Flags().StringVar(&collectionName, "name", "", "Display name of the collection")
	cmd.Flags().StringVar(&collectionInstallRoot, "install-root", "", "Directory installed items are moved into")
	return cmd
}

func newCollectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered collections",
		Args:  cobra.NoArgs,
		RunE:  runCollectionList,
	}
}

func runCollectionAdd(cmd *cobra.Command, args []string) error {
	e, err := loadEnv("collection")
	if err != nil {
		return err
	}
	defer e.Close()

	id := strings.TrimSpace(args[0])
	if err := paths.ValidateID(id); err != nil {
		return fmt.Errorf("collection id: %w", err)
	}

	store := registry.NewStore(e.paths)
	info, err := store.GetCollectionInfo(id)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		info = registry.CollectionInfo{ID: id}
	case err != nil:
		return err
	}
	if name := strings.TrimSpace(collectionName); name != "" {
		info.Name = name
	}
	if root := strings.TrimSpace(collectionInstallRoot); root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve install root: %w", err)
		}
		info.InstallRoot = abs
	}
	if info.InstallRoot == "" {
		return fmt.Errorf("--install-root is required for a new collection")
	}

	if err := store.SaveCollectionInfo(info); err != nil {
		return err
	}
	e.printf("collection saved id=%s name=%q install_root=%s", info.ID, info.Name, info.InstallRoot)
	cmd.Printf("Saved collection %s (%s)\n", info.ID, tui.NonEmptyOrDash(info.Name))
	return nil
}

type collectionSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	InstallRoot string `json:"install_root"`
	Items       int    `json:"items"`
	Installed   int    `json:"installed"`
	Pending     int    `json:"pending"`
}

func runCollectionList(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv("collection")
	if err != nil {
		return err
	}
	defer e.Close()

	store := registry.NewStore(e.paths)
	ids, err := store.ListCollections()
	if err != nil {
		return err
	}

	summaries := make([]collectionSummary, 0, len(ids))
	for _, id := range ids {
		info, err := store.GetCollectionInfo(id)
		if err != nil {
			return err
		}
		items, err := store.GetItems(id)
		if err != nil {
			return err
		}
		pending := len(registry.Pending(items))
		summaries = append(summaries, collectionSummary{
			ID:          info.ID,
			Name:        info.Name,
			InstallRoot: info.InstallRoot,
			Items:       len(items),
			Installed:   len(items) - pending,
			Pending:     pending,
		})
	}

	if outputJSON {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(summaries) == 0 {
		cmd.Println("No collections registered. Add one with `modsync collection add <app-id> --install-root <dir>`.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tITEMS\tINSTALLED\tPENDING\tINSTALL ROOT")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", s.ID, tui.NonEmptyOrDash(s.Name), s.Items, s.Installed, s.Pending, s.InstallRoot)
	}
	return tw.Flush()
}
