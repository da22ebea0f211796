package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modsync/internal/metadata"
	"modsync/internal/paths"
	"modsync/internal/registry"
	"modsync/internal/tui"
)

var (
	itemName        string
	itemStatus      string
	itemDeleteFiles bool
)

func newItemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "item",
		Aliases: []string{"items"},
		Short:   "Manage the items tracked for a collection",
	}
	cmd.AddCommand(newItemAddCmd())
	cmd.AddCommand(newItemListCmd())
	cmd.AddCommand(newItemRemoveCmd())
	return cmd
}

func newItemAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <collection> <item-id>...",
		Short: "Track items as pending",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runItemAdd,
	}
	cmd.Flags().StringVar(&itemName, "name", "", "Display name (only with a single item id)")
	return cmd
}

func newItemListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List tracked items",
		Args:  cobra.ExactArgs(1),
		RunE:  runItemList,
	}
	cmd.Flags().StringVar(&itemStatus, "status", "", "Only show items with this status (pending or installed)")
	return cmd
}

func newItemRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <collection> <item-id>",
		Short: "Stop tracking an item",
		Args:  cobra.ExactArgs(2),
		RunE:  runItemRemove,
	}
	cmd.Flags().BoolVar(&itemDeleteFiles, "delete-files", false, "Also delete the installed content")
	return cmd
}

func runItemAdd(cmd *cobra.Command, args []string) error {
	e, err := loadEnv("item")
	if err != nil {
		return err
	}
	defer e.Close()

	collectionID, ids := args[0], args[1:]
	if itemName != "" && len(ids) > 1 {
		return errors.New("--name can only be used with a single item id")
	}

	store := registry.NewStore(e.paths)
	if _, err := store.GetCollectionInfo(collectionID); err != nil {
		return err
	}
	cache := metadata.NewCache(e.paths)

	for _, id := range ids {
		name := itemName
		if name == "" {
			if meta, ok := cache.Get(collectionID, id); ok {
				name = meta.Name
			}
		}
		added, err := store.AddPendingItem(collectionID, id, name)
		if err != nil {
			return err
		}
		e.printf("item add collection=%s id=%s added=%t", collectionID, id, added)
		if added {
			cmd.Printf("Added %s as pending\n", id)
		} else {
			cmd.Printf("%s is already tracked\n", id)
		}
	}
	return nil
}

func runItemList(cmd *cobra.Command, args []string) error {
	e, err := loadEnv("item")
	if err != nil {
		return err
	}
	defer e.Close()

	collectionID := args[0]
	store := registry.NewStore(e.paths)
	if _, err := store.GetCollectionInfo(collectionID); err != nil {
		return err
	}
	items, err := store.GetItems(collectionID)
	if err != nil {
		return err
	}

	filter := registry.Status(strings.ToLower(strings.TrimSpace(itemStatus)))
	switch filter {
	case "", registry.StatusPending, registry.StatusInstalled:
	default:
		return fmt.Errorf("unknown status %q (want pending or installed)", itemStatus)
	}
	shown := make([]registry.Item, 0, len(items))
	for _, item := range items {
		if filter == "" || item.Status == filter {
			shown = append(shown, item)
		}
	}

	if outputJSON {
		data, err := json.MarshalIndent(struct {
			Collection string          `json:"collection"`
			Items      []registry.Item `json:"items"`
		}{collectionID, shown}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tUPDATED\tPATH")
	for _, item := range shown {
		updated := "-"
		if !item.LastUpdated.IsZero() {
			updated = item.LastUpdated.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			item.ID,
			tui.NonEmptyOrDash(item.Name),
			item.Status,
			updated,
			tui.NonEmptyOrDash(item.LocalPath),
		)
	}
	return tw.Flush()
}

func runItemRemove(cmd *cobra.Command, args []string) error {
	e, err := loadEnv("item")
	if err != nil {
		return err
	}
	defer e.Close()

	collectionID, id := args[0], args[1]
	store := registry.NewStore(e.paths)
	info, err := store.GetCollectionInfo(collectionID)
	if err != nil {
		return err
	}
	removed, err := store.RemoveItem(collectionID, id)
	if err != nil {
		return err
	}
	e.printf("item remove collection=%s id=%s", collectionID, id)
	cmd.Printf("Stopped tracking %s\n", id)

	if !itemDeleteFiles || removed.LocalPath == "" {
		return nil
	}
	if !paths.Within(info.InstallRoot, removed.LocalPath) {
		return fmt.Errorf("refusing to delete %s: outside install root %s", removed.LocalPath, info.InstallRoot)
	}
	if err := os.RemoveAll(removed.LocalPath); err != nil {
		return fmt.Errorf("delete installed content: %w", err)
	}
	e.printf("item remove collection=%s id=%s deleted=%s", collectionID, id, removed.LocalPath)
	cmd.Printf("Deleted %s\n", removed.LocalPath)
	return nil
}
