package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"modsync/internal/metadata"
	"modsync/internal/tui"
)

var (
	metaName string
	metaDeps []string
)

func newMetaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Edit the cached item metadata used for dependency resolution",
	}
	cmd.AddCommand(newMetaSetCmd())
	cmd.AddCommand(newMetaShowCmd())
	return cmd
}

func newMetaSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <collection> <item-id>",
		Short: "Record an item's name and declared dependencies",
		Args:  cobra.ExactArgs(2),
		RunE:  runMetaSet,
	}
	cmd.Flags().StringVar(&metaName, "name", "", "Item display name")
	cmd.Flags().StringArrayVar(&metaDeps, "dep", nil, "Dependency as ID or ID=Name (repeat for multiple)")
	return cmd
}

func newMetaShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <collection> <item-id>",
		Short: "Print cached metadata for an item",
		Args:  cobra.ExactArgs(2),
		RunE:  runMetaShow,
	}
}

func parseDependencyArgs(values []string) ([]metadata.Dependency, error) {
	deps := make([]metadata.Dependency, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		id, name, _ := strings.Cut(raw, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid dependency %q", raw)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		deps = append(deps, metadata.Dependency{ID: id, Name: strings.TrimSpace(name)})
	}
	return deps, nil
}

func runMetaSet(cmd *cobra.Command, args []string) error {
	e, err := loadEnv("meta")
	if err != nil {
		return err
	}
	defer e.Close()

	collectionID, id := args[0], args[1]
	deps, err := parseDependencyArgs(metaDeps)
	if err != nil {
		return err
	}

	cache := metadata.NewCache(e.paths)
	meta, _ := cache.Get(collectionID, id)
	meta.ID = id
	if cmd.Flags().Changed("name") {
		meta.Name = strings.TrimSpace(metaName)
	}
	if cmd.Flags().Changed("dep") {
		meta.Dependencies = deps
	}
	if err := cache.Put(collectionID, meta); err != nil {
		return err
	}
	e.printf("meta set collection=%s id=%s deps=%d", collectionID, id, len(meta.Dependencies))
	cmd.Printf("Saved metadata for %s (%d dependencies)\n", id, len(meta.Dependencies))
	return nil
}

func runMetaShow(cmd *cobra.Command, args []string) error {
	e, err := loadEnv("meta")
	if err != nil {
		return err
	}
	defer e.Close()

	collectionID, id := args[0], args[1]
	meta, ok := metadata.NewCache(e.paths).Get(collectionID, id)
	if !ok {
		return fmt.Errorf("no metadata cached for %s in collection %s", id, collectionID)
	}

	if outputJSON {
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("%s  %s\n", meta.ID, tui.NonEmptyOrDash(meta.Name))
	if len(meta.Dependencies) == 0 {
		cmd.Println("  no dependencies")
		return nil
	}
	for _, dep := range meta.Dependencies {
		cmd.Printf("  requires %s  %s\n", dep.ID, tui.NonEmptyOrDash(dep.Name))
	}
	return nil
}
