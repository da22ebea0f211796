package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"modsync/internal/acquire"
	"modsync/internal/config"
	"modsync/internal/paths"
	"modsync/internal/registry"
)

var checkStrict bool

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the fetcher, configuration and collection install roots",
		RunE:  runCheck,
	}

	cmd.Flags().BoolVar(&checkStrict, "strict", false, "fail when any check reports an error")

	return cmd
}

type fetcherStatus struct {
	Configured string `json:"configured"`
	Path       string `json:"path,omitempty"`
	Found      bool   `json:"found"`
	Error      string `json:"error,omitempty"`
}

type collectionCheck struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	InstallRoot string `json:"install_root"`
	Exists      bool   `json:"exists"`
}

func runCheck(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv("check")
	if err != nil {
		return err
	}
	defer e.Close()

	validations := e.cfg.Validate(e.paths.Root)
	for _, v := range validations {
		e.printf("config %s: %s", v.Level, v.Message)
	}

	fetcher := fetcherStatus{Configured: e.fetcher().Executable}
	if located, err := acquire.LocateExecutable(fetcher.Configured); err != nil {
		fetcher.Error = err.Error()
	} else {
		fetcher.Path = located
		fetcher.Found = true
	}
	e.printf("fetcher configured=%s found=%t path=%s", fetcher.Configured, fetcher.Found, fetcher.Path)

	collections, err := checkCollections(registry.NewStore(e.paths))
	if err != nil {
		return err
	}

	if outputJSON {
		payload := struct {
			Data        string                    `json:"data"`
			Fetcher     fetcherStatus             `json:"fetcher"`
			Collections []collectionCheck         `json:"collections"`
			Validations []config.ValidationResult `json:"validations,omitempty"`
		}{e.paths.Root, fetcher, collections, validations}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
	} else {
		printCheckResult(cmd, e.paths.Root, fetcher, collections, validations)
	}

	if !checkStrict {
		return nil
	}
	var failures []string
	if !fetcher.Found {
		failures = append(failures, "fetcher not found")
	}
	for _, v := range validations {
		if v.Level == "error" {
			failures = append(failures, v.Message)
		}
	}
	if len(failures) > 0 {
		return errors.New("check failed: " + strings.Join(failures, "; "))
	}
	return nil
}

func checkCollections(store *registry.Store) ([]collectionCheck, error) {
	ids, err := store.ListCollections()
	if err != nil {
		return nil, err
	}
	out := make([]collectionCheck, 0, len(ids))
	for _, id := range ids {
		info, err := store.GetCollectionInfo(id)
		if err != nil {
			return nil, err
		}
		exists, err := paths.DirExists(info.InstallRoot)
		if err != nil {
			return nil, err
		}
		out = append(out, collectionCheck{ID: info.ID, Name: info.Name, InstallRoot: info.InstallRoot, Exists: exists})
	}
	return out, nil
}

func printCheckResult(cmd *cobra.Command, root string, fetcher fetcherStatus, collections []collectionCheck, validations []config.ValidationResult) {
	bold := lipgloss.NewStyle().Bold(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	faint := lipgloss.NewStyle().Faint(true)

	cmd.Println(bold.Render("Data:") + " " + root)
	cmd.Println()

	if fetcher.Found {
		cmd.Println(green.Render("✓") + " " + bold.Render("fetcher"))
		cmd.Println(faint.Render("  " + fetcher.Path))
	} else {
		cmd.Println(red.Render("✗") + " " + bold.Render("fetcher") + red.Render(" ("+fetcher.Error+")"))
	}
	cmd.Println()

	for _, v := range validations {
		if v.Level == "error" {
			cmd.Println(red.Render("✗") + " " + v.Message)
		} else {
			cmd.Println(yellow.Render("!") + " " + v.Message)
		}
	}
	if len(validations) > 0 {
		cmd.Println()
	}

	if len(collections) == 0 {
		cmd.Println(faint.Render("no collections registered"))
		return
	}
	for _, c := range collections {
		label := c.ID
		if c.Name != "" {
			label = c.Name + " (" + c.ID + ")"
		}
		if c.Exists {
			cmd.Println(green.Render("✓") + " " + bold.Render(label))
			cmd.Println(faint.Render("  " + c.InstallRoot))
		} else {
			cmd.Println(yellow.Render("!") + " " + bold.Render(label))
			cmd.Println(faint.Render("  install root missing, it will be created: " + c.InstallRoot))
		}
	}
}
