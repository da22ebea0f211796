package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"modsync/internal/config"
	"modsync/internal/paths"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change modsync.yaml",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and any problems with it",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting (" + strings.Join(configKeys(), ", ") + ")",
		Args:  cobra.ExactArgs(2),
		RunE:  runConfigSet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open modsync.yaml in $EDITOR and validate it afterwards",
		Args:  cobra.NoArgs,
		RunE:  runConfigEdit,
	})

	return cmd
}

// configSetters maps the keys accepted by `config set` to their fields.
var configSetters = map[string]func(cfg *config.Config, value string) error{
	"fetcher.path": func(cfg *config.Config, value string) error {
		cfg.Fetcher.Path = value
		return nil
	},
	"fetcher.login": func(cfg *config.Config, value string) error {
		cfg.Fetcher.Login = value
		return nil
	},
	"fetcher.stage_in_collection": func(cfg *config.Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("want true or false, got %q", value)
		}
		cfg.Fetcher.StageInCollection = b
		return nil
	},
	"resolve.policy": func(cfg *config.Config, value string) error {
		cfg.Resolve.Policy = value
		return nil
	},
	"retry.max_attempts": func(cfg *config.Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("want a number, got %q", value)
		}
		cfg.Retry.MaxAttempts = n
		return nil
	},
	"metrics.textfile": func(cfg *config.Config, value string) error {
		cfg.Metrics.Textfile = value
		return nil
	},
	"data_dir": func(cfg *config.Config, value string) error {
		cfg.DataDir = value
		return nil
	},
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	dp, err := paths.Resolve(dataDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(dp.ConfigFile)
	if err != nil {
		return err
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	printValidations(cmd, cfg.Validate(dp.Root))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := strings.ToLower(strings.TrimSpace(args[0])), strings.TrimSpace(args[1])
	set, ok := configSetters[key]
	if !ok {
		return fmt.Errorf("unknown key %q (want one of %s)", args[0], strings.Join(configKeys(), ", "))
	}

	dp, err := paths.Resolve(dataDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(dp.ConfigFile)
	if err != nil {
		return err
	}
	before := config.CountErrors(cfg.Validate(dp.Root))
	if err := set(&cfg, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	cfg.ApplyDefaults()

	// A fetcher that is not installed yet is reported but still saved.
	validations := cfg.Validate(dp.Root)
	if key != "fetcher.path" && config.CountErrors(validations) > before {
		printValidations(cmd, validations)
		return fmt.Errorf("not saving %s: configuration would be invalid", key)
	}
	if err := os.MkdirAll(filepath.Dir(dp.ConfigFile), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	if err := config.Save(dp.ConfigFile, cfg); err != nil {
		return err
	}
	cmd.Printf("Set %s = %s\n", key, value)
	printValidations(cmd, validations)
	return nil
}

func runConfigEdit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dp, err := paths.Resolve(dataDir)
	if err != nil {
		return err
	}
	if err := ensureConfigFileExists(dp); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	parts = append(parts, dp.ConfigFile)

	execCmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	execCmd.Stdout = cmd.OutOrStdout()
	execCmd.Stderr = cmd.ErrOrStderr()
	execCmd.Stdin = cmd.InOrStdin()
	execCmd.Dir = dp.Root
	if err := execCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}

	cfg, err := config.Load(dp.ConfigFile)
	if err != nil {
		return fmt.Errorf("edited config does not load: %w", err)
	}
	printValidations(cmd, cfg.Validate(dp.Root))
	return nil
}

func printValidations(cmd *cobra.Command, validations []config.ValidationResult) {
	for _, v := range validations {
		cmd.PrintErrf("%s: %s\n", v.Level, v.Message)
	}
}

func ensureConfigFileExists(dp paths.DataPaths) error {
	if _, err := os.Stat(dp.ConfigFile); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dp.ConfigFile), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	return config.Save(dp.ConfigFile, config.Default())
}
