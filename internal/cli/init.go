package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"modsync/internal/acquire"
	"modsync/internal/config"
	"modsync/internal/logx"
	"modsync/internal/paths"
)

var (
	initFetcher string
	initPolicy  string
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a data directory with modsync.yaml, logs, runs and collections",
		Long: "Create the data directory layout and a default modsync.yaml.\n" +
			"An existing modsync.yaml is left untouched; --fetcher and --policy only\n" +
			"seed a new one.",
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}

	cmd.Flags().StringVar(&initFetcher, "fetcher", "", "Path to steamcmd recorded as fetcher.path")
	cmd.Flags().StringVar(&initPolicy, "policy", "", "Initial resolve.policy (prompt, all, none)")
	return cmd
}

// resolveInitDir prefers --data, then the positional directory, then the
// working directory.
func resolveInitDir(dataFlag string, args []string) (string, error) {
	if dataFlag != "" {
		return dataFlag, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if len(args) == 0 || args[0] == "." {
		return cwd, nil
	}
	if filepath.IsAbs(args[0]) {
		return args[0], nil
	}
	return filepath.Join(cwd, args[0]), nil
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := resolveInitDir(dataDir, args)
	if err != nil {
		return err
	}
	dp, err := paths.Resolve(dir)
	if err != nil {
		return err
	}

	created := make([]string, 0, 4)
	for _, d := range []string{dp.Root, dp.LogsDir, dp.RunsDir, dp.CollectionsDir()} {
		exists, err := paths.DirExists(d)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
		if !exists && d != dp.Root {
			created = append(created, filepath.Base(d)+"/")
		}
	}

	logger, closer, err := logx.New(dp, "init")
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Printf("modsync init: data=%s", dp.Root)

	cfg, wrote, err := ensureConfig(dp, logger)
	if err != nil {
		return err
	}
	if wrote {
		created = append([]string{filepath.Base(dp.ConfigFile)}, created...)
	}

	if len(created) == 0 {
		cmd.Printf("Data directory already initialized at %s\n", dp.Root)
	} else {
		cmd.Printf("Initialized data directory at %s\n", dp.Root)
		for _, entry := range created {
			cmd.Printf("  created %s\n", entry)
		}
	}

	configured := paths.ApplyConfig(dp, cfg).ResolveFetcher(cfg.Fetcher.Path)
	if configured == "" {
		configured = defaultFetcher
	}
	if located, err := acquire.LocateExecutable(configured); err != nil {
		logger.Printf("fetcher not found: %v", err)
		cmd.Printf("Fetcher %s not found yet; set it with `modsync config set fetcher.path <path>`.\n", configured)
	} else {
		logger.Printf("fetcher found: %s", located)
		cmd.Printf("Fetcher: %s\n", located)
	}
	return nil
}

// ensureConfig loads modsync.yaml, writing a new one seeded from the init
// flags when it does not exist yet.
func ensureConfig(dp paths.DataPaths, logger logx.Logger) (config.Config, bool, error) {
	exists, err := paths.FileExists(dp.ConfigFile)
	if err != nil {
		return config.Config{}, false, fmt.Errorf("check config: %w", err)
	}
	if exists {
		logger.Printf("config exists: %s", dp.ConfigFile)
		cfg, err := config.Load(dp.ConfigFile)
		return cfg, false, err
	}

	cfg := config.Default()
	cfg.Fetcher.Path = strings.TrimSpace(initFetcher)
	cfg.Resolve.Policy = initPolicy
	cfg.ApplyDefaults()
	switch cfg.Resolve.Policy {
	case config.PolicyPrompt, config.PolicyAll, config.PolicyNone:
	default:
		return config.Config{}, false, fmt.Errorf("unknown policy %q (want prompt, all or none)", initPolicy)
	}
	if err := config.Save(dp.ConfigFile, cfg); err != nil {
		return config.Config{}, false, err
	}
	logger.Printf("created config: %s", dp.ConfigFile)
	return cfg, true, nil
}
