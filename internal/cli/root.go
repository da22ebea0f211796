package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	dataDir    string
	outputJSON bool
)

// dataDirEnv supplies the data directory when --data is not given.
const dataDirEnv = "MODSYNC_DATA"

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "modsync",
		Short:         "Download and install workshop items with their dependencies",
		Long: "modsync keeps one collection of workshop items per game installed.\n" +
			"Items are fetched with SteamCMD, dependencies are resolved from cached\n" +
			"metadata and installed content is moved into the collection's install root.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !cmd.Flags().Changed("data") {
				if env := strings.TrimSpace(os.Getenv(dataDirEnv)); env != "" {
					dataDir = env
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&dataDir, "data", "", "Path to the modsync data directory (default $"+dataDirEnv+" or the working directory)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCollectionCmd())
	cmd.AddCommand(newItemCmd())
	cmd.AddCommand(newMetaCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newReconcileCmd())

	return cmd
}
