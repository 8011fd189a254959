package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "stonewatch",
		Short:         "Watch a venue's reservation inventory and notify when tables open up",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("STONEWATCH_CONFIG"), "YAML config file (env STONEWATCH_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write logs to this rotating file (overrides LOG_FILE)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newVIPCmd(opts))
	root.AddCommand(newPingCmd(opts))
	root.AddCommand(newStateCmd(opts))
	root.AddCommand(newMigrateCmd(opts))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
