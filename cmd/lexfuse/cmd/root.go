// Package cmd provides the CLI commands for LexFuse.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lexfuse/lexfuse/internal/logging"
	"github.com/lexfuse/lexfuse/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lexfuse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexfuse",
		Short: "Hybrid retrieval over law articles and cases",
		Long: `LexFuse answers natural-language legal queries with ranked law
articles and cases, combining vector similarity, keyword search, and
knowledge-graph query expansion.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("lexfuse version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.lexfuse/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRun = stopLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newHybridCmd())
	cmd.AddCommand(newCasesCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		loggingCleanup = cleanup
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
