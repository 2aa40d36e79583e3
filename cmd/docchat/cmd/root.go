// Package cmd provides the CLI commands for docchat.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/pkg/version"
)

var (
	configPath string
	dataDir    string
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the docchat CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docchat",
		Short: "Retrieval-augmented chat over your documents",
		Long: `docchat serves a chat API backed by your own documents.

Uploaded files are chunked, embedded and indexed; questions are
answered by a local model grounded in the most relevant chunks.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docchat version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default <data-dir>/docchat.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for files, index and sessions")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(*cobra.Command, []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// loadConfig loads configuration honoring the global flags.
func loadConfig() (*config.Config, error) {
	if dataDir != "" {
		if err := os.Setenv("DOCCHAT_DATA_DIR", dataDir); err != nil {
			return nil, err
		}
	}
	return config.Load(configPath)
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
