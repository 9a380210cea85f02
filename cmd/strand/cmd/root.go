// Package cmd provides the CLI commands for Strand.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/strand-search/strand/internal/config"
	"github.com/strand-search/strand/pkg/version"
)

var (
	dataDir   string
	debugMode bool
)

// NewRootCmd creates the root command for the strand CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strand",
		Short: "Full-text search engine with ranked retrieval",
		Long: `Strand is a full-text search engine: create indexes, ingest JSON
documents and query them through a configurable ranking rule pipeline
(words, typo, proximity, attribute, exactness, sort, geo).

Run 'strand serve' to start the HTTP API, or use 'strand index' and
'strand search' to work with a local data directory directly.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("strand version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.strand)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads configuration honoring the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
