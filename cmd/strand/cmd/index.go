package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/strand-search/strand/internal/analyzer"
	"github.com/strand-search/strand/internal/index"
	"github.com/strand-search/strand/internal/logging"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage indexes in the local data directory",
	}
	cmd.AddCommand(newIndexCreateCmd())
	cmd.AddCommand(newIndexListCmd())
	cmd.AddCommand(newIndexDeleteCmd())
	cmd.AddCommand(newIndexAddCmd())
	return cmd
}

// openManager opens the manager against the configured data directory with
// quiet logging (the CLI prints its own output).
func openManager() (*index.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if debugMode {
		logger, _, err = logging.Setup(logging.Config{Level: "debug", WriteToStderr: true})
		if err != nil {
			return nil, err
		}
	}
	return index.OpenManager(cfg.DataDir, analyzer.New(), logger,
		index.WithConditionCacheSize(cfg.Search.ConditionCacheSize))
}

func newIndexCreateCmd() *cobra.Command {
	var primaryKey string

	cmd := &cobra.Command{
		Use:   "create <uid>",
		Short: "Create an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			meta, err := mgr.Create(args[0], "", primaryKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created index %s\n", meta.UID)
			return nil
		},
	}
	cmd.Flags().StringVar(&primaryKey, "primary-key", "", "Primary key field")
	return cmd
}

func newIndexListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			for _, meta := range mgr.List() {
				ix, err := mgr.Get(meta.UID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %8s docs  created %s\n",
					meta.UID,
					humanize.Comma(int64(ix.DocumentCount())),
					humanize.Time(meta.CreatedAt))
			}
			return nil
		},
	}
}

func newIndexDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted index %s\n", args[0])
			return nil
		},
	}
}

func newIndexAddCmd() *cobra.Command {
	var primaryKey string

	cmd := &cobra.Command{
		Use:   "add <uid> <documents.json>",
		Short: "Add documents from a JSON array file (use - for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[1] == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(args[1])
			}
			if err != nil {
				return err
			}

			var docs []map[string]any
			if err := json.Unmarshal(data, &docs); err != nil {
				return fmt.Errorf("documents must be a JSON array of objects: %w", err)
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			pk, err := mgr.AddDocuments(args[0], docs, primaryKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s documents into %s (primary key %s)\n",
				humanize.Comma(int64(len(docs))), args[0], pk)
			return nil
		},
	}
	cmd.Flags().StringVar(&primaryKey, "primary-key", "", "Primary key field")
	return cmd
}
