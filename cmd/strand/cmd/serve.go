package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/strand-search/strand/internal/analyzer"
	"github.com/strand-search/strand/internal/config"
	"github.com/strand-search/strand/internal/index"
	"github.com/strand-search/strand/internal/logging"
	"github.com/strand-search/strand/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger, cleanup, err := logging.Setup(logging.Config{
				Level:         cfg.Log.Level,
				FilePath:      cfg.Log.File,
				MaxSizeMB:     10,
				MaxFiles:      5,
				WriteToStderr: true,
			})
			if err != nil {
				return err
			}
			defer cleanup()
			slog.SetDefault(logger)

			mgr, err := index.OpenManager(cfg.DataDir, analyzer.New(), logger,
				index.WithConditionCacheSize(cfg.Search.ConditionCacheSize))
			if err != nil {
				return err
			}
			defer mgr.Close()

			// Hot-reload the reloadable config subset while serving.
			watchCtx, stopWatch := context.WithCancel(cmd.Context())
			defer stopWatch()
			go func() {
				_ = config.Watch(watchCtx, cfg.DataDir, logger, func(next *config.Config) {
					cfg.Server.QueryTimeout = next.Server.QueryTimeout
					cfg.Search.DefaultLimit = next.Search.DefaultLimit
					cfg.Search.MaxLimit = next.Search.MaxLimit
				})
			}()

			srv := server.New(mgr, cfg, logger)
			return srv.Listen(cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default 127.0.0.1:7700)")
	return cmd
}
