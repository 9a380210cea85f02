package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch watches the config file and invokes onReload with the freshly loaded
// config whenever it changes. Only the reloadable subset (query timeout,
// limits) should be applied by the callback; address and log level changes
// require a restart.
//
// Watch blocks until ctx is cancelled. Errors from individual reload attempts
// are logged and do not stop the watch.
func Watch(ctx context.Context, dataDir string, log *slog.Logger, onReload func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory, not the file: editors replace files on save and
	// a file watch dies with the old inode.
	if err := w.Add(dataDir); err != nil {
		return err
	}

	target := filepath.Join(dataDir, ConfigFileName)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(dataDir)
			if err != nil {
				log.Warn("config reload failed", slog.String("error", err.Error()))
				continue
			}
			log.Info("config reloaded", slog.String("path", target))
			onReload(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}
