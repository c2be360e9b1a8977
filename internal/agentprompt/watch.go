package agentprompt

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lorekeeper/internal/storage"
)

const debounce = 200 * time.Millisecond

// Watch re-syncs the catalog whenever a definition file under files.Root()
// changes, until ctx is cancelled. Bursts of events are coalesced into one
// Sync. cb, if non-nil, receives every resulting change.
func Watch(ctx context.Context, st Store, files *storage.FS, logger *slog.Logger, cb func(Change)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, files.Root()); err != nil {
		return err
	}
	logger.Info("agents: watcher started", slog.String("root", files.Root()))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
			return
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("agents: watcher stopped")
			return nil

		case <-fire:
			timer, fire = nil, nil
			changes, err := Sync(ctx, st, files, logger)
			if err != nil {
				logger.Warn("agents: resync failed", slog.String("error", err.Error()))
			}
			if cb != nil {
				for _, c := range changes {
					cb(c)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("agents: watch new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}
			if files.Matches(ev.Name) {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("agents: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
