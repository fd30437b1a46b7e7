package profiles

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reloads profiles when template or workspace files change on disk.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches the loader's layer directories. Directories that do
// not exist are skipped.
func NewWatcher(loader *Loader, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{loader: loader, watcher: fw, logger: logger}
	for _, dir := range []string{loader.templateDir, loader.workspaceDir} {
		if dir == "" {
			continue
		}
		if err := fw.Add(dir); err != nil {
			logger.Debug("profile dir not watchable", "dir", dir, "error", err)
			continue
		}
		// Watch role subdirectories too; fsnotify is not recursive.
		matches, _ := filepath.Glob(filepath.Join(dir, "*"))
		for _, m := range matches {
			_ = fw.Add(m)
		}
	}
	return w, nil
}

// Run processes change events until the context ends.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("profile watcher error", "error", err)
		}
	}
}

// scheduleReload debounces bursts of file events into one reload.
func (w *Watcher) scheduleReload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, func() {
		w.logger.Info("profile files changed, reloading", "path", path)
		w.loader.ReloadAll()
	})
}
