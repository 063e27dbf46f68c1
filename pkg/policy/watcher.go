package policy

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads approval policies when the backing YAML file changes.
// Readers always see a complete evaluator; reloads swap it atomically.
type Watcher struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	evaluator *Evaluator
}

// NewWatcher loads the initial policy file and returns a watcher around it.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ev, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, logger: logger, evaluator: ev}, nil
}

// Evaluator returns the current evaluator.
func (w *Watcher) Evaluator() *Evaluator {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.evaluator
}

// Run watches the policy file until the context is cancelled. Watching the
// parent directory survives editors that replace the file on save.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.logger.Info("policy watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

// reload replaces the evaluator. A parse failure keeps the previous
// policies in effect.
func (w *Watcher) reload() {
	ev, err := Load(w.path)
	if err != nil {
		w.logger.Error("policy reload failed, keeping previous policies", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	w.evaluator = ev
	w.mu.Unlock()
	w.logger.Info("policies reloaded", "path", w.path)
}
