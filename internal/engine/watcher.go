package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-initializes a store when its working file disappears from disk.
type Watcher struct {
	store   *CollectionStore
	watcher *fsnotify.Watcher
	target  string
	timeout time.Duration
	logger  *zap.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts watching the directory of the store's working file.
// timeout bounds each re-initialization.
func NewWatcher(store *CollectionStore, timeout time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	target, err := filepath.Abs(store.paths.Working)
	if err != nil {
		return nil, fmt.Errorf("resolving working file: %w", err)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		store:   store,
		watcher: fsWatcher,
		target:  target,
		timeout: timeout,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.watchLoop()

	logger.Info("watching working file", zap.String("path", target))
	return w, nil
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.target {
		return
	}
	// Our own saves rename the temp file onto the target, which shows up as Create.
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if _, err := os.Stat(w.target); err == nil {
		return
	}

	w.logger.Warn("working file removed, re-initializing", zap.String("path", w.target))
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.store.Reinitialize(ctx); err != nil {
		w.logger.Error("re-initialization failed", zap.Error(err))
	}
}

// Close stops the watcher and waits for the loop to exit.
func (w *Watcher) Close() error {
	close(w.stopCh)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
