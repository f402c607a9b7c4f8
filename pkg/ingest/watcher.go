package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// HandleFunc is called with the path of a created or modified file.
type HandleFunc func(ctx context.Context, path string) error

// Watcher calls a handler when files with a watched extension change in a
// directory. Bursts of events for one path are coalesced into one call.
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	debounce   time.Duration
	handle     HandleFunc
	logger     *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func NewWatcher(extensions []string, debounce time.Duration, handle HandleFunc, logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = []string{".csv", ".md", ".mdx", ".txt"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:    w,
		extensions: extensions,
		debounce:   debounce,
		handle:     handle,
		logger:     logger.Named("watcher"),
		timers:     make(map[string]*time.Timer),
	}, nil
}

// Watch monitors dir until ctx is done or the watcher is closed. Pending
// handler calls are cancelled on return.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching directory", zap.String("dir", dir))

	defer w.wg.Wait()
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !hasExtension(event.Name, w.extensions) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.logger.Info("file changed", zap.String("path", path))
		if err := w.handle(ctx, path); err != nil {
			w.logger.Error("failed to handle file", zap.String("path", path), zap.Error(err))
		}
	})
	w.timers[path] = timer
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
