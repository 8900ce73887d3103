package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 150 * time.Millisecond

// Logger receives watcher diagnostics. *logbook.Logbook satisfies it.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// ChangeFunc receives a document that changed on disk. It runs on the
// watcher goroutine.
type ChangeFunc func(doc *Document, hash string)

// Watcher reloads the document when another process rewrites it. Writes
// whose content hash was passed to Remember are ignored, so the workspace
// does not reload its own saves.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange ChangeFunc
	logger   Logger

	lastHash  string
	pending   bool
	lastEvent time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger routes watcher diagnostics.
func WithLogger(logger Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher prepares a watcher for the document at path. The parent
// directory is watched so atomic renames are seen.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("document: watcher needs a change callback")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("document: resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("document: start watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fsw,
		path:     abs,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   nopLogger{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Remember records hash as the current on-disk content.
func (w *Watcher) Remember(hash string) {
	w.mu.Lock()
	w.lastHash = hash
	w.mu.Unlock()
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("document: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching %s", w.path)
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the inotify handle. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()
	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	tick := time.NewTicker(max(w.debounce/3, 10*time.Millisecond))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
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
			w.logger.Warn("document watcher: %v", err)
		case now := <-tick.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}
	w.mu.Lock()
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	if !w.pending || now.Sub(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("document %s removed; keeping current state", w.path)
			return
		}
		w.logger.Warn("document reload: %v", err)
		return
	}
	hash := Hash(data)
	w.mu.Lock()
	same := hash == w.lastHash
	if !same {
		w.lastHash = hash
	}
	w.mu.Unlock()
	if same {
		return
	}
	doc, err := Parse(data)
	if err != nil {
		w.logger.Warn("document reload rejected: %v", err)
		return
	}
	w.onChange(doc, hash)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
