// Package watcher watches feed directories with fsnotify and imports new or
// changed feed files after a debounce.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// ImportFunc imports one feed file.
type ImportFunc func(ctx context.Context, path string)

// fileStamp identifies a file version; an unchanged stamp is not re-imported.
type fileStamp struct {
	size    int64
	modTime time.Time
}

// Watcher watches feed directories (not recursively) and calls onImport for
// files with a matching extension.
type Watcher struct {
	dirs        []string
	extensions  []string
	onImport    ImportFunc
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	ctx         context.Context
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	imported    map[string]fileStamp
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (file events, imports).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is imported.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher over dirs. extensions filter which files are
// imported (empty = all).
func NewWatcher(dirs []string, extensions []string, onImport ImportFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dirs:        dirs,
		extensions:  extensions,
		onImport:    onImport,
		debounce:    defaultDebounce,
		ctx:         context.Background(),
		debounceMap: make(map[string]*time.Timer),
		imported:    make(map[string]fileStamp),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Start starts the watcher. Missing directories are created. It runs until
// ctx is cancelled or Stop is called; ctx is also passed to onImport.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			_ = fw.Close()
			return err
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return err
		}
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.logger.Debug("watcher started", zap.Strings("dirs", w.dirs), zap.Strings("extensions", w.extensions))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.matchExtension(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.debounceImport(path)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.mu.Lock()
		if t, ok := w.debounceMap[path]; ok {
			t.Stop()
			delete(w.debounceMap, path)
		}
		delete(w.imported, path)
		w.mu.Unlock()
	}
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceImport(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.importFile(path)
	})
}

// importFile calls onImport unless the file is gone or unchanged since its last import.
func (w *Watcher) importFile(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}

	w.mu.Lock()
	if prev, ok := w.imported[path]; ok && prev == stamp {
		w.mu.Unlock()
		w.logger.Debug("watcher skipping unchanged file", zap.String("path", path))
		return
	}
	w.imported[path] = stamp
	ctx := w.ctx
	w.mu.Unlock()

	w.logger.Debug("watcher importing file", zap.String("path", path))
	if w.onImport != nil {
		w.onImport(ctx, path)
	}
}

// Directories returns a copy of the watched directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.dirs...)
}

// SyncExistingFiles imports every matching file already present in the
// watched directories, in name order. Call it after Start.
func (w *Watcher) SyncExistingFiles() {
	for _, dir := range w.Directories() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			w.logger.Warn("watcher cannot read directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if w.matchExtension(path) {
				w.importFile(path)
			}
		}
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
