package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/termlens/internal/logging"
	"github.com/asheshgoplani/termlens/internal/stream"
)

var watchLog = logging.ForComponent(logging.CompConfig)

// Watcher hot-reloads the custom pattern section of a config file into a
// pattern registry. It watches the file's directory (editors replace the
// file on save, which breaks a direct file watch) and debounces rapid
// event bursts.
type Watcher struct {
	path     string
	registry *stream.Registry
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	names []string // custom pattern names currently installed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for the config file at path. The initial
// pattern set from cfg is installed immediately.
func NewWatcher(path string, cfg *Config, registry *stream.Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     path,
		registry: registry,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
	}
	w.install(cfg)
	return w, nil
}

// Start begins watching for config changes.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop cancels the watch loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var debounce *time.Timer
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			watchLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

// reload re-reads the config file and swaps the custom pattern set.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		watchLog.Warn("config_reload_failed",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}
	w.install(cfg)
	watchLog.Info("custom_patterns_reloaded",
		slog.String("path", w.path),
		slog.Int("patterns", len(cfg.Patterns)))
}

// install removes the previously installed custom patterns and registers
// the new set.
func (w *Watcher) install(cfg *Config) {
	defs, errs := cfg.CompilePatterns()
	for _, err := range errs {
		watchLog.Warn("custom_pattern_skipped", slog.String("error", err.Error()))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, name := range w.names {
		w.registry.Remove(name)
	}
	w.names = w.names[:0]
	for _, def := range defs {
		w.registry.Add(def)
		w.names = append(w.names, def.Name)
	}
}
