package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"metricgovernor/internal/governor"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the limiter rules of a configuration file into a
// governor.Registry whenever the file changes. An edit that fails to load
// is logged and the previous rules stay active.
type Watcher struct {
	configPath string
	registry   *governor.Registry
	logger     *slog.Logger
	debounce   time.Duration
	onReload   func(*governor.RuleSet)

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook is called after every successful reload.
func WithReloadHook(fn func(*governor.RuleSet)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher publishing into registry.
func NewWatcher(configPath string, registry *governor.Registry, logger *slog.Logger, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		configPath: configPath,
		registry:   registry,
		logger:     logger,
		debounce:   DefaultDebounce,
		watcher:    fw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The directory is watched rather than the file so
// that editors replacing the file by rename are seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.configPath, err)
	}

	w.running = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchLoop(ctx, w.stopCh, w.done)

	w.logger.Info("Config watcher started", "config_path", w.configPath)
	return nil
}

// Stop stops watching, waits for the event loop to exit and releases the
// underlying watcher. A stopped Watcher cannot be restarted.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	close(w.stopCh)
	done := w.done
	w.mu.Unlock()

	<-done
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isConfigFileEvent(event) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debug("Config file event detected", "event", event.Op.String(), "file", event.Name)
			if debounce == nil {
				debounce = time.NewTimer(w.debounce)
			} else {
				debounce.Reset(w.debounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			w.Reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)

		case <-stopCh:
			w.logger.Info("Config watcher stopped")
			return

		case <-ctx.Done():
			w.logger.Info("Config watcher context cancelled")
			return
		}
	}
}

func (w *Watcher) isConfigFileEvent(event fsnotify.Event) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	configPath, err := filepath.Abs(w.configPath)
	if err != nil {
		return false
	}
	return eventPath == configPath
}

// Reload loads the configuration file and publishes its limiter rules. It is
// called by the event loop and may be called directly.
func (w *Watcher) Reload() error {
	start := time.Now()

	config, err := Load(w.configPath)
	if err != nil {
		w.logger.Error("Config reload failed; keeping previous limiter rules",
			"config_path", w.configPath,
			"error", err,
		)
		return err
	}

	rules, err := RuleSet(config)
	if err != nil {
		w.logger.Error("Config reload failed; keeping previous limiter rules",
			"config_path", w.configPath,
			"error", err,
		)
		return err
	}

	w.registry.Update(rules)
	w.logger.Info("Limiter rules reloaded",
		"config_path", w.configPath,
		"limiters", rules.Len(),
		"duration", time.Since(start),
	)
	if w.onReload != nil {
		w.onReload(rules)
	}
	return nil
}
