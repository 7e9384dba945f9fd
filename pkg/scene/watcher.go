package scene

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeCallback is called with the freshly parsed scene after the file changes
type ChangeCallback func(s *Scene)

// Watcher reloads a scene file whenever it is written
type Watcher struct {
	watcher            *fsnotify.Watcher
	path               string
	stabilityThreshold time.Duration
	onChange           ChangeCallback
	logger             zerolog.Logger
	done               chan struct{}
	timer              *time.Timer
	timerMu            sync.Mutex
	stopOnce           sync.Once
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Path               string
	StabilityThreshold time.Duration
	OnChange           ChangeCallback
	Logger             zerolog.Logger
}

// NewWatcher creates a scene file watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("scene path is required")
	}
	if config.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if config.StabilityThreshold == 0 {
		config.StabilityThreshold = 200 * time.Millisecond
	}

	path, err := filepath.Abs(config.Path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve scene path: %w", err)
	}

	return &Watcher{
		watcher:            watcher,
		path:               path,
		stabilityThreshold: config.StabilityThreshold,
		onChange:           config.OnChange,
		logger:             config.Logger.With().Str("component", "scene-watcher").Logger(),
		done:               make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched so editors that
// replace the file on save are still picked up.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch scene directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Scene watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.debounce()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Scene watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.stabilityThreshold, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	s, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Ignoring invalid scene update")
		return
	}

	w.logger.Info().Str("path", w.path).Int("obstacles", len(s.Obstacles)).Msg("Scene changed")
	w.onChange(s)
}
