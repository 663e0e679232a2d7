// Package fswatch runs debounced filesystem watches over device directories.
package fswatch

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pion/logging"
)

// DefaultDebounce coalesces bursts of events, such as the several nodes a
// single device creates when it is plugged in.
const DefaultDebounce = 100 * time.Millisecond

// ErrNoDirs is returned when none of the directories could be watched.
var ErrNoDirs = errors.New("fswatch: no watchable directory")

// Config describes a watch.
type Config struct {
	Dirs []string
	// Match filters events by base name. Nil matches everything.
	Match    func(name string) bool
	Debounce time.Duration
	Log      logging.LeveledLogger
}

// Start watches cfg.Dirs until ctx is done and calls onChange once per
// burst of matching events. The returned channel is closed when the watch
// has ended. Directories that can't be watched are skipped with a warning.
func Start(ctx context.Context, cfg Config, onChange func()) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	added := 0
	for _, dir := range cfg.Dirs {
		if err := watcher.Add(dir); err != nil {
			cfg.Log.Warnf("Unable to watch %s: %v", dir, err)
			continue
		}
		added++
	}
	if added == 0 {
		_ = watcher.Close()
		return nil, ErrNoDirs
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil {
				cfg.Log.Warnf("Unable to close watcher: %v", err)
			}
		}()
		run(ctx, cfg, watcher, onChange)
	}()
	return done, nil
}

func run(ctx context.Context, cfg Config, watcher *fsnotify.Watcher, onChange func()) {
	// chanNotify debounces events so that a burst results in one call.
	var chanNotify <-chan time.Time

	cfg.Log.Debugf("Starting FS watcher on %v", cfg.Dirs)
	for {
		select {
		case <-ctx.Done():
			return

		case <-chanNotify:
			chanNotify = nil
			onChange()

		case event, ok := <-watcher.Events:
			if !ok {
				cfg.Log.Warnf("watcher.Events not ok")
				return
			}
			if cfg.Match != nil && !cfg.Match(filepath.Base(event.Name)) {
				continue
			}
			cfg.Log.Debugf("Watcher event: %s", event)
			chanNotify = time.After(cfg.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				cfg.Log.Warnf("watcher.Errors not ok")
				return
			}
			cfg.Log.Debugf("Watcher error: %v", err)
		}
	}
}
