// Package devicewatch reports media device changes by watching device nodes.
package devicewatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediasession"
	"github.com/pion/mediasession/internal/fswatch"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// DefaultDirs returns the directories holding capture and playback device
// nodes on this platform.
func DefaultDirs() []string {
	if runtime.GOOS == "linux" {
		return []string{"/dev", "/dev/snd"}
	}
	return nil
}

var nodePrefixes = []string{"video", "media", "pcmC", "controlC"}

// IsMediaNode reports whether name is a V4L2 or ALSA device node.
func IsMediaNode(name string) bool {
	for _, p := range nodePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDirs overrides the watched directories.
func WithDirs(dirs ...string) Option {
	return func(w *Watcher) {
		w.cfg.Dirs = dirs
	}
}

// WithDebounce sets how long events are coalesced.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.cfg.Debounce = d
	}
}

// WithLoggerFactory sets the factory the watcher logger is created from.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(w *Watcher) {
		w.cfg.Log = ilogging.NewLogger(f, "devicewatch")
	}
}

// Watcher implements mediasession.DeviceChangeNotifier. The filesystem watch
// runs only while there are subscribers.
type Watcher struct {
	cfg fswatch.Config

	mu       sync.Mutex
	handlers map[int]func()
	nextID   int
	cancel   context.CancelFunc
	done     <-chan struct{}
}

// New creates a watcher over DefaultDirs.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		cfg: fswatch.Config{
			Dirs:  DefaultDirs(),
			Match: IsMediaNode,
			Log:   ilogging.NewLogger(nil, "devicewatch"),
		},
		handlers: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnDeviceChange implements mediasession.DeviceChangeNotifier.
func (w *Watcher) OnDeviceChange(fn func()) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		done, err := fswatch.Start(ctx, w.cfg, w.notify)
		if err != nil {
			cancel()
			if errors.Is(err, fswatch.ErrNoDirs) {
				return nil, fmt.Errorf("devicewatch: %w", mediasession.ErrUnsupported)
			}
			return nil, err
		}
		w.cancel, w.done = cancel, done
	}

	id := w.nextID
	w.nextID++
	w.handlers[id] = fn

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.handlers[id]; !ok {
			return
		}
		delete(w.handlers, id)
		if len(w.handlers) == 0 {
			w.stopLocked()
		}
	}, nil
}

// Close stops watching and drops all subscribers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	done := w.done
	w.handlers = make(map[int]func())
	w.stopLocked()
	w.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

func (w *Watcher) stopLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel, w.done = nil, nil
	}
}

func (w *Watcher) notify() {
	w.mu.Lock()
	handlers := make([]func(), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}
