package mediasession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// PermissionWatcher tracks the permission state of capabilities and reports
// every transition into PermissionGranted. Device labels stay hidden until
// access is granted, so the session refreshes its device list on each grant.
type PermissionWatcher struct {
	querier PermissionQuerier
	log     logging.LeveledLogger

	mu      sync.Mutex
	stopped bool
	states  map[Capability]PermissionState
	cancels []func()
}

// NewPermissionWatcher creates a watcher. A nil querier is treated like a
// platform without a permission API.
func NewPermissionWatcher(querier PermissionQuerier, opts ...Option) *PermissionWatcher {
	o := newOptions(opts)
	return &PermissionWatcher{
		querier: querier,
		log:     ilogging.NewLogger(o.loggerFactory, "mediasession/permission"),
		states:  make(map[Capability]PermissionState),
	}
}

// Watch queries the permission state of c and keeps watching it. onGranted
// is called once for every transition into PermissionGranted; a state that
// is already granted when first observed doesn't count as a transition.
//
// Platforms without a permission API make Watch a no-op.
func (w *PermissionWatcher) Watch(ctx context.Context, c Capability, onGranted func()) error {
	if w.querier == nil {
		w.log.Debugf("no permission querier, not watching %s", c)
		return nil
	}

	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return nil
	}

	status, err := w.querier.QueryPermission(ctx, c)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			w.log.Infof("permission query for %s unsupported, skipping", c)
			return nil
		}
		return fmt.Errorf("mediasession: failed to query %s permission: %w", c, err)
	}

	initial := status.State()
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.states[c] = initial
	w.mu.Unlock()
	w.log.Debugf("%s permission: %s", c, initial)

	cancel := status.OnChange(func(next PermissionState) {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		prev := w.states[c]
		w.states[c] = next
		w.mu.Unlock()

		w.log.Debugf("%s permission: %s -> %s", c, prev, next)
		if next == PermissionGranted && prev != PermissionGranted && onGranted != nil {
			onGranted()
		}
	})

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		cancel()
		return nil
	}
	w.cancels = append(w.cancels, cancel)
	w.mu.Unlock()
	return nil
}

// State returns the last observed state of c.
func (w *PermissionWatcher) State(c Capability) PermissionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[c]
}

// Stop deregisters every listener. Queries still in flight are discarded
// when they resolve. Stop may be called any number of times.
func (w *PermissionWatcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	cancels := w.cancels
	w.cancels = nil
	w.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
