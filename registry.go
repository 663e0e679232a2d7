package mediasession

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/logging"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// DeviceRegistry keeps the latest device list reported by the platform.
// The list is replaced wholesale on every refresh.
type DeviceRegistry struct {
	lister   DeviceLister
	notifier DeviceChangeNotifier
	log      logging.LeveledLogger
	metrics  *metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	devices     []Device
	issued      uint64
	applied     uint64
	closed      bool
	subscribed  bool
	unsubscribe func()
	listeners   map[int]func([]Device)
	nextID      int
}

// NewDeviceRegistry creates a registry. notifier may be nil, in which case
// the list only changes through explicit Refresh calls.
func NewDeviceRegistry(lister DeviceLister, notifier DeviceChangeNotifier, opts ...Option) *DeviceRegistry {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &DeviceRegistry{
		lister:    lister,
		notifier:  notifier,
		log:       ilogging.NewLogger(o.loggerFactory, "mediasession/registry"),
		metrics:   o.metrics,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func([]Device)),
	}
}

// Refresh queries the platform for the current device list. On failure the
// previous list is kept. A result is dropped when a refresh issued later has
// already been applied.
func (r *DeviceRegistry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.issued++
	seq := r.issued
	r.mu.Unlock()

	devices, err := r.lister.ListDevices(ctx)
	if err != nil {
		r.metrics.refreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("mediasession: failed to enumerate devices: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if seq < r.applied {
		r.mu.Unlock()
		r.log.Debugf("dropping stale device list (request %d, applied %d)", seq, r.applied)
		r.metrics.refreshes.WithLabelValues("stale").Inc()
		return nil
	}
	r.applied = seq
	r.devices = append([]Device(nil), devices...)
	listeners := make([]func([]Device), 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	snapshot := r.devices
	r.mu.Unlock()

	r.metrics.refreshes.WithLabelValues("ok").Inc()
	r.metrics.observeDevices(snapshot)
	r.log.Debugf("device list refreshed: %d devices", len(snapshot))
	for _, l := range listeners {
		l(append([]Device(nil), snapshot...))
	}
	return nil
}

// Subscribe starts listening for platform device changes; every change
// triggers a background refresh. Calling it more than once has no effect.
func (r *DeviceRegistry) Subscribe() error {
	if r.notifier == nil {
		return fmt.Errorf("mediasession: device change notifications: %w", ErrUnsupported)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.subscribed {
		r.mu.Unlock()
		return nil
	}
	r.subscribed = true
	r.mu.Unlock()

	cancel, err := r.notifier.OnDeviceChange(r.refreshInBackground)
	if err != nil {
		r.mu.Lock()
		r.subscribed = false
		r.mu.Unlock()
		return fmt.Errorf("mediasession: failed to subscribe to device changes: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return ErrClosed
	}
	r.unsubscribe = cancel
	r.mu.Unlock()
	return nil
}

func (r *DeviceRegistry) refreshInBackground() {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	go func() {
		if err := r.Refresh(r.ctx); err != nil && err != ErrClosed {
			r.log.Warnf("background device refresh failed: %v", err)
		}
	}()
}

// OnUpdate registers fn to be called with every newly applied device list.
func (r *DeviceRegistry) OnUpdate(fn func([]Device)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Devices returns a copy of the current list in platform order.
func (r *DeviceRegistry) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Device(nil), r.devices...)
}

// DevicesOf returns the devices of kind, in platform order.
func (r *DeviceRegistry) DevicesOf(kind DeviceKind) []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filterDevices(r.devices, kind)
}

// Options returns the devices of kind together with their display names.
func (r *DeviceRegistry) Options(kind DeviceKind) []DeviceOption {
	return deviceOptions(r.DevicesOf(kind))
}

// Close releases the device change subscription. Refreshes still in flight
// complete without touching the registry.
func (r *DeviceRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.listeners = make(map[int]func([]Device))
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	r.cancel()
}
