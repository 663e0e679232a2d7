package mediasession

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "mediasession"

type metrics struct {
	acquisitions   *prometheus.CounterVec
	tracksEnded    prometheus.Counter
	refreshes      *prometheus.CounterVec
	devices        *prometheus.GaugeVec
	recordingState prometheus.Gauge
	pipActive      prometheus.Gauge
}

func newMetrics(r prometheus.Registerer) *metrics {
	m := &metrics{
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acquisitions_total",
			Help:      "Stream acquisitions by source and result.",
		}, []string{"source", "result"}),
		tracksEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tracks_ended_total",
			Help:      "Active streams ended by one of their tracks.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "device_refreshes_total",
			Help:      "Device list refreshes by result.",
		}, []string{"result"}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "devices",
			Help:      "Devices currently known by kind.",
		}, []string{"kind"}),
		recordingState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "recording_state",
			Help:      "0 inactive, 1 recording, 2 paused.",
		}),
		pipActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "picture_in_picture_active",
			Help:      "1 while the display sink is in picture-in-picture.",
		}),
	}
	if r == nil {
		return m
	}

	m.acquisitions = register(r, m.acquisitions)
	m.tracksEnded = register(r, m.tracksEnded)
	m.refreshes = register(r, m.refreshes)
	m.devices = register(r, m.devices)
	m.recordingState = register(r, m.recordingState)
	m.pipActive = register(r, m.pipActive)
	return m
}

// register returns the already registered collector when c was registered
// before, so several sessions can share one registry.
func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observeDevices(devices []Device) {
	for _, k := range []DeviceKind{VideoInput, AudioInput, AudioOutput} {
		m.devices.WithLabelValues(k.String()).Set(float64(len(filterDevices(devices, k))))
	}
}
