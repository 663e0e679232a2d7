package mediasession

import (
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Options stores parameters shared by the session components.
type Options struct {
	loggerFactory logging.LoggerFactory
	autoRevoke    bool
	registerer    prometheus.Registerer
	metrics       *metrics
}

// Option is a type of session functional option.
type Option func(*Options)

// WithLoggerFactory sets the factory loggers are created from. By default the
// pion default factory is used, configured through PION_LOG_* variables.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(o *Options) {
		o.loggerFactory = f
	}
}

// WithAutoRevoke makes StreamSession stop the previous stream before
// installing a newly acquired one. Off by default: acquiring without a
// prior Revoke leaves the previous stream running.
func WithAutoRevoke(enabled bool) Option {
	return func(o *Options) {
		o.autoRevoke = enabled
	}
}

// WithRegisterer registers the session metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *Options) {
		o.registerer = r
	}
}

func newOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = newMetrics(o.registerer)
	}
	return o
}

// withMetrics shares one metrics set between the components of a Session.
func withMetrics(m *metrics) Option {
	return func(o *Options) {
		o.metrics = m
	}
}
