package logging

import (
	"github.com/pion/logging"
)

var loggerFactory logging.LoggerFactory = logging.NewDefaultLoggerFactory()

// NewLogger returns a leveled logger for scope. A nil factory falls back to
// the package default, which honours the PION_LOG_* environment variables.
func NewLogger(factory logging.LoggerFactory, scope string) logging.LeveledLogger {
	if factory == nil {
		factory = loggerFactory
	}
	return factory.NewLogger(scope)
}
