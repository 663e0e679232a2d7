package mediasession

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/logging"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// PiPPhase is the picture-in-picture state as seen by PiPController.
type PiPPhase int

// PiPPhase definitions.
const (
	PiPIdle PiPPhase = iota
	PiPEntering
	PiPActive
	PiPExiting
)

func (p PiPPhase) String() string {
	switch p {
	case PiPEntering:
		return "entering"
	case PiPActive:
		return "active"
	case PiPExiting:
		return "exiting"
	default:
		return "idle"
	}
}

// PiPState pairs what was asked for with what the platform reports.
// Actual is authoritative.
type PiPState struct {
	Requested bool
	Actual    bool
	Phase     PiPPhase
}

// PiPController manages the picture-in-picture state of a display sink.
// The platform may leave picture-in-picture on its own, e.g. when the user
// closes the window; the controller follows it.
type PiPController struct {
	pip     PictureInPicture
	log     logging.LeveledLogger
	metrics *metrics

	toggleMu sync.Mutex

	mu        sync.Mutex
	state     PiPState
	sink      DisplaySink
	stopLeave func()
}

// NewPiPController creates a controller. A nil pip means the platform has no
// picture-in-picture support.
func NewPiPController(pip PictureInPicture, opts ...Option) *PiPController {
	o := newOptions(opts)
	return &PiPController{
		pip:     pip,
		log:     ilogging.NewLogger(o.loggerFactory, "mediasession/pip"),
		metrics: o.metrics,
	}
}

// Available reports whether picture-in-picture can be offered at all.
func (c *PiPController) Available() bool {
	return c.pip != nil && c.pip.Enabled()
}

// Toggle moves sink out of picture-in-picture when it is the current
// picture-in-picture element and into it otherwise. A sink that hasn't
// loaded its metadata yet is left alone.
func (c *PiPController) Toggle(ctx context.Context, sink DisplaySink) error {
	if !c.Available() {
		return fmt.Errorf("mediasession: picture-in-picture: %w", ErrUnsupported)
	}

	c.toggleMu.Lock()
	defer c.toggleMu.Unlock()

	if c.pip.Current() == sink {
		return c.exit(ctx)
	}
	if sink.ReadyState() < HaveMetadata {
		c.log.Debugf("display sink not ready (%d), ignoring picture-in-picture request", sink.ReadyState())
		return nil
	}
	return c.enter(ctx, sink)
}

func (c *PiPController) enter(ctx context.Context, sink DisplaySink) error {
	c.mu.Lock()
	c.state.Requested = true
	c.state.Phase = PiPEntering
	c.mu.Unlock()

	if err := c.pip.Request(ctx, sink); err != nil {
		c.mu.Lock()
		c.state = PiPState{}
		c.mu.Unlock()
		return fmt.Errorf("mediasession: failed to enter picture-in-picture: %w", err)
	}

	c.mu.Lock()
	c.state = PiPState{Requested: true, Actual: true, Phase: PiPActive}
	c.sink = sink
	c.mu.Unlock()
	c.metrics.pipActive.Set(1)
	c.log.Debugf("entered picture-in-picture")

	// left removes the listener once it is installed; if the platform
	// reports the exit before OnLeave returns, it is removed below.
	stop := c.pip.OnLeave(sink, func() {
		c.left(sink)
	})

	c.mu.Lock()
	if c.sink != sink || !c.state.Actual {
		c.mu.Unlock()
		stop()
		return nil
	}
	c.stopLeave = stop
	c.mu.Unlock()
	return nil
}

func (c *PiPController) exit(ctx context.Context) error {
	c.mu.Lock()
	c.state.Requested = false
	c.state.Phase = PiPExiting
	c.mu.Unlock()

	if err := c.pip.Exit(ctx); err != nil {
		c.mu.Lock()
		c.state.Phase = PiPActive
		c.mu.Unlock()
		return fmt.Errorf("mediasession: failed to exit picture-in-picture: %w", err)
	}

	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	c.left(sink)
	return nil
}

// left records that sink is no longer in picture-in-picture.
func (c *PiPController) left(sink DisplaySink) {
	c.mu.Lock()
	if c.sink != sink {
		c.mu.Unlock()
		return
	}
	stop := c.stopLeave
	c.stopLeave = nil
	c.sink = nil
	c.state = PiPState{}
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.metrics.pipActive.Set(0)
	c.log.Debugf("left picture-in-picture")
}

// State returns the picture-in-picture state.
func (c *PiPController) State() PiPState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close drops the out-of-band exit listener.
func (c *PiPController) Close() {
	c.mu.Lock()
	stop := c.stopLeave
	c.stopLeave = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}
