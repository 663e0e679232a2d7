// Package permission derives camera and microphone permission states from
// the accessibility of the device nodes, and watches them for changes.
// A capability is granted when the process can open at least one of its
// nodes, denied when it can open none, and prompt when no node exists.
package permission

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediasession"
	"github.com/pion/mediasession/internal/fswatch"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// Default device node patterns.
const (
	CameraNodes     = "/dev/video*"
	MicrophoneNodes = "/dev/snd/pcmC*D*c"
)

// AccessFunc checks whether the process may open path for reading and
// writing. Errors matching fs.ErrPermission mean access is denied.
type AccessFunc func(path string) error

// Option configures a Querier.
type Option func(*Querier)

// WithPattern overrides the node glob of c.
func WithPattern(c mediasession.Capability, pattern string) Option {
	return func(q *Querier) {
		q.patterns[c] = pattern
	}
}

// WithAccessFunc overrides the access check.
func WithAccessFunc(fn AccessFunc) Option {
	return func(q *Querier) {
		q.access = fn
	}
}

// WithDebounce sets how long node events are coalesced.
func WithDebounce(d time.Duration) Option {
	return func(q *Querier) {
		q.debounce = d
	}
}

// WithLoggerFactory sets the factory the querier logger is created from.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(q *Querier) {
		q.log = ilogging.NewLogger(f, "permission")
	}
}

// Querier implements mediasession.PermissionQuerier.
type Querier struct {
	patterns map[mediasession.Capability]string
	access   AccessFunc
	debounce time.Duration
	log      logging.LeveledLogger
}

// New creates a querier using the default node patterns.
func New(opts ...Option) *Querier {
	q := &Querier{
		patterns: map[mediasession.Capability]string{
			mediasession.CapabilityCamera:     CameraNodes,
			mediasession.CapabilityMicrophone: MicrophoneNodes,
		},
		access: defaultAccess,
		log:    ilogging.NewLogger(nil, "permission"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// QueryPermission implements mediasession.PermissionQuerier.
func (q *Querier) QueryPermission(ctx context.Context, c mediasession.Capability) (mediasession.PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.access == nil {
		return nil, fmt.Errorf("permission: %w", mediasession.ErrUnsupported)
	}
	pattern, ok := q.patterns[c]
	if !ok {
		return nil, fmt.Errorf("permission: %s: %w", c, mediasession.ErrUnsupported)
	}
	s := &Status{
		q:        q,
		pattern:  pattern,
		handlers: make(map[int]func(mediasession.PermissionState)),
	}
	s.state = q.evaluate(pattern)
	return s, nil
}

func (q *Querier) evaluate(pattern string) mediasession.PermissionState {
	nodes, err := filepath.Glob(pattern)
	if err != nil {
		q.log.Warnf("bad node pattern %q: %v", pattern, err)
		return mediasession.PermissionUnknown
	}
	state := mediasession.PermissionPrompt
	for _, node := range nodes {
		err := q.access(node)
		switch {
		case err == nil:
			return mediasession.PermissionGranted
		case errors.Is(err, fs.ErrPermission):
			state = mediasession.PermissionDenied
		default:
			q.log.Debugf("skipping %s: %v", node, err)
		}
	}
	return state
}

// Status implements mediasession.PermissionStatus. Node changes are watched
// while listeners are registered.
type Status struct {
	q       *Querier
	pattern string

	mu       sync.Mutex
	state    mediasession.PermissionState
	handlers map[int]func(mediasession.PermissionState)
	nextID   int
	cancel   context.CancelFunc
}

// State implements mediasession.PermissionStatus.
func (s *Status) State() mediasession.PermissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		s.state = s.q.evaluate(s.pattern)
	}
	return s.state
}

// OnChange implements mediasession.PermissionStatus. If the watch can't be
// started the listener stays registered but never fires. A change since the
// state was last read is reported to fn right away.
func (s *Status) OnChange(fn func(mediasession.PermissionState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = fn
	changed := false
	if s.cancel == nil && len(s.handlers) == 1 {
		changed = s.startLocked()
	}
	state := s.state
	s.mu.Unlock()

	if changed {
		fn(state)
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.handlers[id]; !ok {
			return
		}
		delete(s.handlers, id)
		if len(s.handlers) == 0 && s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
	}
}

// startLocked starts watching the nodes and reports whether the state
// changed since it was last read.
func (s *Status) startLocked() bool {
	base := filepath.Base(s.pattern)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := fswatch.Start(ctx, fswatch.Config{
		Dirs: []string{filepath.Dir(s.pattern)},
		Match: func(name string) bool {
			ok, _ := filepath.Match(base, name)
			return ok
		},
		Debounce: s.q.debounce,
		Log:      s.q.log,
	}, s.reevaluate)
	if err != nil {
		cancel()
		s.q.log.Warnf("unable to watch %s: %v", s.pattern, err)
		return false
	}
	s.cancel = cancel

	state := s.q.evaluate(s.pattern)
	if state == s.state {
		return false
	}
	s.q.log.Infof("%s changed from %s to %s", s.pattern, s.state, state)
	s.state = state
	return true
}

func (s *Status) reevaluate() {
	state := s.q.evaluate(s.pattern)

	s.mu.Lock()
	if state == s.state || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.q.log.Infof("%s changed from %s to %s", s.pattern, s.state, state)
	s.state = state
	handlers := make([]func(mediasession.PermissionState), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(state)
	}
}
