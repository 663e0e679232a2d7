package mediasession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// SourceKind selects where a stream is captured from.
type SourceKind int

// SourceKind definitions.
const (
	// SourceCamera captures camera and microphone.
	SourceCamera SourceKind = iota + 1
	// SourceDesktop captures the screen, video only.
	SourceDesktop
)

func (k SourceKind) String() string {
	switch k {
	case SourceCamera:
		return "camera"
	case SourceDesktop:
		return "desktop"
	default:
		return "unknown"
	}
}

// EndReason tells why the active stream went away.
type EndReason int

// EndReason definitions.
const (
	// EndReasonTrackEnded means one of the stream's tracks ended on its own,
	// e.g. the device was unplugged or screen sharing was stopped.
	EndReasonTrackEnded EndReason = iota + 1
	// EndReasonRevoked means the stream was stopped through Revoke.
	EndReasonRevoked
)

func (r EndReason) String() string {
	switch r {
	case EndReasonTrackEnded:
		return "track ended"
	case EndReasonRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// ActiveStreamer exposes the currently active stream.
type ActiveStreamer interface {
	Active() Stream
}

// StreamSession owns at most one active stream and renders it to a display
// sink.
//
// Acquiring a new stream replaces the active reference without stopping the
// previous stream: its tracks keep running until the caller revokes them.
// WithAutoRevoke switches to stopping the previous stream first.
type StreamSession struct {
	media      MediaProvider
	sink       DisplaySink
	autoRevoke bool
	log        logging.LeveledLogger
	metrics    *metrics

	sinkMu sync.Mutex

	mu        sync.Mutex
	stream    Stream
	unwatch   []func()
	closed    bool
	listeners map[int]func(Stream, EndReason)
	nextID    int
}

// NewStreamSession creates a session rendering to sink.
func NewStreamSession(media MediaProvider, sink DisplaySink, opts ...Option) *StreamSession {
	o := newOptions(opts)
	return &StreamSession{
		media:      media,
		sink:       sink,
		autoRevoke: o.autoRevoke,
		log:        ilogging.NewLogger(o.loggerFactory, "mediasession/stream"),
		metrics:    o.metrics,
		listeners:  make(map[int]func(Stream, EndReason)),
	}
}

// Constraints returns the constraints Acquire requests for kind and sel.
func Constraints(kind SourceKind, sel Selection) StreamConstraints {
	switch kind {
	case SourceCamera:
		return StreamConstraints{
			Audio: makeConstraint(sel.Microphone),
			Video: makeConstraint(sel.Camera),
		}
	case SourceDesktop:
		return StreamConstraints{
			Video: TrackConstraint{Requested: true},
		}
	default:
		return StreamConstraints{}
	}
}

// Acquire captures a stream from kind, installs it as the active stream and
// renders it to the sink.
//
// If the platform fails, an *AcquireError is returned and the active stream
// stays as it was. If the sink refuses to play, a *PlaybackError is returned
// together with the installed stream.
func (s *StreamSession) Acquire(ctx context.Context, kind SourceKind, sel Selection) (Stream, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	constraints := Constraints(kind, sel)
	var (
		stream Stream
		err    error
	)
	switch kind {
	case SourceCamera:
		stream, err = s.media.GetUserMedia(ctx, constraints)
	case SourceDesktop:
		stream, err = s.media.GetDisplayMedia(ctx, constraints)
	default:
		err = fmt.Errorf("unknown source kind %d", kind)
	}
	if err == nil && stream == nil {
		err = ErrDeviceUnavailable
	}
	if err != nil {
		s.metrics.acquisitions.WithLabelValues(kind.String(), "error").Inc()
		return nil, &AcquireError{Source: kind, Err: err}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debugf("session closed while acquiring, stopping stream %s", stream.ID())
		stopTracks(stream)
		return nil, ErrClosed
	}
	prev := s.stream
	prevUnwatch := s.unwatch
	s.stream = stream
	s.unwatch = nil
	s.mu.Unlock()

	paused := s.syncSink(false)

	for _, cancel := range prevUnwatch {
		cancel()
	}
	if prev != nil {
		if s.autoRevoke {
			s.log.Debugf("stopping previous stream %s", prev.ID())
			if err := stopTracks(prev); err != nil {
				s.log.Warnf("failed to stop previous stream: %v", err)
			}
			s.notify(prev, EndReasonRevoked)
		} else {
			s.log.Debugf("previous stream %s left running", prev.ID())
		}
	}

	s.watch(stream)
	s.metrics.acquisitions.WithLabelValues(kind.String(), "ok").Inc()
	s.log.Infof("acquired %s stream %s with %d tracks", kind, stream.ID(), len(stream.Tracks()))

	if paused {
		if err := s.sink.Play(ctx); err != nil {
			s.log.Warnf("display sink refused playback: %v", err)
			return stream, &PlaybackError{Err: err}
		}
	}
	return stream, nil
}

// watch installs the end-of-track observers of stream. The observers are
// only registered while stream is still the active one.
func (s *StreamSession) watch(stream Stream) {
	tracks := stream.Tracks()
	cancels := make([]func(), 0, len(tracks))
	for _, t := range tracks {
		cancels = append(cancels, t.OnEnded(func() {
			s.trackEnded(stream)
		}))
	}

	s.mu.Lock()
	if s.stream != stream {
		s.mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}
		return
	}
	s.unwatch = cancels
	s.mu.Unlock()
}

func (s *StreamSession) trackEnded(stream Stream) {
	s.mu.Lock()
	if s.stream != stream {
		s.mu.Unlock()
		return
	}
	s.stream = nil
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()

	s.syncSink(false)
	for _, cancel := range unwatch {
		cancel()
	}
	s.metrics.tracksEnded.Inc()
	s.log.Infof("stream %s ended", stream.ID())
	s.notify(stream, EndReasonTrackEnded)
}

// Revoke pauses the sink, clears its source and stops every track of the
// active stream. Without an active stream it does nothing.
func (s *StreamSession) Revoke() error {
	s.mu.Lock()
	stream := s.stream
	if stream == nil {
		s.mu.Unlock()
		return nil
	}
	s.stream = nil
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()

	s.syncSink(true)
	for _, cancel := range unwatch {
		cancel()
	}
	err := stopTracks(stream)
	s.log.Infof("revoked stream %s", stream.ID())
	s.notify(stream, EndReasonRevoked)
	return err
}

// syncSink points the sink at the active stream and reports whether the sink
// is paused. With pause set, a sink left without a source is paused too.
// Sink calls are serialized by sinkMu and never made while holding mu.
func (s *StreamSession) syncSink(pause bool) bool {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	stream := s.Active()
	if pause && stream == nil && !s.sink.Paused() {
		s.sink.Pause()
	}
	if s.sink.Source() != stream {
		s.sink.SetSource(stream)
	}
	return s.sink.Paused()
}

// Active returns the active stream or nil.
func (s *StreamSession) Active() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// OnStreamEnded registers fn to be called whenever a stream stops being the
// active one because a track ended or it was revoked.
func (s *StreamSession) OnStreamEnded(fn func(Stream, EndReason)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *StreamSession) notify(stream Stream, reason EndReason) {
	s.mu.Lock()
	listeners := make([]func(Stream, EndReason), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(stream, reason)
	}
}

// Close revokes the active stream and rejects further acquisitions.
func (s *StreamSession) Close() error {
	err := s.Revoke()
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int]func(Stream, EndReason))
	s.mu.Unlock()
	return err
}

func stopTracks(stream Stream) error {
	var errs []error
	for _, t := range stream.Tracks() {
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("track %s: %w", t.ID(), err))
		}
	}
	return errors.Join(errs...)
}
