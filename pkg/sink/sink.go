// Package sink provides a headless mediasession.DisplaySink which consumes
// the video frames of its source.
package sink

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediasession"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// FrameSource is implemented by streams whose video can be read frame by
// frame. Frames must stay valid after release.
type FrameSource interface {
	NewFrameReader() (video.Reader, error)
}

// FrameSink renders by keeping the latest frame. Frames are consumed as soon
// as a source is set; while paused they only advance the ready state.
type FrameSink struct {
	log logging.LeveledLogger

	mu     sync.Mutex
	source mediasession.Stream
	gen    uint64
	cancel context.CancelFunc
	paused bool
	ready  mediasession.ReadyState
	last   image.Image
	frames uint64
	sinkID string
}

// Option configures a FrameSink.
type Option func(*FrameSink)

// WithLoggerFactory sets the factory the sink logger is created from.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(s *FrameSink) {
		s.log = ilogging.NewLogger(f, "sink")
	}
}

// New creates a paused sink without a source.
func New(opts ...Option) *FrameSink {
	s := &FrameSink{
		log:    ilogging.NewLogger(nil, "sink"),
		paused: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSource implements mediasession.DisplaySink.
func (s *FrameSink) SetSource(stream mediasession.Stream) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.source = stream
	s.ready = mediasession.HaveNothing
	s.last = nil
	gen := s.gen

	var r video.Reader
	if fs, ok := stream.(FrameSource); ok {
		var err error
		if r, err = fs.NewFrameReader(); err != nil {
			s.log.Warnf("source %s has no readable video: %v", stream.ID(), err)
		}
	}
	if r == nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.consume(ctx, gen, r)
}

// Source implements mediasession.DisplaySink.
func (s *FrameSink) Source() mediasession.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Paused implements mediasession.DisplaySink.
func (s *FrameSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Play implements mediasession.DisplaySink.
func (s *FrameSink) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

// Pause implements mediasession.DisplaySink.
func (s *FrameSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// ReadyState implements mediasession.DisplaySink.
func (s *FrameSink) ReadyState() mediasession.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// SetSinkID implements mediasession.AudioOutputSink. A headless sink plays
// no audio, so the id is only recorded.
func (s *FrameSink) SetSinkID(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinkID = deviceID
	return nil
}

// SinkID returns the output device id set last.
func (s *FrameSink) SinkID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinkID
}

// Snapshot returns the latest rendered frame, or nil.
func (s *FrameSink) Snapshot() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Frames returns the number of frames rendered since creation.
func (s *FrameSink) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close detaches the current source.
func (s *FrameSink) Close() error {
	s.SetSource(nil)
	return nil
}

func (s *FrameSink) consume(ctx context.Context, gen uint64, r video.Reader) {
	for ctx.Err() == nil {
		img, release, err := r.Read()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.Debugf("frame reader finished: %v", err)
			}
			return
		}
		s.render(gen, img)
		release()
	}
}

func (s *FrameSink) render(gen uint64, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}
	switch {
	case s.ready == mediasession.HaveNothing:
		s.ready = mediasession.HaveMetadata
	case s.paused:
		return
	default:
		s.ready = mediasession.HaveEnoughData
	}
	s.last = img
	s.frames++
}
