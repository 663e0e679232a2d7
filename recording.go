package mediasession

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/logging"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// RecordingController drives a recorder over the active stream.
//
//	inactive --Toggle--> recording --Toggle--> paused --Toggle--> recording
//
// A recorder is bound to the stream that was active when recording started
// and keeps recording it even if another stream is acquired later. The
// recorder is stopped as soon as any track of that stream ends.
type RecordingController struct {
	streams     ActiveStreamer
	newRecorder RecorderFactory
	log         logging.LeveledLogger
	metrics     *metrics

	// toggleMu serializes Toggle and Stop; mu guards the fields below it.
	toggleMu sync.Mutex

	mu       sync.Mutex
	state    RecordingState
	recorder Recorder
	stream   Stream
	unwatch  []func()
}

// NewRecordingController creates a controller recording streams of streams.
func NewRecordingController(streams ActiveStreamer, newRecorder RecorderFactory, opts ...Option) *RecordingController {
	o := newOptions(opts)
	return &RecordingController{
		streams:     streams,
		newRecorder: newRecorder,
		log:         ilogging.NewLogger(o.loggerFactory, "mediasession/recording"),
		metrics:     o.metrics,
	}
}

// Toggle pauses an ongoing recording, resumes a paused one or starts a new
// recording of the active stream. Without an active stream it does nothing.
func (c *RecordingController) Toggle(ctx context.Context) error {
	c.toggleMu.Lock()
	defer c.toggleMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	state := c.state
	recorder := c.recorder
	c.mu.Unlock()

	switch state {
	case RecordingRecording:
		if err := recorder.Pause(); err != nil {
			return fmt.Errorf("mediasession: failed to pause recording: %w", err)
		}
		c.setState(recorder, RecordingPaused)
		return nil

	case RecordingPaused:
		if c.streams.Active() == nil {
			return nil
		}
		if err := recorder.Resume(); err != nil {
			return fmt.Errorf("mediasession: failed to resume recording: %w", err)
		}
		c.setState(recorder, RecordingRecording)
		return nil

	default:
		stream := c.streams.Active()
		if stream == nil {
			c.log.Debugf("no active stream, nothing to record")
			return nil
		}
		return c.start(stream)
	}
}

func (c *RecordingController) start(stream Stream) error {
	if c.newRecorder == nil {
		return fmt.Errorf("mediasession: recording: %w", ErrUnsupported)
	}
	recorder, err := c.newRecorder(stream)
	if err != nil {
		return fmt.Errorf("mediasession: failed to create recorder: %w", err)
	}
	if err := recorder.Start(); err != nil {
		return fmt.Errorf("mediasession: failed to start recording: %w", err)
	}

	c.mu.Lock()
	c.recorder = recorder
	c.stream = stream
	c.state = RecordingRecording
	c.mu.Unlock()
	c.metrics.recordingState.Set(float64(RecordingRecording))
	c.log.Infof("recording stream %s", stream.ID())

	tracks := stream.Tracks()
	unwatch := make([]func(), 0, len(tracks))
	for _, t := range tracks {
		unwatch = append(unwatch, t.OnEnded(func() {
			if err := c.stopRecorder(recorder, "track ended"); err != nil {
				c.log.Warnf("%v", err)
			}
		}))
	}

	c.mu.Lock()
	if c.recorder != recorder {
		c.mu.Unlock()
		for _, cancel := range unwatch {
			cancel()
		}
		return nil
	}
	c.unwatch = unwatch
	c.mu.Unlock()
	return nil
}

func (c *RecordingController) setState(recorder Recorder, state RecordingState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recorder != recorder {
		return
	}
	c.state = state
	c.metrics.recordingState.Set(float64(state))
}

// stopRecorder stops recorder if it is still the bound one and removes its
// end-of-track observers.
func (c *RecordingController) stopRecorder(recorder Recorder, why string) error {
	c.mu.Lock()
	if recorder == nil || c.recorder != recorder {
		c.mu.Unlock()
		return nil
	}
	stream := c.stream
	unwatch := c.unwatch
	c.recorder = nil
	c.stream = nil
	c.unwatch = nil
	c.state = RecordingInactive
	c.mu.Unlock()
	c.metrics.recordingState.Set(float64(RecordingInactive))

	for _, cancel := range unwatch {
		cancel()
	}
	c.log.Infof("recording of stream %s stopped: %s", stream.ID(), why)
	if err := recorder.Stop(); err != nil {
		return fmt.Errorf("mediasession: failed to stop recording: %w", err)
	}
	return nil
}

// Stop finishes the current recording, if any.
func (c *RecordingController) Stop() error {
	c.toggleMu.Lock()
	defer c.toggleMu.Unlock()

	c.mu.Lock()
	recorder := c.recorder
	c.mu.Unlock()
	return c.stopRecorder(recorder, "stopped")
}

// StreamEnded stops the recording if it is bound to s.
func (c *RecordingController) StreamEnded(s Stream) {
	c.mu.Lock()
	recorder := c.recorder
	bound := c.stream == s
	c.mu.Unlock()
	if !bound {
		return
	}
	if err := c.stopRecorder(recorder, "stream ended"); err != nil {
		c.log.Warnf("%v", err)
	}
}

// State returns the recording state.
func (c *RecordingController) State() RecordingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stream returns the stream being recorded, or nil.
func (c *RecordingController) Stream() Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}
