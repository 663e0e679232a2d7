// Package recorder records encoded media tracks to files. Video is written
// as IVF (VP8) or Annex-B (H.264) and audio as Ogg/Opus.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediasession"
	ilogging "github.com/pion/mediasession/internal/logging"
	"github.com/pion/rtp"
	"golang.org/x/sync/errgroup"
)

const defaultMTU = 1200

// ErrInvalidState is returned for transitions the current state doesn't
// allow, such as pausing an inactive recorder.
var ErrInvalidState = errors.New("recorder: invalid state")

// EncodedReader yields encoded frames. mediadevices.EncodedReadCloser
// satisfies it.
type EncodedReader interface {
	Read() (mediadevices.EncodedBuffer, func(), error)
	Close() error
}

// Source is one track to record.
type Source struct {
	TrackID  string
	Kind     mediasession.TrackKind
	MimeType string
	// Channels is used for audio. Defaults to 2.
	Channels uint16
	Open     func() (EncodedReader, error)
}

// Recorder implements mediasession.Recorder. Every Start writes a new set of
// files into the output directory; frames read while paused are dropped.
type Recorder struct {
	dir     string
	sources []Source
	log     logging.LeveledLogger

	mu     sync.Mutex
	state  mediasession.RecordingState
	tracks []*trackRecorder
	group  *errgroup.Group
	files  []string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLoggerFactory sets the factory the recorder logger is created from.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(r *Recorder) {
		r.log = ilogging.NewLogger(f, "recorder")
	}
}

// New creates a recorder writing sources into dir.
func New(dir string, sources []Source, opts ...Option) *Recorder {
	r := &Recorder{
		dir:     dir,
		sources: sources,
		log:     ilogging.NewLogger(nil, "recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State implements mediasession.Recorder.
func (r *Recorder) State() mediasession.RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Files returns the files written by the last Start.
func (r *Recorder) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// Start implements mediasession.Recorder.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != mediasession.RecordingInactive {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, r.state)
	}
	if len(r.sources) == 0 {
		return errors.New("recorder: no tracks to record")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}

	id := uuid.New().String()
	var tracks []*trackRecorder
	var files []string
	for i, src := range r.sources {
		path := filepath.Join(r.dir, fmt.Sprintf("%s-%d-%s", id, i, src.Kind))
		t, err := newTrackRecorder(src, path)
		if err != nil {
			for _, t := range tracks {
				_ = t.abort()
			}
			return fmt.Errorf("recorder: track %s: %w", src.TrackID, err)
		}
		tracks = append(tracks, t)
		files = append(files, t.path)
	}

	g := new(errgroup.Group)
	for _, t := range tracks {
		t := t
		g.Go(func() error {
			return t.run(r.log)
		})
	}

	r.tracks = tracks
	r.files = files
	r.group = g
	r.state = mediasession.RecordingRecording
	r.log.Infof("recording %d tracks to %s", len(tracks), r.dir)
	return nil
}

// Pause implements mediasession.Recorder.
func (r *Recorder) Pause() error {
	return r.setPaused(mediasession.RecordingRecording, mediasession.RecordingPaused)
}

// Resume implements mediasession.Recorder.
func (r *Recorder) Resume() error {
	return r.setPaused(mediasession.RecordingPaused, mediasession.RecordingRecording)
}

func (r *Recorder) setPaused(from, to mediasession.RecordingState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != from {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, to, r.state)
	}
	for _, t := range r.tracks {
		t.paused.Store(to == mediasession.RecordingPaused)
	}
	r.state = to
	return nil
}

// Stop implements mediasession.Recorder. It waits for the track readers to
// finish and closes the files, so it must not be called from inside a
// reader's Read.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.state == mediasession.RecordingInactive {
		r.mu.Unlock()
		return nil
	}
	tracks, g := r.tracks, r.group
	r.tracks, r.group = nil, nil
	r.state = mediasession.RecordingInactive
	r.mu.Unlock()

	for _, t := range tracks {
		t.closing.Store(true)
		if err := t.reader.Close(); err != nil {
			r.log.Debugf("closing reader of %s: %v", t.path, err)
		}
	}
	errs := []error{g.Wait()}
	for _, t := range tracks {
		errs = append(errs, t.writer.Close())
	}
	r.log.Infof("recording stopped")
	return errors.Join(errs...)
}

// trackRecorder copies one encoded track into its file.
type trackRecorder struct {
	path       string
	reader     EncodedReader
	writer     rtpWriter
	packetizer rtp.Packetizer
	paused     atomic.Bool
	closing    atomic.Bool
}

func newTrackRecorder(src Source, path string) (*trackRecorder, error) {
	f, err := formatFor(src)
	if err != nil {
		return nil, err
	}
	path += f.ext
	w, err := f.create(path, src)
	if err != nil {
		return nil, err
	}
	reader, err := src.Open()
	if err != nil {
		_ = w.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return &trackRecorder{
		path:   path,
		reader: reader,
		writer: w,
		packetizer: rtp.NewPacketizer(
			defaultMTU,
			f.payloadType,
			rand.Uint32(), //nolint:gosec
			f.payloader(),
			rtp.NewRandomSequencer(),
			f.clockRate,
		),
	}, nil
}

func (t *trackRecorder) run(log logging.LeveledLogger) error {
	for {
		buf, release, err := t.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || t.closing.Load() {
				log.Debugf("track reader for %s finished: %v", t.path, err)
				return nil
			}
			return fmt.Errorf("recorder: reading %s: %w", t.path, err)
		}
		if !t.paused.Load() {
			err = t.write(buf)
		}
		release()
		if err != nil {
			return err
		}
	}
}

func (t *trackRecorder) write(buf mediadevices.EncodedBuffer) error {
	for _, p := range t.packetizer.Packetize(buf.Data, buf.Samples) {
		if err := t.writer.WriteRTP(p); err != nil {
			return fmt.Errorf("recorder: writing %s: %w", t.path, err)
		}
	}
	return nil
}

func (t *trackRecorder) abort() error {
	err := errors.Join(t.reader.Close(), t.writer.Close())
	_ = os.Remove(t.path)
	return err
}
