package pionmedia

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediasession"
	"github.com/pion/webrtc/v4"
)

var errNoVideoTrack = errors.New("pionmedia: stream has no video track")

// Stream adapts a mediadevices.MediaStream.
type Stream struct {
	id     string
	ms     mediadevices.MediaStream
	tracks []*Track
}

func newStream(ms mediadevices.MediaStream) *Stream {
	s := &Stream{
		id: uuid.New().String(),
		ms: ms,
	}
	for _, t := range ms.GetTracks() {
		s.tracks = append(s.tracks, newTrack(t))
	}
	return s
}

// ID implements mediasession.Stream.
func (s *Stream) ID() string {
	return s.id
}

// Tracks implements mediasession.Stream.
func (s *Stream) Tracks() []mediasession.Track {
	tracks := make([]mediasession.Track, len(s.tracks))
	for i, t := range s.tracks {
		tracks[i] = t
	}
	return tracks
}

// MediaStream returns the underlying stream.
func (s *Stream) MediaStream() mediadevices.MediaStream {
	return s.ms
}

// NewFrameReader opens a reader over the first video track. Frames are
// copied, so they stay valid after release.
func (s *Stream) NewFrameReader() (video.Reader, error) {
	for _, t := range s.ms.GetVideoTracks() {
		if vt, ok := t.(*mediadevices.VideoTrack); ok {
			return vt.NewReader(true), nil
		}
	}
	return nil, errNoVideoTrack
}

func (s *Stream) close() {
	for _, t := range s.tracks {
		_ = t.Stop()
	}
}

// Track adapts a mediadevices.Track. The ended notification is fanned out to
// every subscriber on a separate goroutine and is not raised for tracks
// stopped through Stop.
type Track struct {
	t    mediadevices.Track
	kind mediasession.TrackKind

	mu       sync.Mutex
	ended    bool
	stopped  bool
	handlers map[int]func()
	nextID   int
}

func newTrack(t mediadevices.Track) *Track {
	kind := mediasession.TrackVideo
	if t.Kind() == webrtc.RTPCodecTypeAudio {
		kind = mediasession.TrackAudio
	}
	tr := &Track{
		t:        t,
		kind:     kind,
		handlers: make(map[int]func()),
	}
	t.OnEnded(func(err error) {
		logger.Debugf("track %s ended: %v", t.ID(), err)
		tr.end()
	})
	return tr
}

// ID implements mediasession.Track.
func (t *Track) ID() string {
	return t.t.ID()
}

// Kind implements mediasession.Track.
func (t *Track) Kind() mediasession.TrackKind {
	return t.kind
}

// Track returns the underlying track.
func (t *Track) Track() mediadevices.Track {
	return t.t
}

// Stop implements mediasession.Track.
func (t *Track) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.handlers = make(map[int]func())
	t.mu.Unlock()
	return t.t.Close()
}

// OnEnded implements mediasession.Track.
func (t *Track) OnEnded(fn func()) func() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.handlers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, id)
	}
}

func (t *Track) end() {
	t.mu.Lock()
	if t.ended || t.stopped {
		t.mu.Unlock()
		return
	}
	t.ended = true
	handlers := t.handlers
	t.handlers = nil
	t.mu.Unlock()

	// mediadevices reports the end from inside a reader's Read. Handlers may
	// wait for that reader to finish, so they must not run on its goroutine.
	go func() {
		for _, h := range handlers {
			h()
		}
	}()
}
