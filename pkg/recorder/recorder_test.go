package recorder

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/pion/mediadevices"
	"github.com/pion/mediasession"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	frames   chan []byte
	released chan struct{}
	once     sync.Once
	closed   chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		frames:   make(chan []byte),
		released: make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (r *fakeReader) Read() (mediadevices.EncodedBuffer, func(), error) {
	select {
	case data := <-r.frames:
		return mediadevices.EncodedBuffer{Data: data, Samples: 3000}, func() {
			r.released <- struct{}{}
		}, nil
	case <-r.closed:
		return mediadevices.EncodedBuffer{}, func() {}, io.EOF
	}
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

// feed hands data to the recorder and waits until it was processed.
func (r *fakeReader) feed(data []byte) {
	r.frames <- data
	<-r.released
}

func source(kind mediasession.TrackKind, mime string, r EncodedReader) Source {
	return Source{
		TrackID:  mime,
		Kind:     kind,
		MimeType: mime,
		Open:     func() (EncodedReader, error) { return r, nil },
	}
}

func keyFrame(b byte) []byte {
	return []byte{0x00, 0x9d, 0x01, 0x2a, b}
}

func countIVFFrames(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	reader, _, err := ivfreader.NewWith(f)
	require.NoError(t, err)
	n := 0
	for {
		if _, _, err := reader.ParseNextFrame(); err != nil {
			require.ErrorIs(t, err, io.EOF)
			return n
		}
		n++
	}
}

func TestRecorderLifecycle(t *testing.T) {
	video := newFakeReader()
	audio := newFakeReader()
	r := New(t.TempDir(), []Source{
		source(mediasession.TrackVideo, webrtc.MimeTypeVP8, video),
		source(mediasession.TrackAudio, webrtc.MimeTypeOpus, audio),
	})

	assert.ErrorIs(t, r.Pause(), ErrInvalidState)
	require.NoError(t, r.Start())
	assert.Equal(t, mediasession.RecordingRecording, r.State())
	assert.ErrorIs(t, r.Start(), ErrInvalidState)

	video.feed(keyFrame(1))
	audio.feed([]byte{0xfc, 0x01})
	video.feed(keyFrame(2))

	require.NoError(t, r.Pause())
	assert.Equal(t, mediasession.RecordingPaused, r.State())
	video.feed(keyFrame(3))
	require.NoError(t, r.Resume())
	video.feed(keyFrame(4))

	files := r.Files()
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
	assert.Equal(t, mediasession.RecordingInactive, r.State())

	require.Len(t, files, 2)
	assert.Equal(t, 3, countIVFFrames(t, files[0]), "Frames read while paused must be dropped")

	ogg, err := os.ReadFile(files[1])
	require.NoError(t, err)
	require.Greater(t, len(ogg), 4)
	assert.Equal(t, "OggS", string(ogg[:4]))
}

func TestRecorderTrackEnds(t *testing.T) {
	video := newFakeReader()
	r := New(t.TempDir(), []Source{source(mediasession.TrackVideo, webrtc.MimeTypeVP8, video)})
	require.NoError(t, r.Start())

	video.feed(keyFrame(1))
	require.NoError(t, video.Close())
	require.NoError(t, r.Stop())
	assert.Equal(t, 1, countIVFFrames(t, r.Files()[0]))
}

func TestRecorderRestartWritesNewFiles(t *testing.T) {
	r := New(t.TempDir(), []Source{{
		Kind:     mediasession.TrackVideo,
		MimeType: webrtc.MimeTypeH264,
		Open:     func() (EncodedReader, error) { return newFakeReader(), nil },
	}})

	require.NoError(t, r.Start())
	first := r.Files()
	require.NoError(t, r.Stop())
	require.NoError(t, r.Start())
	second := r.Files()
	require.NoError(t, r.Stop())

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0], second[0])
	assert.FileExists(t, first[0])
	assert.FileExists(t, second[0])
}

func TestRecorderStartFailure(t *testing.T) {
	errOpen := errors.New("encoder unavailable")
	dir := t.TempDir()
	ok := newFakeReader()
	r := New(dir, []Source{
		source(mediasession.TrackVideo, webrtc.MimeTypeVP8, ok),
		{
			Kind:     mediasession.TrackAudio,
			MimeType: webrtc.MimeTypeOpus,
			Open:     func() (EncodedReader, error) { return nil, errOpen },
		},
	})

	assert.ErrorIs(t, r.Start(), errOpen)
	assert.Equal(t, mediasession.RecordingInactive, r.State())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "Files of a failed start must be removed")
	select {
	case <-ok.closed:
	default:
		t.Fatal("Reader of a failed start must be closed")
	}
}

func TestRecorderUnsupportedCodec(t *testing.T) {
	r := New(t.TempDir(), []Source{{
		Kind:     mediasession.TrackVideo,
		MimeType: "video/AV1",
		Open:     func() (EncodedReader, error) { return newFakeReader(), nil },
	}})
	assert.Error(t, r.Start())
	assert.False(t, Supported("video/AV1"))
	assert.True(t, Supported("video/vp8"))
}
