package sink

import (
	"context"
	"errors"
	"image"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediasession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameStream struct {
	frames   chan image.Image
	released chan struct{}
	err      error
	reads    atomic.Int32
}

func newFrameStream() *frameStream {
	return &frameStream{
		frames:   make(chan image.Image),
		released: make(chan struct{}),
	}
}

func (s *frameStream) ID() string { return "stream" }

func (s *frameStream) Tracks() []mediasession.Track { return nil }

func (s *frameStream) NewFrameReader() (video.Reader, error) {
	if s.err != nil {
		return nil, s.err
	}
	return video.ReaderFunc(func() (image.Image, func(), error) {
		s.reads.Add(1)
		img, ok := <-s.frames
		if !ok {
			return nil, func() {}, io.EOF
		}
		return img, func() { s.released <- struct{}{} }, nil
	}), nil
}

// push delivers a frame and waits until the sink rendered it.
func (s *frameStream) push(img image.Image) {
	s.frames <- img
	<-s.released
}

func frame(w int) image.Image {
	return image.NewGray(image.Rect(0, 0, w, 1))
}

func TestFrameSinkReadyState(t *testing.T) {
	s := New()
	assert.True(t, s.Paused())
	assert.Equal(t, mediasession.HaveNothing, s.ReadyState())

	stream := newFrameStream()
	t.Cleanup(func() { close(stream.frames) })
	s.SetSource(stream)
	assert.Equal(t, stream, s.Source())

	stream.push(frame(1))
	assert.Equal(t, mediasession.HaveMetadata, s.ReadyState())
	assert.Equal(t, frame(1), s.Snapshot())

	// Paused sinks keep the first frame.
	stream.push(frame(2))
	assert.Equal(t, frame(1), s.Snapshot())

	require.NoError(t, s.Play(context.Background()))
	assert.False(t, s.Paused())
	stream.push(frame(3))
	assert.Equal(t, mediasession.HaveEnoughData, s.ReadyState())
	assert.Equal(t, frame(3), s.Snapshot())
	assert.Equal(t, uint64(2), s.Frames())

	s.Pause()
	assert.True(t, s.Paused())
}

func TestFrameSinkReplaceSource(t *testing.T) {
	s := New()
	require.NoError(t, s.Play(context.Background()))

	first := newFrameStream()
	s.SetSource(first)
	first.push(frame(1))
	// Wait until the consumer of first is blocked reading the next frame.
	require.Eventually(t, func() bool { return first.reads.Load() == 2 }, time.Second, time.Millisecond)

	second := newFrameStream()
	s.SetSource(second)
	assert.Equal(t, mediasession.HaveNothing, s.ReadyState())
	assert.Nil(t, s.Snapshot())

	// A frame of the old source that was already in flight is ignored.
	first.push(frame(2))
	assert.Nil(t, s.Snapshot())
	assert.Equal(t, mediasession.HaveNothing, s.ReadyState())

	second.push(frame(3))
	assert.Equal(t, frame(3), s.Snapshot())

	s.SetSource(nil)
	assert.Nil(t, s.Source())
	assert.Equal(t, mediasession.HaveNothing, s.ReadyState())
	close(first.frames)
	close(second.frames)
}

func TestFrameSinkWithoutVideo(t *testing.T) {
	s := New()
	stream := newFrameStream()
	stream.err = errors.New("no video track")

	s.SetSource(stream)
	assert.Equal(t, stream, s.Source())
	assert.Equal(t, mediasession.HaveNothing, s.ReadyState())
}

func TestFrameSinkPlayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	assert.ErrorIs(t, s.Play(ctx), context.Canceled)
	assert.True(t, s.Paused())
}

func TestFrameSinkSinkID(t *testing.T) {
	s := New()
	var out mediasession.AudioOutputSink = s
	require.NoError(t, out.SetSinkID(context.Background(), "spk"))
	assert.Equal(t, "spk", s.SinkID())
}
