package pionmedia

import (
	"fmt"

	"github.com/pion/mediasession"
	"github.com/pion/mediasession/pkg/recorder"
)

// RecordingConfig selects the codecs recorded tracks are encoded with. The
// codecs must be registered in the Config.Codec selector of the Provider
// that produced the stream.
type RecordingConfig struct {
	Dir        string
	VideoCodec string
	AudioCodec string
	Channels   uint16
	Options    []recorder.Option
}

// NewRecorderFactory returns a factory recording Streams acquired by a
// Provider into cfg.Dir.
func NewRecorderFactory(cfg RecordingConfig) mediasession.RecorderFactory {
	return func(s mediasession.Stream) (mediasession.Recorder, error) {
		ps, ok := s.(*Stream)
		if !ok {
			return nil, fmt.Errorf("pionmedia: can't record %T: %w", s, mediasession.ErrUnsupported)
		}

		var sources []recorder.Source
		for _, t := range ps.tracks {
			mime := cfg.VideoCodec
			if t.kind == mediasession.TrackAudio {
				mime = cfg.AudioCodec
			}
			if mime == "" {
				logger.Debugf("no codec configured for %s track %s, skipping", t.kind, t.ID())
				continue
			}
			sources = append(sources, recorder.Source{
				TrackID:  t.ID(),
				Kind:     t.kind,
				MimeType: mime,
				Channels: cfg.Channels,
				Open:     encodedReader(t, mime),
			})
		}
		return recorder.New(cfg.Dir, sources, cfg.Options...), nil
	}
}

func encodedReader(t *Track, mime string) func() (recorder.EncodedReader, error) {
	return func() (recorder.EncodedReader, error) {
		r, err := t.t.NewEncodedReader(mime)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
