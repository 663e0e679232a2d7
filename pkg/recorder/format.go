package recorder

import (
	"fmt"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const (
	videoClockRate = 90000
	opusClockRate  = 48000
)

type rtpWriter interface {
	WriteRTP(p *rtp.Packet) error
	Close() error
}

// format describes how frames of one codec are packetized and stored.
type format struct {
	ext         string
	payloadType uint8
	clockRate   uint32
	payloader   func() rtp.Payloader
	create      func(path string, src Source) (rtpWriter, error)
}

var formats = map[string]format{
	strings.ToLower(webrtc.MimeTypeVP8): {
		ext:         ".ivf",
		payloadType: 96,
		clockRate:   videoClockRate,
		payloader:   func() rtp.Payloader { return &codecs.VP8Payloader{} },
		create: func(path string, _ Source) (rtpWriter, error) {
			return ivfwriter.New(path)
		},
	},
	strings.ToLower(webrtc.MimeTypeH264): {
		ext:         ".h264",
		payloadType: 102,
		clockRate:   videoClockRate,
		payloader:   func() rtp.Payloader { return &codecs.H264Payloader{} },
		create: func(path string, _ Source) (rtpWriter, error) {
			return h264writer.New(path)
		},
	},
	strings.ToLower(webrtc.MimeTypeOpus): {
		ext:         ".ogg",
		payloadType: 111,
		clockRate:   opusClockRate,
		payloader:   func() rtp.Payloader { return &codecs.OpusPayloader{} },
		create: func(path string, src Source) (rtpWriter, error) {
			channels := src.Channels
			if channels == 0 {
				channels = 2
			}
			return oggwriter.New(path, opusClockRate, channels)
		},
	},
}

// Supported reports whether tracks encoded as mimeType can be recorded.
func Supported(mimeType string) bool {
	_, ok := formats[strings.ToLower(mimeType)]
	return ok
}

func formatFor(src Source) (format, error) {
	f, ok := formats[strings.ToLower(src.MimeType)]
	if !ok {
		return format{}, fmt.Errorf("unsupported codec %q", src.MimeType)
	}
	return f, nil
}
