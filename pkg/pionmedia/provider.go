// Package pionmedia implements the mediasession platform on top of
// github.com/pion/mediadevices.
package pionmedia

import (
	"context"
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver/availability"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediasession"
	"github.com/pion/mediasession/internal/logging"
)

var logger = logging.NewLogger(nil, "pionmedia")

// Overridden in tests.
var (
	getUserMedia     = mediadevices.GetUserMedia
	getDisplayMedia  = mediadevices.GetDisplayMedia
	enumerateDevices = mediadevices.EnumerateDevices
)

// Config tunes the streams a Provider acquires. Zero values leave the
// choice to the driver.
type Config struct {
	Width     int
	Height    int
	FrameRate float64
	// Codec must be set for streams that are recorded.
	Codec *mediadevices.CodecSelector
}

// Provider implements mediasession.MediaProvider.
type Provider struct {
	cfg Config
}

// NewProvider creates a provider with cfg.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// GetUserMedia implements mediasession.MediaProvider.
func (p *Provider) GetUserMedia(ctx context.Context, c mediasession.StreamConstraints) (mediasession.Stream, error) {
	if err := checkDevice(c.Audio, mediadevices.AudioInput); err != nil {
		return nil, err
	}
	if err := checkDevice(c.Video, mediadevices.VideoInput); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: p.cfg.Codec}
	if c.Audio.Requested {
		constraints.Audio = p.audioOption(c.Audio)
	}
	if c.Video.Requested {
		constraints.Video = p.videoOption(c.Video)
	}
	return acquire(ctx, func() (mediadevices.MediaStream, error) {
		return getUserMedia(constraints)
	})
}

// GetDisplayMedia implements mediasession.MediaProvider. Only the video
// constraint is honoured; screen capture has no audio.
func (p *Provider) GetDisplayMedia(ctx context.Context, c mediasession.StreamConstraints) (mediasession.Stream, error) {
	constraints := mediadevices.MediaStreamConstraints{
		Video: p.videoOption(c.Video),
		Codec: p.cfg.Codec,
	}
	return acquire(ctx, func() (mediadevices.MediaStream, error) {
		return getDisplayMedia(constraints)
	})
}

func (p *Provider) audioOption(c mediasession.TrackConstraint) mediadevices.MediaOption {
	return func(mc *mediadevices.MediaTrackConstraints) {
		if c.DeviceID != "" && c.DeviceID != mediasession.DefaultDeviceID {
			mc.DeviceID = prop.String(c.DeviceID)
		}
	}
}

func (p *Provider) videoOption(c mediasession.TrackConstraint) mediadevices.MediaOption {
	return func(mc *mediadevices.MediaTrackConstraints) {
		if c.DeviceID != "" && c.DeviceID != mediasession.DefaultDeviceID {
			mc.DeviceID = prop.String(c.DeviceID)
		}
		if p.cfg.Width > 0 {
			mc.Width = prop.Int(p.cfg.Width)
		}
		if p.cfg.Height > 0 {
			mc.Height = prop.Int(p.cfg.Height)
		}
		if p.cfg.FrameRate > 0 {
			mc.FrameRate = prop.Float(p.cfg.FrameRate)
		}
	}
}

// checkDevice fails early for device ids the driver manager doesn't know.
// mediadevices would otherwise fall back to the closest match.
func checkDevice(c mediasession.TrackConstraint, kind mediadevices.MediaDeviceType) error {
	if !c.Requested || c.DeviceID == "" || c.DeviceID == mediasession.DefaultDeviceID {
		return nil
	}
	for _, info := range enumerateDevices() {
		if info.Kind == kind && info.DeviceID == c.DeviceID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", mediasession.ErrDeviceUnavailable, c.DeviceID)
}

type acquireResult struct {
	ms  mediadevices.MediaStream
	err error
}

// acquire runs get until it returns or ctx is done. A stream arriving after
// ctx is done gets its tracks closed.
func acquire(ctx context.Context, get func() (mediadevices.MediaStream, error)) (mediasession.Stream, error) {
	ch := make(chan acquireResult, 1)
	go func() {
		ms, err := get()
		ch <- acquireResult{ms: ms, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, mapError(r.err)
		}
		return newStream(r.ms), nil
	case <-ctx.Done():
		go func() {
			r := <-ch
			if r.err == nil {
				closeTracks(r.ms)
			}
		}()
		return nil, ctx.Err()
	}
}

func closeTracks(ms mediadevices.MediaStream) {
	for _, t := range ms.GetTracks() {
		if err := t.Close(); err != nil {
			logger.Warnf("failed to close late track %s: %v", t.ID(), err)
		}
	}
}

// mapError marks driver availability errors as ErrDeviceUnavailable so
// callers can tell a missing device from other failures.
func mapError(err error) error {
	if availability.IsError(err) {
		return fmt.Errorf("%w: %w", mediasession.ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("pionmedia: %w", err)
}
