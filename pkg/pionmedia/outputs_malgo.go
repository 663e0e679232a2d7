//go:build cgo && !noaudio

package pionmedia

import (
	"context"

	"github.com/gen2brain/malgo"
	"github.com/pion/mediasession"
)

// MalgoOutputs lists playback devices through miniaudio.
type MalgoOutputs struct{}

// ListOutputs implements OutputLister. The system default is reported first
// under mediasession.DefaultDeviceID, as browsers do.
func (MalgoOutputs) ListOutputs(ctx context.Context) ([]mediasession.Device, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugf("%v", message)
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Playback)
	if err != nil {
		return nil, err
	}

	devices := make([]mediasession.Device, 0, len(infos)+1)
	seen := make(map[string]struct{}, len(infos))
	hasDefault := false
	for _, info := range infos {
		full, err := mctx.DeviceInfo(malgo.Playback, info.ID, malgo.Shared)
		if err != nil {
			logger.Warnf("unable to get playback device info: %v", err)
			continue
		}
		id := full.ID.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if full.IsDefault == 1 {
			hasDefault = true
		}
		devices = append(devices, mediasession.Device{
			ID:    id,
			Kind:  mediasession.AudioOutput,
			Label: full.Name(),
		})
	}

	if hasDefault {
		devices = append([]mediasession.Device{{
			ID:   mediasession.DefaultDeviceID,
			Kind: mediasession.AudioOutput,
		}}, devices...)
	}
	return devices, nil
}
