package pionmedia

import (
	"context"
	"errors"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"
	"github.com/pion/mediasession"
)

// OutputLister lists audio output devices. mediadevices only knows about
// capture devices.
type OutputLister interface {
	ListOutputs(ctx context.Context) ([]mediasession.Device, error)
}

// Lister implements mediasession.DeviceLister with the registered
// mediadevices drivers. Screen drivers are not reported; they are reached
// through GetDisplayMedia.
type Lister struct {
	// Outputs is optional. Without it no audio outputs are listed.
	Outputs OutputLister
}

// ListDevices implements mediasession.DeviceLister.
func (l *Lister) ListDevices(ctx context.Context) ([]mediasession.Device, error) {
	var devices []mediasession.Device
	for _, info := range enumerateDevices() {
		if info.DeviceType == driver.Screen {
			continue
		}
		kind, ok := deviceKind(info.Kind)
		if !ok {
			continue
		}
		devices = append(devices, mediasession.Device{
			ID:    info.DeviceID,
			Kind:  kind,
			Label: info.Label,
		})
	}

	if l.Outputs == nil {
		return devices, nil
	}
	outputs, err := l.Outputs.ListOutputs(ctx)
	if errors.Is(err, mediasession.ErrUnsupported) {
		logger.Debugf("skipping audio outputs: %v", err)
		return devices, nil
	}
	if err != nil {
		return nil, err
	}
	return append(devices, outputs...), nil
}

func deviceKind(k mediadevices.MediaDeviceType) (mediasession.DeviceKind, bool) {
	switch k {
	case mediadevices.VideoInput:
		return mediasession.VideoInput, true
	case mediadevices.AudioInput:
		return mediasession.AudioInput, true
	case mediadevices.AudioOutput:
		return mediasession.AudioOutput, true
	default:
		return 0, false
	}
}
