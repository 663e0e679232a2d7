package mediasession

import "strconv"

// DeviceKind enumerates kind of media device.
type DeviceKind int

// DeviceKind definitions.
const (
	VideoInput DeviceKind = iota + 1
	AudioInput
	AudioOutput
)

// DefaultDeviceID is the id platforms report for the system default entry.
const DefaultDeviceID = "default"

// String returns the MediaDeviceInfo kind string,
// https://w3c.github.io/mediacapture-main/#dom-mediadevicekind
func (k DeviceKind) String() string {
	switch k {
	case VideoInput:
		return "videoinput"
	case AudioInput:
		return "audioinput"
	case AudioOutput:
		return "audiooutput"
	default:
		return "unknown"
	}
}

// DisplayName is the human readable name of the kind used for unlabeled devices.
func (k DeviceKind) DisplayName() string {
	switch k {
	case VideoInput:
		return "Camera"
	case AudioInput:
		return "Microphone"
	case AudioOutput:
		return "Speakers"
	default:
		return "Device"
	}
}

// ParseDeviceKind is the reverse of DeviceKind.String.
func ParseDeviceKind(s string) (DeviceKind, bool) {
	for _, k := range []DeviceKind{VideoInput, AudioInput, AudioOutput} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Device represents https://w3c.github.io/mediacapture-main/#dom-mediadeviceinfo.
// Label is empty until the platform has been granted access to the kind.
type Device struct {
	ID    string
	Kind  DeviceKind
	Label string
}

// DeviceOption is a device paired with the name it should be shown with.
type DeviceOption struct {
	ID   string
	Name string
}

// DeviceName returns the name d is shown with. index is the position of d
// among the devices of the same kind, starting at 0.
func DeviceName(d Device, index int) string {
	if d.Label != "" {
		return d.Label
	}
	if d.ID == DefaultDeviceID {
		return "Default " + d.Kind.DisplayName()
	}
	return d.Kind.DisplayName() + " " + strconv.Itoa(index+1)
}

func filterDevices(devices []Device, kind DeviceKind) []Device {
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.Kind == kind {
			result = append(result, d)
		}
	}
	return result
}

func deviceOptions(devices []Device) []DeviceOption {
	options := make([]DeviceOption, len(devices))
	for i, d := range devices {
		options[i] = DeviceOption{ID: d.ID, Name: DeviceName(d, i)}
	}
	return options
}
