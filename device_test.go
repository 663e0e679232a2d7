package mediasession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceName(t *testing.T) {
	testCases := []struct {
		name     string
		device   Device
		index    int
		expected string
	}{
		{
			name:     "DefaultMicrophone",
			device:   Device{ID: DefaultDeviceID, Kind: AudioInput},
			index:    0,
			expected: "Default Microphone",
		},
		{
			name:     "DefaultSpeakers",
			device:   Device{ID: DefaultDeviceID, Kind: AudioOutput},
			index:    0,
			expected: "Default Speakers",
		},
		{
			name:     "DefaultCameraNotFirst",
			device:   Device{ID: DefaultDeviceID, Kind: VideoInput},
			index:    2,
			expected: "Default Camera",
		},
		{
			name:     "UnlabeledSecondMicrophone",
			device:   Device{ID: "abc", Kind: AudioInput},
			index:    1,
			expected: "Microphone 2",
		},
		{
			name:     "UnlabeledFirstCamera",
			device:   Device{ID: "cam", Kind: VideoInput},
			index:    0,
			expected: "Camera 1",
		},
		{
			name:     "LabeledDefault",
			device:   Device{ID: DefaultDeviceID, Kind: AudioInput, Label: "Built-in"},
			index:    0,
			expected: "Built-in",
		},
		{
			name:     "Labeled",
			device:   Device{ID: "x", Kind: AudioOutput, Label: "Headphones"},
			index:    3,
			expected: "Headphones",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DeviceName(tc.device, tc.index))
		})
	}
}

func TestFilterDevicesKeepsOrder(t *testing.T) {
	devices := []Device{
		{ID: "v1", Kind: VideoInput},
		{ID: "a1", Kind: AudioInput},
		{ID: "o1", Kind: AudioOutput},
		{ID: "a2", Kind: AudioInput},
		{ID: "v2", Kind: VideoInput},
		{ID: "a3", Kind: AudioInput},
	}

	expected := map[DeviceKind][]string{
		VideoInput:  {"v1", "v2"},
		AudioInput:  {"a1", "a2", "a3"},
		AudioOutput: {"o1"},
	}
	for kind, ids := range expected {
		var got []string
		for _, d := range filterDevices(devices, kind) {
			assert.Equal(t, kind, d.Kind)
			got = append(got, d.ID)
		}
		assert.Equal(t, ids, got, kind.String())
	}
}

func TestDeviceOptionsCountDefaultEntry(t *testing.T) {
	options := deviceOptions([]Device{
		{ID: DefaultDeviceID, Kind: AudioInput},
		{ID: "usb", Kind: AudioInput},
		{ID: "hdmi", Kind: AudioInput, Label: "HDMI"},
	})

	expected := []DeviceOption{
		{ID: DefaultDeviceID, Name: "Default Microphone"},
		{ID: "usb", Name: "Microphone 2"},
		{ID: "hdmi", Name: "HDMI"},
	}
	assert.Equal(t, expected, options)
}

func TestDeviceKindString(t *testing.T) {
	for _, k := range []DeviceKind{VideoInput, AudioInput, AudioOutput} {
		parsed, ok := ParseDeviceKind(k.String())
		assert.True(t, ok, k.String())
		assert.Equal(t, k, parsed)
	}
	_, ok := ParseDeviceKind("speaker")
	assert.False(t, ok, "Unknown kind must fail parsing")
}
