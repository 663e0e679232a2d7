package mediasession

import "context"

// DeviceLister lists the media devices currently known to the platform.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]Device, error)
}

// DeviceChangeNotifier delivers a notification whenever the platform's
// device set changes. cancel releases the subscription.
type DeviceChangeNotifier interface {
	OnDeviceChange(fn func()) (cancel func(), err error)
}

// Capability is a permission-guarded media capability.
type Capability int

// Capability definitions.
const (
	CapabilityCamera Capability = iota + 1
	CapabilityMicrophone
)

func (c Capability) String() string {
	switch c {
	case CapabilityCamera:
		return "camera"
	case CapabilityMicrophone:
		return "microphone"
	default:
		return "unknown"
	}
}

// PermissionState represents https://w3c.github.io/permissions/#dom-permissionstate
// plus PermissionUnknown for capabilities that were not queried yet.
type PermissionState int

// PermissionState definitions.
const (
	PermissionUnknown PermissionState = iota
	PermissionPrompt
	PermissionDenied
	PermissionGranted
)

func (s PermissionState) String() string {
	switch s {
	case PermissionPrompt:
		return "prompt"
	case PermissionDenied:
		return "denied"
	case PermissionGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// PermissionStatus is the live result of a permission query.
type PermissionStatus interface {
	State() PermissionState
	// OnChange registers fn to be called with every new state. fn must not
	// be called from within OnChange itself.
	OnChange(fn func(PermissionState)) (cancel func())
}

// PermissionQuerier queries permissions. Platforms without a permission API
// return an error wrapping ErrUnsupported.
type PermissionQuerier interface {
	QueryPermission(ctx context.Context, c Capability) (PermissionStatus, error)
}

// TrackKind is the media type carried by a track.
type TrackKind int

// TrackKind definitions.
const (
	TrackAudio TrackKind = iota + 1
	TrackVideo
)

func (k TrackKind) String() string {
	switch k {
	case TrackAudio:
		return "audio"
	case TrackVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Track represents https://w3c.github.io/mediacapture-main/#mediastreamtrack
type Track interface {
	ID() string
	Kind() TrackKind
	// Stop releases the source. It doesn't trigger the ended notification.
	Stop() error
	// OnEnded registers fn for the track's ended notification, which fires at
	// most once. Registering on an already ended track calls fn right away.
	OnEnded(fn func()) (cancel func())
}

// Stream represents https://w3c.github.io/mediacapture-main/#mediastream
type Stream interface {
	ID() string
	Tracks() []Track
}

// TrackConstraint selects the source of one media kind. A requested
// constraint without DeviceID asks for the system default device.
type TrackConstraint struct {
	Requested bool
	DeviceID  string
}

// UsesDefault reports whether the constraint is the plain "true" request.
func (c TrackConstraint) UsesDefault() bool {
	return c.Requested && c.DeviceID == ""
}

func makeConstraint(deviceID string) TrackConstraint {
	return TrackConstraint{Requested: true, DeviceID: deviceID}
}

// StreamConstraints represents https://w3c.github.io/mediacapture-main/#dom-mediastreamconstraints
type StreamConstraints struct {
	Audio TrackConstraint
	Video TrackConstraint
}

// MediaProvider acquires streams from the platform.
type MediaProvider interface {
	GetUserMedia(ctx context.Context, constraints StreamConstraints) (Stream, error)
	GetDisplayMedia(ctx context.Context, constraints StreamConstraints) (Stream, error)
}

// ReadyState represents https://html.spec.whatwg.org/multipage/media.html#dom-media-readystate
type ReadyState int

// ReadyState definitions.
const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// DisplaySink renders a stream.
type DisplaySink interface {
	// SetSource renders s. A nil stream clears the source.
	SetSource(s Stream)
	Source() Stream
	Paused() bool
	Play(ctx context.Context) error
	Pause()
	ReadyState() ReadyState
}

// AudioOutputSink is implemented by sinks which can route audio to a
// specific output device.
type AudioOutputSink interface {
	SetSinkID(ctx context.Context, deviceID string) error
}

// PictureInPicture is the platform's picture-in-picture capability.
type PictureInPicture interface {
	Enabled() bool
	// Current returns the sink that is in picture-in-picture, if any.
	Current() DisplaySink
	Request(ctx context.Context, sink DisplaySink) error
	Exit(ctx context.Context) error
	// OnLeave registers fn for the next time sink leaves picture-in-picture,
	// including when the platform closes the window on its own.
	OnLeave(sink DisplaySink, fn func()) (cancel func())
}

// RecordingState represents https://w3c.github.io/mediacapture-record/#recordingstate
type RecordingState int

// RecordingState definitions.
const (
	RecordingInactive RecordingState = iota
	RecordingRecording
	RecordingPaused
)

func (s RecordingState) String() string {
	switch s {
	case RecordingRecording:
		return "recording"
	case RecordingPaused:
		return "paused"
	default:
		return "inactive"
	}
}

// Recorder records one stream.
type Recorder interface {
	Start() error
	Pause() error
	Resume() error
	Stop() error
	State() RecordingState
}

// RecorderFactory creates a recorder bound to s.
type RecorderFactory func(s Stream) (Recorder, error)

// Platform bundles the capabilities a Session is built from. Permissions
// and PictureInPicture may be nil when the platform lacks them.
type Platform struct {
	Devices          DeviceLister
	DeviceChanges    DeviceChangeNotifier
	Permissions      PermissionQuerier
	Media            MediaProvider
	PictureInPicture PictureInPicture
	Recorders        RecorderFactory
}
