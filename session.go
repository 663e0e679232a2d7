package mediasession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
	ilogging "github.com/pion/mediasession/internal/logging"
)

// Selection holds the user's device choice per role. An empty id selects the
// system default device.
type Selection struct {
	Microphone string
	Speaker    string
	Camera     string
}

// SessionState is a snapshot of the combined session state.
type SessionState struct {
	Selection   Selection
	Devices     []Device
	Streaming   bool
	Recording   RecordingState
	PiP         PiPState
	Permissions map[Capability]PermissionState
}

// Session ties device enumeration, permissions, stream acquisition,
// recording and picture-in-picture of one display sink together.
type Session struct {
	registry    *DeviceRegistry
	permissions *PermissionWatcher
	streams     *StreamSession
	recording   *RecordingController
	pip         *PiPController
	sink        DisplaySink
	log         logging.LeveledLogger

	stopEnded func()

	mu        sync.Mutex
	selection Selection
	started   bool
	closed    bool
}

// New creates a session on top of platform rendering to sink. Start must be
// called to begin tracking devices and permissions.
func New(platform Platform, sink DisplaySink, opts ...Option) (*Session, error) {
	if platform.Devices == nil {
		return nil, errors.New("mediasession: platform has no device lister")
	}
	if platform.Media == nil {
		return nil, errors.New("mediasession: platform has no media provider")
	}
	if sink == nil {
		return nil, errors.New("mediasession: display sink is required")
	}

	o := newOptions(opts)
	opts = append(opts, withMetrics(o.metrics))

	s := &Session{
		registry:    NewDeviceRegistry(platform.Devices, platform.DeviceChanges, opts...),
		permissions: NewPermissionWatcher(platform.Permissions, opts...),
		streams:     NewStreamSession(platform.Media, sink, opts...),
		pip:         NewPiPController(platform.PictureInPicture, opts...),
		sink:        sink,
		log:         ilogging.NewLogger(o.loggerFactory, "mediasession"),
	}
	s.recording = NewRecordingController(s.streams, platform.Recorders, opts...)
	s.stopEnded = s.streams.OnStreamEnded(func(stream Stream, reason EndReason) {
		s.log.Debugf("stream %s ended (%s)", stream.ID(), reason)
		s.recording.StreamEnded(stream)
	})
	return s, nil
}

// Start subscribes to device changes, loads the initial device list and
// watches the camera and microphone permissions. A grant triggers a device
// refresh so labels become visible. Failures of the optional parts are
// logged, the session stays usable.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.registry.Subscribe(); err != nil {
		s.log.Warnf("device changes will not be tracked: %v", err)
	}
	refreshErr := s.registry.Refresh(ctx)

	for _, c := range []Capability{CapabilityCamera, CapabilityMicrophone} {
		if err := s.permissions.Watch(ctx, c, s.refreshOnGrant(c)); err != nil {
			s.log.Warnf("%v", err)
		}
	}
	return refreshErr
}

func (s *Session) refreshOnGrant(c Capability) func() {
	return func() {
		s.log.Infof("%s permission granted, refreshing devices", c)
		s.registry.refreshInBackground()
	}
}

// SelectMicrophone selects the audio input used by AcquireCamera.
func (s *Session) SelectMicrophone(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Microphone = id
}

// SelectCamera selects the video input used by AcquireCamera.
func (s *Session) SelectCamera(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Camera = id
}

// SelectSpeaker selects the audio output. It is applied right away when the
// display sink can route audio.
func (s *Session) SelectSpeaker(ctx context.Context, id string) error {
	s.mu.Lock()
	s.selection.Speaker = id
	s.mu.Unlock()

	out, ok := s.sink.(AudioOutputSink)
	if !ok {
		return nil
	}
	if err := out.SetSinkID(ctx, id); err != nil {
		return fmt.Errorf("mediasession: failed to select speaker %q: %w", id, err)
	}
	return nil
}

// Selection returns the current device selection.
func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// AcquireCamera captures the selected camera and microphone.
func (s *Session) AcquireCamera(ctx context.Context) (Stream, error) {
	return s.streams.Acquire(ctx, SourceCamera, s.Selection())
}

// AcquireDesktop captures the screen.
func (s *Session) AcquireDesktop(ctx context.Context) (Stream, error) {
	return s.streams.Acquire(ctx, SourceDesktop, s.Selection())
}

// Revoke stops the active stream. See StreamSession.Revoke.
func (s *Session) Revoke() error {
	return s.streams.Revoke()
}

// ToggleRecording see RecordingController.Toggle.
func (s *Session) ToggleRecording(ctx context.Context) error {
	return s.recording.Toggle(ctx)
}

// StopRecording finishes the current recording.
func (s *Session) StopRecording() error {
	return s.recording.Stop()
}

// PictureInPictureAvailable reports whether the picture-in-picture control
// should be offered.
func (s *Session) PictureInPictureAvailable() bool {
	return s.pip.Available()
}

// TogglePictureInPicture toggles picture-in-picture of the display sink.
func (s *Session) TogglePictureInPicture(ctx context.Context) error {
	return s.pip.Toggle(ctx, s.sink)
}

// DeviceOptions lists the devices of kind with their display names.
func (s *Session) DeviceOptions(kind DeviceKind) []DeviceOption {
	return s.registry.Options(kind)
}

// Registry returns the device registry.
func (s *Session) Registry() *DeviceRegistry {
	return s.registry
}

// State returns a snapshot of the session state.
func (s *Session) State() SessionState {
	return SessionState{
		Selection: s.Selection(),
		Devices:   s.registry.Devices(),
		Streaming: s.streams.Active() != nil,
		Recording: s.recording.State(),
		PiP:       s.pip.State(),
		Permissions: map[Capability]PermissionState{
			CapabilityCamera:     s.permissions.State(CapabilityCamera),
			CapabilityMicrophone: s.permissions.State(CapabilityMicrophone),
		},
	}
}

// Close stops the recording and the active stream and releases every
// platform subscription. Close is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.permissions.Stop()
	s.registry.Close()
	s.pip.Close()

	var errs []error
	if err := s.recording.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.stopEnded()
	if err := s.streams.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
