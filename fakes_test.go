package mediasession

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type fakeLister struct {
	mu      sync.Mutex
	devices []Device
	err     error
	calls   int
}

func (l *fakeLister) ListDevices(ctx context.Context) ([]Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return append([]Device(nil), l.devices...), nil
}

func (l *fakeLister) set(devices []Device, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.devices = devices
	l.err = err
}

// gatedLister blocks every ListDevices call until its result is released,
// which lets tests complete refreshes out of order.
type gatedLister struct {
	calls chan chan []Device
}

func newGatedLister() *gatedLister {
	return &gatedLister{calls: make(chan chan []Device, 8)}
}

func (l *gatedLister) ListDevices(ctx context.Context) ([]Device, error) {
	result := make(chan []Device, 1)
	l.calls <- result
	select {
	case devices := <-result:
		return devices, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeNotifier struct {
	mu            sync.Mutex
	subscriptions int
	handlers      map[int]func()
	nextID        int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{handlers: make(map[int]func())}
}

func (n *fakeNotifier) OnDeviceChange(fn func()) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscriptions++
	id := n.nextID
	n.nextID++
	n.handlers[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.handlers, id)
	}, nil
}

func (n *fakeNotifier) fire() {
	n.mu.Lock()
	handlers := make([]func(), 0, len(n.handlers))
	for _, h := range n.handlers {
		handlers = append(handlers, h)
	}
	n.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (n *fakeNotifier) active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handlers)
}

type fakePermissionStatus struct {
	mu        sync.Mutex
	state     PermissionState
	listeners map[int]func(PermissionState)
	nextID    int
}

func newFakePermissionStatus(state PermissionState) *fakePermissionStatus {
	return &fakePermissionStatus{state: state, listeners: make(map[int]func(PermissionState))}
}

func (s *fakePermissionStatus) State() PermissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakePermissionStatus) OnChange(fn func(PermissionState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *fakePermissionStatus) set(state PermissionState) {
	s.mu.Lock()
	s.state = state
	listeners := make([]func(PermissionState), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		l(state)
	}
}

func (s *fakePermissionStatus) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

type fakeQuerier struct {
	statuses map[Capability]*fakePermissionStatus
	err      error
	// gate, when set, blocks queries until closed.
	gate chan struct{}
}

func (q *fakeQuerier) QueryPermission(ctx context.Context, c Capability) (PermissionStatus, error) {
	if q.gate != nil {
		<-q.gate
	}
	if q.err != nil {
		return nil, q.err
	}
	s, ok := q.statuses[c]
	if !ok {
		return nil, fmt.Errorf("no status for %s", c)
	}
	return s, nil
}

type fakeTrack struct {
	id   string
	kind TrackKind

	mu       sync.Mutex
	ended    bool
	stopped  bool
	handlers map[int]func()
	nextID   int
}

func newFakeTrack(id string, kind TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, handlers: make(map[int]func())}
}

func (t *fakeTrack) ID() string      { return t.id }
func (t *fakeTrack) Kind() TrackKind { return t.kind }

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return nil
}

func (t *fakeTrack) OnEnded(fn func()) func() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.handlers[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, id)
	}
}

func (t *fakeTrack) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	handlers := t.handlers
	t.handlers = make(map[int]func())
	t.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTrack) observers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers)
}

type fakeStream struct {
	id     string
	tracks []*fakeTrack
}

func newFakeStream(id string, kinds ...TrackKind) *fakeStream {
	s := &fakeStream{id: id}
	for i, k := range kinds {
		s.tracks = append(s.tracks, newFakeTrack(fmt.Sprintf("%s-%s-%d", id, k, i), k))
	}
	return s
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Tracks() []Track {
	tracks := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		tracks[i] = t
	}
	return tracks
}

type fakeMedia struct {
	mu          sync.Mutex
	user        []StreamConstraints
	display     []StreamConstraints
	next        []*fakeStream
	err         error
	streamCount int
}

func (m *fakeMedia) produce() (Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.next) > 0 {
		s := m.next[0]
		m.next = m.next[1:]
		return s, nil
	}
	m.streamCount++
	return newFakeStream(fmt.Sprintf("stream-%d", m.streamCount), TrackAudio, TrackVideo), nil
}

func (m *fakeMedia) GetUserMedia(ctx context.Context, c StreamConstraints) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = append(m.user, c)
	return m.produce()
}

func (m *fakeMedia) GetDisplayMedia(ctx context.Context, c StreamConstraints) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.display = append(m.display, c)
	return m.produce()
}

type fakeSink struct {
	mu      sync.Mutex
	source  Stream
	paused  bool
	ready   ReadyState
	playErr error
	plays   int
	sinkID  string
}

func newFakeSink() *fakeSink {
	return &fakeSink{paused: true}
}

func (s *fakeSink) SetSource(stream Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = stream
}

func (s *fakeSink) Source() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *fakeSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeSink) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	if s.playErr != nil {
		return s.playErr
	}
	s.paused = false
	return nil
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *fakeSink) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSink) SetSinkID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinkID = id
	return nil
}

type fakePiP struct {
	mu       sync.Mutex
	enabled  bool
	current  DisplaySink
	leave    map[int]func()
	nextID   int
	requests int
	exits    int
	err      error
}

func newFakePiP() *fakePiP {
	return &fakePiP{enabled: true, leave: make(map[int]func())}
}

func (p *fakePiP) Enabled() bool {
	return p.enabled
}

func (p *fakePiP) Current() DisplaySink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakePiP) Request(ctx context.Context, sink DisplaySink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	if p.err != nil {
		return p.err
	}
	p.current = sink
	return nil
}

func (p *fakePiP) Exit(ctx context.Context) error {
	p.mu.Lock()
	p.exits++
	if p.err != nil {
		p.mu.Unlock()
		return p.err
	}
	p.current = nil
	p.mu.Unlock()
	return nil
}

func (p *fakePiP) OnLeave(sink DisplaySink, fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.leave[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.leave, id)
	}
}

// closeWindow simulates the user closing the picture-in-picture window.
func (p *fakePiP) closeWindow() {
	p.mu.Lock()
	p.current = nil
	handlers := make([]func(), 0, len(p.leave))
	for _, h := range p.leave {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (p *fakePiP) listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leave)
}

type fakeRecorder struct {
	mu     sync.Mutex
	stream Stream
	state  RecordingState
	calls  []string
}

func (r *fakeRecorder) transition(call string, from []RecordingState, to RecordingState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	for _, s := range from {
		if r.state == s {
			r.state = to
			return nil
		}
	}
	return errors.New("invalid state for " + call)
}

func (r *fakeRecorder) Start() error {
	return r.transition("start", []RecordingState{RecordingInactive}, RecordingRecording)
}

func (r *fakeRecorder) Pause() error {
	return r.transition("pause", []RecordingState{RecordingRecording}, RecordingPaused)
}

func (r *fakeRecorder) Resume() error {
	return r.transition("resume", []RecordingState{RecordingPaused}, RecordingRecording)
}

func (r *fakeRecorder) Stop() error {
	return r.transition("stop", []RecordingState{RecordingRecording, RecordingPaused}, RecordingInactive)
}

func (r *fakeRecorder) State() RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRecorder) history() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type recorderFactory struct {
	mu        sync.Mutex
	recorders []*fakeRecorder
}

func (f *recorderFactory) New(s Stream) (Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeRecorder{stream: s}
	f.recorders = append(f.recorders, r)
	return r, nil
}

func (f *recorderFactory) created() []*fakeRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeRecorder(nil), f.recorders...)
}

type activeStream struct {
	s Stream
}

func (a *activeStream) Active() Stream {
	return a.s
}
