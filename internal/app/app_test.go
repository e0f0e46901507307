package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/bridge"
	"github.com/petems/audiotap/internal/capture"
	"github.com/petems/audiotap/internal/config"
)

// Mock implementations for testing
type mockEngine struct {
	mu        sync.Mutex
	capturing bool
	startErr  error
	lastErr   *audio.CaptureError
	requests  []capture.Request
	consumer  bridge.Consumer
	onState   func(capture.State)
}

func (m *mockEngine) StartCapture(req capture.Request, consumer bridge.Consumer) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if m.capturing {
		m.mu.Unlock()
		return audio.ErrAlreadyCapturing
	}
	if m.startErr != nil {
		m.mu.Unlock()
		m.notify(capture.Idle)
		return m.startErr
	}
	m.capturing = true
	m.consumer = consumer
	m.lastErr = nil
	m.mu.Unlock()
	m.notify(capture.Capturing)
	return nil
}

func (m *mockEngine) StopCapture() error {
	m.mu.Lock()
	was := m.capturing
	m.capturing = false
	m.mu.Unlock()
	if was {
		m.notify(capture.Idle)
	}
	return nil
}

// fail mimics the engine stopping itself after a fatal backend error.
func (m *mockEngine) fail(err *audio.CaptureError) {
	m.mu.Lock()
	m.capturing = false
	m.lastErr = err
	m.mu.Unlock()
	m.notify(capture.Idle)
}

func (m *mockEngine) notify(s capture.State) {
	if m.onState != nil {
		m.onState(s)
	}
}

func (m *mockEngine) IsCapturing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturing
}

func (m *mockEngine) ListAudioDevices() ([]audio.Device, error) {
	return []audio.Device{{ID: "default", Name: "Default", Default: true}}, nil
}

func (m *mockEngine) IsMethodAvailable(method audio.Method) bool {
	return method == audio.MethodHAL
}

func (m *mockEngine) Methods() []audio.Method { return audio.Methods() }

func (m *mockEngine) SelectedMethod() audio.Method { return audio.MethodHAL }

func (m *mockEngine) Session() (capture.Session, bool) {
	return capture.Session{Method: audio.MethodHAL}, m.IsCapturing()
}

func (m *mockEngine) LastError() *audio.CaptureError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

type mockSink struct {
	bridge.ConsumerFuncs
	mu     sync.Mutex
	closed int
}

func (m *mockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockSink) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockStatus struct {
	mu     sync.Mutex
	events []string
}

func (m *mockStatus) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, s)
}

func (m *mockStatus) SetIdle()                         { m.record("idle") }
func (m *mockStatus) SetCapturing(method audio.Method) { m.record("capturing:" + string(method)) }
func (m *mockStatus) SetError(err error)               { m.record("error") }

func (m *mockStatus) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return ""
	}
	return m.events[len(m.events)-1]
}

func newTestApp(t *testing.T) (*App, *mockEngine, *[]*mockSink, *mockStatus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	engine := &mockEngine{}
	status := &mockStatus{}
	var sinks []*mockSink
	app := New(Config{
		Engine: engine,
		Config: cfg,
		Logger: zerolog.Nop(),
		Sinks: func(context.Context, config.OutputConfig) (Sink, error) {
			s := &mockSink{}
			sinks = append(sinks, s)
			return s, nil
		},
		StatusUpdater: status,
	})
	engine.onState = app.OnState
	return app, engine, &sinks, status
}

func TestToggleStartsAndStops(t *testing.T) {
	app, engine, sinks, status := newTestApp(t)

	if app.IsCapturing() {
		t.Error("App should not be capturing initially")
	}

	if err := app.Toggle(); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !app.IsCapturing() {
		t.Error("App should be capturing after first toggle")
	}
	if got := status.last(); got != "capturing:hal" {
		t.Errorf("status = %q, want capturing:hal", got)
	}

	if err := app.Toggle(); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if app.IsCapturing() {
		t.Error("App should have stopped capturing after second toggle")
	}
	if got := status.last(); got != "idle" {
		t.Errorf("status = %q, want idle", got)
	}
	if len(*sinks) != 1 || (*sinks)[0].closeCount() != 1 {
		t.Errorf("expected one sink closed exactly once")
	}
	if len(engine.requests) != 1 {
		t.Errorf("expected one start request, got %d", len(engine.requests))
	}
}

func TestRequestFromConfig(t *testing.T) {
	app, engine, _, _ := newTestApp(t)
	app.cfg.Capture.SampleRate = 48000
	app.cfg.Capture.Channels = 2
	app.cfg.Capture.Method = "screen-capture"
	app.cfg.Capture.Strict = true

	if err := app.StartCapture(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.StopCapture()

	want := capture.Request{SampleRate: 48000, Channels: 2, Method: audio.MethodScreenCapture, Strict: true}
	if got := engine.requests[0]; got != want {
		t.Errorf("request = %+v, want %+v", got, want)
	}
}

func TestStartFailureClosesSink(t *testing.T) {
	app, engine, sinks, status := newTestApp(t)
	engine.startErr = errors.New("no backend")

	if err := app.StartCapture(); err == nil {
		t.Fatal("expected start error")
	}
	if (*sinks)[0].closeCount() != 1 {
		t.Error("sink should be closed after a failed start")
	}
	if got := status.last(); got != "error" {
		t.Errorf("status = %q, want error", got)
	}

	engine.startErr = nil
	if err := app.StartCapture(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	app.StopCapture()
}

func TestFatalErrorReleasesOutput(t *testing.T) {
	app, engine, sinks, status := newTestApp(t)

	if err := app.StartCapture(); err != nil {
		t.Fatalf("start: %v", err)
	}
	engine.fail(audio.NewCaptureError(audio.ErrPermissionDenied, true, "revoked"))

	if (*sinks)[0].closeCount() != 1 {
		t.Error("sink should be closed when the engine stops itself")
	}
	if got := status.last(); got != "error" {
		t.Errorf("status = %q, want error", got)
	}

	// A later explicit stop does not close it again.
	app.StopCapture()
	if (*sinks)[0].closeCount() != 1 {
		t.Error("sink closed twice")
	}
}

func TestSettingsRejectedWhileCapturing(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	if err := app.SetDevice("BlackHole 2ch"); err != nil {
		t.Fatalf("set device: %v", err)
	}
	if err := app.SetMethod("system-tap"); err != nil {
		t.Fatalf("set method: %v", err)
	}
	if err := app.SetMethod("wasapi"); !errors.Is(err, audio.ErrBackendUnsupported) {
		t.Errorf("expected unsupported method error, got %v", err)
	}

	if err := app.StartCapture(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := app.SetDevice("MacBook Pro Microphone"); err == nil {
		t.Error("device change should be rejected while capturing")
	}
	if err := app.SetMethod("hal"); err == nil {
		t.Error("method change should be rejected while capturing")
	}
	app.StopCapture()

	device, method := app.Settings()
	if device != "BlackHole 2ch" || method != audio.MethodSystemTap {
		t.Errorf("settings = %q/%q", device, method)
	}

	reloaded, err := config.Load(app.cfg.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Capture.DeviceID != "BlackHole 2ch" {
		t.Errorf("device not persisted: %q", reloaded.Capture.DeviceID)
	}
}

func TestMethodsReportAvailability(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	got := app.Methods()
	if len(got) != 3 {
		t.Fatalf("expected 3 methods, got %d", len(got))
	}
	for _, m := range got {
		if want := m.Method == audio.MethodHAL; m.Available != want {
			t.Errorf("%s available = %v, want %v", m.Method, m.Available, want)
		}
	}
}

func TestShutdownStopsCapture(t *testing.T) {
	app, _, sinks, _ := newTestApp(t)

	if err := app.StartCapture(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if app.IsCapturing() {
		t.Error("App should not be capturing after shutdown")
	}
	if (*sinks)[0].closeCount() != 1 {
		t.Error("sink should be closed on shutdown")
	}
}

func TestOpenOutputRequiresDestination(t *testing.T) {
	_, err := OpenOutput(context.Background(), config.OutputConfig{}, zerolog.Nop())
	if !errors.Is(err, ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}
}

func TestRecordingSinksCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	factory := RecordingSinks(dir, zerolog.Nop())

	s, err := factory(context.Background(), config.OutputConfig{Path: "-"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.OnChunk(audio.Chunk{Seq: 1, Data: []byte{1, 2}})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "capture-*.pcm"))
	if len(matches) != 1 {
		t.Errorf("expected one recording, found %v", matches)
	}
}

func TestRecordingPath(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := RecordingPath("/tmp/rec", ts); got != filepath.Join("/tmp/rec", "capture-20260304-050607.pcm") {
		t.Errorf("RecordingPath = %q", got)
	}
}
