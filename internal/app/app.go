package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/bridge"
	"github.com/petems/audiotap/internal/capture"
	"github.com/petems/audiotap/internal/config"
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetCapturing(method audio.Method)
	SetError(err error)
}

// Engine is the subset of *capture.Engine the app drives.
type Engine interface {
	StartCapture(req capture.Request, consumer bridge.Consumer) error
	StopCapture() error
	IsCapturing() bool
	ListAudioDevices() ([]audio.Device, error)
	IsMethodAvailable(m audio.Method) bool
	Methods() []audio.Method
	SelectedMethod() audio.Method
	Session() (capture.Session, bool)
	LastError() *audio.CaptureError
}

// Sink is a consumer whose resources are released when its session ends.
type Sink interface {
	bridge.Consumer
	Close() error
}

// SinkFactory opens the destination for one capture session.
type SinkFactory func(ctx context.Context, out config.OutputConfig) (Sink, error)

// MethodStatus pairs a capture method with its availability.
type MethodStatus struct {
	Method    audio.Method `json:"method"`
	Available bool         `json:"available"`
}

type Config struct {
	Engine        Engine
	Config        *config.Config
	Logger        zerolog.Logger
	Sinks         SinkFactory   // Optional - defaults to OpenOutput
	StatusUpdater StatusUpdater // Optional - can be nil
}

type App struct {
	engine Engine
	cfg    *config.Config
	log    zerolog.Logger
	sinks  SinkFactory
	status StatusUpdater

	mu   sync.Mutex
	sink Sink
}

func New(cfg Config) *App {
	a := &App{
		engine: cfg.Engine,
		cfg:    cfg.Config,
		log:    cfg.Logger.With().Str("component", "app").Logger(),
		sinks:  cfg.Sinks,
		status: cfg.StatusUpdater,
	}
	if a.sinks == nil {
		a.sinks = func(ctx context.Context, out config.OutputConfig) (Sink, error) {
			return OpenOutput(ctx, out, a.log)
		}
	}
	return a
}

// SetStatusUpdater attaches the tray after construction.
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

func (a *App) statusUpdater() StatusUpdater {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Toggle starts capture when idle and stops it otherwise.
func (a *App) Toggle() error {
	if a.engine.IsCapturing() {
		return a.StopCapture()
	}
	return a.StartCapture()
}

// Request builds the capture request from the current settings.
func (a *App) Request() capture.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requestLocked()
}

func (a *App) requestLocked() capture.Request {
	method, _ := audio.ParseMethod(a.cfg.Capture.Method)
	return capture.Request{
		SampleRate: a.cfg.Capture.SampleRate,
		Channels:   a.cfg.Capture.Channels,
		DeviceID:   a.cfg.Capture.DeviceID,
		Method:     method,
		Strict:     a.cfg.Capture.Strict,
	}
}

func (a *App) StartCapture() error {
	a.mu.Lock()
	if a.sink != nil {
		a.mu.Unlock()
		return audio.ErrAlreadyCapturing
	}
	req := a.requestLocked()
	out := a.cfg.Output
	a.mu.Unlock()

	s, err := a.sinks(context.Background(), out)
	if err != nil {
		a.reportError(err)
		return fmt.Errorf("failed to open output: %w", err)
	}

	a.mu.Lock()
	if a.sink != nil {
		a.mu.Unlock()
		_ = s.Close()
		return audio.ErrAlreadyCapturing
	}
	a.sink = s
	a.mu.Unlock()

	a.log.Info().Str("method", string(req.Method)).Str("device", req.DeviceID).Msg("Starting capture")
	if err := a.engine.StartCapture(req, s); err != nil {
		a.finishSession()
		a.reportError(err)
		return err
	}
	return nil
}

func (a *App) StopCapture() error {
	a.log.Info().Msg("Stopping capture")
	err := a.engine.StopCapture()
	a.finishSession()
	if err != nil {
		a.reportError(err)
	}
	return err
}

// OnState receives engine transitions. It keeps the status indicator in sync
// and releases the session's output when the engine returns to idle, which
// also covers sessions the engine stopped after a fatal error.
func (a *App) OnState(s capture.State) {
	switch s {
	case capture.Capturing:
		if status := a.statusUpdater(); status != nil {
			status.SetCapturing(a.engine.SelectedMethod())
		}
	case capture.Idle:
		a.finishSession()
	}
}

// finishSession closes the output once per session.
func (a *App) finishSession() {
	a.mu.Lock()
	s := a.sink
	a.sink = nil
	status := a.status
	a.mu.Unlock()

	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close output")
	}

	if cause := a.engine.LastError(); cause != nil {
		a.log.Error().Err(cause).Msg("Capture ended with an error")
		if status != nil {
			status.SetError(cause)
		}
		return
	}
	if status != nil {
		status.SetIdle()
	}
}

func (a *App) reportError(err error) {
	a.log.Error().Err(err).Msg("Capture error")
	if status := a.statusUpdater(); status != nil {
		status.SetError(err)
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	if !a.engine.IsCapturing() {
		a.finishSession()
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- a.StopCapture() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tray actions

func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine.IsCapturing() {
		return fmt.Errorf("cannot change while capturing")
	}

	a.cfg.Capture.DeviceID = id
	return a.cfg.Save()
}

func (a *App) SetMethod(method string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine.IsCapturing() {
		return fmt.Errorf("cannot change while capturing")
	}
	if _, err := audio.ParseMethod(method); err != nil {
		return err
	}

	a.cfg.Capture.Method = method
	return a.cfg.Save()
}

// Settings returns the selected device and preferred method.
func (a *App) Settings() (deviceID string, method audio.Method) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, _ := audio.ParseMethod(a.cfg.Capture.Method)
	return a.cfg.Capture.DeviceID, m
}

func (a *App) IsCapturing() bool {
	return a.engine.IsCapturing()
}

func (a *App) Session() (capture.Session, bool) {
	return a.engine.Session()
}

func (a *App) ListDevices() ([]audio.Device, error) {
	return a.engine.ListAudioDevices()
}

// Methods reports every capture method in priority order.
func (a *App) Methods() []MethodStatus {
	methods := a.engine.Methods()
	out := make([]MethodStatus, 0, len(methods))
	for _, m := range methods {
		out = append(out, MethodStatus{Method: m, Available: a.engine.IsMethodAvailable(m)})
	}
	return out
}

// ErrNoOutput is returned when neither a file nor a stream is configured.
var ErrNoOutput = errors.New("no output configured")
