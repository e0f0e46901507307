// Package capture runs capture sessions: it selects a backend, wires it to a
// bridge and drives the session through its lifecycle.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/backend"
	"github.com/petems/audiotap/internal/bridge"
)

// Request describes one capture session. Zero values take the defaults:
// 16 kHz, mono, default device, best available method.
type Request struct {
	SampleRate int
	Channels   int
	DeviceID   string
	Method     audio.Method
	// Strict fails with audio.ErrBackendUnsupported instead of falling back
	// when Method is unavailable.
	Strict bool
}

func (r Request) config() audio.Config {
	return audio.Config{
		SampleRate: r.SampleRate,
		Channels:   r.Channels,
		DeviceID:   r.DeviceID,
	}.WithDefaults()
}

// DeviceLister enumerates input endpoints.
type DeviceLister interface {
	ListDevices() ([]audio.Device, error)
}

// Options configure an Engine. Descriptors and Devices default to the
// platform backends and the PortAudio enumerator.
type Options struct {
	Logger      zerolog.Logger
	Descriptors []backend.Descriptor
	HelperPath  string
	Devices     DeviceLister
	QueueSize   int
	// OnState is called once per state transition, in transition order and
	// outside the state lock. It must not start or stop capture.
	OnState func(State)
}

// Session is a snapshot of the active capture session.
type Session struct {
	ID      string       `json:"id"`
	Method  audio.Method `json:"method"`
	Config  audio.Config `json:"config"`
	Started time.Time    `json:"started"`
	Stats   bridge.Stats `json:"stats"`
}

type session struct {
	id      string
	method  audio.Method
	cfg     audio.Config
	started time.Time
	backend backend.Backend
	bridge  *bridge.Bridge
	fatal   chan *audio.CaptureError
	done    chan struct{}
}

// Engine owns at most one capture session at a time.
//
// StopCapture must not be called from a bridge.Consumer callback: it waits for
// the consumer to receive every queued event.
type Engine struct {
	log       zerolog.Logger
	selector  *backend.Selector
	devices   DeviceLister
	queueSize int
	onState   func(State)

	// notifyMu serializes OnState calls.
	notifyMu sync.Mutex

	mu      sync.Mutex
	state   State
	changed chan struct{}
	pending []State
	session *session
	lastErr *audio.CaptureError
}

func New(opts Options) *Engine {
	log := opts.Logger.With().Str("component", "capture").Logger()

	descriptors := opts.Descriptors
	if descriptors == nil {
		descriptors = backend.Descriptors(backend.Options{Logger: opts.Logger, HelperPath: opts.HelperPath})
	}
	devices := opts.Devices
	if devices == nil {
		devices = audio.NewEnumerator()
	}

	return &Engine{
		log:       log,
		selector:  backend.NewSelector(opts.Logger, descriptors...),
		devices:   devices,
		queueSize: opts.QueueSize,
		onState:   opts.OnState,
		changed:   make(chan struct{}),
	}
}

// setStateLocked records a transition and wakes goroutines waiting in
// StopCapture. Caller holds mu and calls notify after unlocking.
func (e *Engine) setStateLocked(s State) {
	e.state = s
	e.pending = append(e.pending, s)
	close(e.changed)
	e.changed = make(chan struct{})
}

// notify delivers pending transitions in the order they happened. When it
// returns, the caller's own transition has been delivered.
func (e *Engine) notify() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return
		}
		s := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()

		e.log.Debug().Stringer("state", s).Msg("State changed")
		if e.onState != nil {
			e.onState(s)
		}
	}
}

// StartCapture begins a session delivering to consumer. It returns once the
// backend is running; deliveries start as the engine reaches Capturing.
func (e *Engine) StartCapture(req Request, consumer bridge.Consumer) error {
	cfg := req.config()

	e.mu.Lock()
	if e.state != Idle {
		e.mu.Unlock()
		return audio.ErrAlreadyCapturing
	}
	if err := cfg.Validate(); err != nil {
		e.mu.Unlock()
		return err
	}
	if consumer == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: consumer is required", audio.ErrInvalidConfig)
	}
	e.setStateLocked(Starting)
	e.mu.Unlock()
	e.notify()

	s := &session{
		id:    uuid.NewString(),
		cfg:   cfg,
		fatal: make(chan *audio.CaptureError, 1),
		done:  make(chan struct{}),
	}
	s.bridge = bridge.New(consumer, bridge.Options{
		Capacity: e.queueSize,
		Logger:   e.log.With().Str("session", s.id).Logger(),
	})

	sinks := backend.Sinks{
		Data: s.bridge.PostData,
		Error: func(err *audio.CaptureError) {
			s.bridge.PostError(err)
			if err.Fatal {
				select {
				case s.fatal <- err:
				default:
				}
			}
		},
	}

	b, err := e.selector.Start(req.Method, req.Strict, cfg, sinks)
	if err != nil {
		e.mu.Lock()
		e.setStateLocked(Failed)
		e.mu.Unlock()
		e.notify()

		s.bridge.Discard()
		e.mu.Lock()
		e.setStateLocked(Idle)
		e.mu.Unlock()
		e.notify()
		e.log.Error().Err(err).Msg("Failed to start capture")
		return fmt.Errorf("start capture: %w", err)
	}

	s.backend = b
	s.method = b.Method()
	s.started = time.Now()

	e.mu.Lock()
	e.session = s
	e.lastErr = nil
	e.setStateLocked(Capturing)
	s.bridge.Open()
	e.mu.Unlock()
	e.notify()

	go e.supervise(s)

	e.log.Info().
		Str("session", s.id).
		Str("method", string(s.method)).
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Str("device", cfg.DeviceID).
		Msg("Capture started")
	return nil
}

// supervise stops a session when its backend reports a fatal error.
func (e *Engine) supervise(s *session) {
	select {
	case <-s.done:
	case err := <-s.fatal:
		e.fail(s, err)
	}
}

func (e *Engine) fail(s *session, cause *audio.CaptureError) {
	e.mu.Lock()
	if e.session != s || e.state != Capturing {
		e.mu.Unlock()
		return
	}
	e.setStateLocked(Failed)
	e.mu.Unlock()
	e.notify()

	e.log.Error().Err(cause).Str("session", s.id).Msg("Capture failed, stopping session")
	if err := e.teardown(s); err != nil {
		e.log.Warn().Err(err).Str("session", s.id).Msg("Teardown after failure")
	}

	e.mu.Lock()
	e.session = nil
	e.lastErr = cause
	e.setStateLocked(Idle)
	e.mu.Unlock()
	e.notify()
}

// StopCapture ends the active session. It returns after the backend has been
// released and every queued event has reached the consumer. Stopping an idle
// engine is a no-op; a stop during startup or failure handling waits for it.
func (e *Engine) StopCapture() error {
	for {
		e.mu.Lock()
		switch e.state {
		case Idle:
			e.mu.Unlock()
			return nil
		case Capturing:
			s := e.session
			e.setStateLocked(Stopping)
			e.mu.Unlock()
			e.notify()

			close(s.done)
			err := e.teardown(s)

			e.mu.Lock()
			e.session = nil
			e.setStateLocked(Idle)
			e.mu.Unlock()
			e.notify()
			return err
		default:
			changed := e.changed
			e.mu.Unlock()
			<-changed
		}
	}
}

// teardown releases the backend first, so nothing new is posted, then drains
// the bridge.
func (e *Engine) teardown(s *session) error {
	var errs []error
	if err := s.backend.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop %s backend: %w", s.method, err))
	}
	s.bridge.Drain()

	stats := s.bridge.Stats()
	e.log.Info().
		Str("session", s.id).
		Dur("duration", time.Since(s.started)).
		Uint64("delivered", stats.Delivered).
		Uint64("dropped", stats.Dropped).
		Uint64("late", stats.Late).
		Msg("Capture stopped")
	return errors.Join(errs...)
}

// IsCapturing reports whether a session is active. Sessions being started,
// stopped or torn down after a failure count as inactive.
func (e *Engine) IsCapturing() bool {
	return e.State() == Capturing
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Session returns a snapshot of the active session.
func (e *Engine) Session() (Session, bool) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return Session{}, false
	}
	return Session{
		ID:      s.id,
		Method:  s.method,
		Config:  s.cfg,
		Started: s.started,
		Stats:   s.bridge.Stats(),
	}, true
}

// LastError returns the fatal error that ended the previous session, if any.
func (e *Engine) LastError() *audio.CaptureError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ListAudioDevices enumerates input endpoints. It is independent of session
// state and safe to call while capturing.
func (e *Engine) ListAudioDevices() ([]audio.Device, error) {
	devices, err := e.devices.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	if devices == nil {
		devices = []audio.Device{}
	}
	return devices, nil
}

// IsMethodAvailable probes m without changing any state.
func (e *Engine) IsMethodAvailable(m audio.Method) bool {
	return e.selector.Available(m)
}

// Methods lists every registered method in selection priority order.
func (e *Engine) Methods() []audio.Method {
	return e.selector.Methods()
}

// SelectedMethod returns the backend chosen by the most recent successful
// start, or "" before the first one.
func (e *Engine) SelectedMethod() audio.Method {
	return e.selector.Selected()
}
