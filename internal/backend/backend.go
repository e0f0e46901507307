// Package backend implements the interchangeable capture backends and the
// selector that picks one of them for a capture session.
package backend

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
)

// DefaultHelperPath is the tap helper binary looked up in PATH on macOS.
const DefaultHelperPath = "audiotap-helper"

// chunkMillis is the duration of audio a backend hands over per delivery.
const chunkMillis = 20

// Sinks receive data from a running backend. They are called from the
// backend's producer goroutine or an OS audio thread and must not block.
type Sinks struct {
	Data  func(p []byte)
	Error func(err *audio.CaptureError)
}

// Backend is one OS-level capture implementation.
//
// Start begins asynchronous capture and must fail fast with
// audio.ErrAlreadyCapturing if the instance is already running. Once Stop
// returns, the sinks passed to Start are never invoked again; buffers the OS
// delivers concurrently with Stop are discarded.
type Backend interface {
	Method() audio.Method
	Start(cfg audio.Config, sinks Sinks) error
	Stop() error
	IsCapturing() bool
}

// Descriptor registers a backend with the selector. Available must be a pure
// probe: with no change in OS state, repeated calls return the same answer.
type Descriptor struct {
	Method    audio.Method
	Available func() bool
	New       func() Backend
}

// Options configure the platform backends.
type Options struct {
	Logger zerolog.Logger
	// HelperPath overrides the tap helper used by the macOS taps.
	HelperPath string
}

func (o Options) helperPath() string {
	if o.HelperPath != "" {
		return o.HelperPath
	}
	return DefaultHelperPath
}

// Descriptors returns this platform's backends in selection priority order:
// newest tap APIs first, the HAL input backend last as the universal fallback.
func Descriptors(opts Options) []Descriptor {
	return []Descriptor{
		systemTapDescriptor(opts),
		screenCaptureDescriptor(opts),
		halDescriptor(opts),
	}
}

// gate guards the sinks of a running backend. Deliveries hold the read lock,
// so close returns only after in-flight deliveries have finished, and nothing
// passes through afterwards.
type gate struct {
	mu    sync.RWMutex
	open  bool
	sinks Sinks
}

func (g *gate) arm(sinks Sinks) {
	g.mu.Lock()
	g.sinks = sinks
	g.open = true
	g.mu.Unlock()
}

func (g *gate) close() {
	g.mu.Lock()
	g.open = false
	g.sinks = Sinks{}
	g.mu.Unlock()
}

func (g *gate) data(p []byte) {
	g.mu.RLock()
	if g.open && g.sinks.Data != nil && len(p) > 0 {
		g.sinks.Data(p)
	}
	g.mu.RUnlock()
}

func (g *gate) fail(err *audio.CaptureError) {
	g.mu.RLock()
	if g.open && g.sinks.Error != nil {
		g.sinks.Error(err)
	}
	g.mu.RUnlock()
}

// unsupported stands in for a method this platform cannot provide.
type unsupported struct {
	method audio.Method
	reason string
}

func unsupportedDescriptor(method audio.Method, reason string) Descriptor {
	return Descriptor{
		Method:    method,
		Available: func() bool { return false },
		New:       func() Backend { return &unsupported{method: method, reason: reason} },
	}
}

func (u *unsupported) Method() audio.Method { return u.method }

func (u *unsupported) Start(audio.Config, Sinks) error {
	return fmt.Errorf("%w: %s: %s", audio.ErrBackendUnsupported, u.method, u.reason)
}

func (u *unsupported) Stop() error { return nil }

func (u *unsupported) IsCapturing() bool { return false }
