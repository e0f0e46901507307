// Package audio holds the types shared by capture backends, the callback
// bridge and the capture engine.
package audio

import (
	"errors"
	"fmt"
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	// BitDepth is fixed: every backend delivers signed 16-bit little-endian PCM.
	BitDepth = 16

	maxSampleRate = 384000
)

var (
	ErrInvalidConfig      = errors.New("invalid capture configuration")
	ErrAlreadyCapturing   = errors.New("capture already in progress")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrBackendUnsupported = errors.New("capture method not supported")
	ErrOverflow           = errors.New("consumer overflow")
)

// Method identifies a capture backend.
type Method string

const (
	MethodHAL           Method = "hal"
	MethodSystemTap     Method = "system-tap"
	MethodScreenCapture Method = "screen-capture"
)

// Methods returns every known method in selection priority order.
func Methods() []Method {
	return []Method{MethodSystemTap, MethodScreenCapture, MethodHAL}
}

// ParseMethod accepts the empty string as "no preference".
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return "", nil
	}
	for _, m := range Methods() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown method %q", ErrBackendUnsupported, s)
}

// Device represents an audio input endpoint
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
	Virtual bool   `json:"virtual"`
}

// Config describes the PCM stream a backend should produce.
type Config struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	// DeviceID selects an input device for backends that capture from one.
	// Empty means the OS default.
	DeviceID string `json:"device_id,omitempty"`
}

// WithDefaults fills unspecified fields. Explicitly invalid values are left
// alone so Validate can reject them.
func (c Config) WithDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	return c
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 || c.SampleRate > maxSampleRate {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("%w: channels %d (want 1 or 2)", ErrInvalidConfig, c.Channels)
	}
	return nil
}

// BytesPerFrame is the size of one interleaved sample frame.
func (c Config) BytesPerFrame() int {
	return c.Channels * BitDepth / 8
}

// FrameBytes returns the byte length of a buffer holding ms milliseconds of
// audio, rounded down to whole frames but never less than one frame.
func (c Config) FrameBytes(ms int) int {
	frames := max(c.SampleRate*ms/1000, 1)
	return frames * c.BytesPerFrame()
}

// Chunk is one captured PCM buffer. Data is owned by the receiver.
type Chunk struct {
	Seq  uint64
	Data []byte
}

// CaptureError is a one-shot error notification from a running backend.
type CaptureError struct {
	Kind    error
	Message string
	// Fatal errors end the capture session.
	Fatal bool
}

func NewCaptureError(kind error, fatal bool, format string, args ...any) *CaptureError {
	return &CaptureError{Kind: kind, Message: fmt.Sprintf(format, args...), Fatal: fatal}
}

func (e *CaptureError) Error() string {
	if e.Kind == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *CaptureError) Unwrap() error {
	return e.Kind
}
