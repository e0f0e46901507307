package backend

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/permissions"
)

func halDescriptor(opts Options) Descriptor {
	log := opts.Logger.With().Str("backend", string(audio.MethodHAL)).Logger()
	return Descriptor{
		Method:    audio.MethodHAL,
		Available: func() bool { return true },
		New:       func() Backend { return &halCapture{log: log} },
	}
}

// halCapture records from an input device through PortAudio's blocking read
// API. A loop goroutine owns the stream while it is running.
type halCapture struct {
	log zerolog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	done     chan struct{}
	gate     gate
	stopping atomic.Bool
	running  atomic.Bool
}

func (h *halCapture) Method() audio.Method { return audio.MethodHAL }

func (h *halCapture) IsCapturing() bool { return h.running.Load() }

func (h *halCapture) Start(cfg audio.Config, sinks Sinks) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stream != nil {
		return audio.ErrAlreadyCapturing
	}
	if err := permissions.EnsureMicrophone(); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: failed to initialize PortAudio: %v", audio.ErrDeviceUnavailable, err)
	}

	device, err := audio.FindInputDevice(cfg.DeviceID)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if device.MaxInputChannels < cfg.Channels {
		portaudio.Terminate()
		return fmt.Errorf("%w: %s has %d input channels, %d requested",
			audio.ErrInvalidConfig, device.Name, device.MaxInputChannels, cfg.Channels)
	}

	frames := cfg.FrameBytes(chunkMillis) / cfg.BytesPerFrame()
	buffer := make([]int16, frames*cfg.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: frames,
	}, buffer)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: failed to open audio stream: %v", audio.ErrDeviceUnavailable, err)
	}

	h.gate.arm(sinks)
	h.stopping.Store(false)
	if err := stream.Start(); err != nil {
		h.gate.close()
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: failed to start audio stream: %v", audio.ErrDeviceUnavailable, err)
	}

	h.stream = stream
	h.done = make(chan struct{})
	h.running.Store(true)
	go h.readLoop(stream, buffer, device.Name)

	h.log.Info().
		Str("device", device.Name).
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Msg("HAL capture started")
	return nil
}

// readLoop forwards each buffer as little-endian s16 bytes; every supported
// host is little-endian, so the int16 slice is reinterpreted in place.
func (h *halCapture) readLoop(stream *portaudio.Stream, buffer []int16, device string) {
	defer close(h.done)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&buffer[0])), len(buffer)*2)

	for {
		err := stream.Read()
		if h.stopping.Load() {
			return
		}
		switch {
		case err == nil:
			h.gate.data(raw)
		case errors.Is(err, portaudio.InputOverflowed):
			h.gate.fail(audio.NewCaptureError(audio.ErrOverflow, false, "input overflowed on %s", device))
			h.gate.data(raw)
		default:
			h.running.Store(false)
			h.log.Error().Err(err).Str("device", device).Msg("Audio stream read failed")
			h.gate.fail(audio.NewCaptureError(audio.ErrDeviceUnavailable, true, "read from %s: %v", device, err))
			return
		}
	}
}

// Stop waits for the read loop to notice, which takes at most one buffer
// period, and then releases the stream.
func (h *halCapture) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stream == nil {
		return nil
	}
	h.stopping.Store(true)
	h.gate.close()
	<-h.done

	var errs []error
	if err := h.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop audio stream: %w", err))
	}
	if err := h.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audio stream: %w", err))
	}
	portaudio.Terminate()

	h.stream = nil
	h.running.Store(false)
	h.log.Info().Msg("HAL capture stopped")
	return errors.Join(errs...)
}
