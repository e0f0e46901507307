//go:build windows || linux

package backend

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
)

// devicePicker resolves the capture endpoint inside an initialized context.
type devicePicker func(ctx *malgo.AllocatedContext, deviceID string) (malgo.DeviceID, error)

// malgoCapture taps system output through miniaudio: WASAPI loopback on
// Windows, a sink monitor source on Linux.
type malgoCapture struct {
	method     audio.Method
	log        zerolog.Logger
	deviceType malgo.DeviceType
	pick       devicePicker

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	deviceID malgo.DeviceID
	gate     gate
	stopping atomic.Bool
	running  atomic.Bool
}

func newMalgoCapture(method audio.Method, log zerolog.Logger, deviceType malgo.DeviceType, pick devicePicker) *malgoCapture {
	return &malgoCapture{
		method:     method,
		log:        log.With().Str("backend", string(method)).Logger(),
		deviceType: deviceType,
		pick:       pick,
	}
}

func (m *malgoCapture) Method() audio.Method { return m.method }

func (m *malgoCapture) IsCapturing() bool { return m.running.Load() }

func (m *malgoCapture) Start(cfg audio.Config, sinks Sinks) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return audio.ErrAlreadyCapturing
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.log.Debug().Str("message", strings.TrimSpace(message)).Msg("miniaudio")
	})
	if err != nil {
		return fmt.Errorf("%w: init malgo context: %v", audio.ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(m.deviceType)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = chunkMillis
	if m.pick != nil {
		id, err := m.pick(ctx, cfg.DeviceID)
		if err != nil {
			m.release(ctx)
			return err
		}
		m.deviceID = id
		deviceConfig.Capture.DeviceID = m.deviceID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.gate.data(input)
		},
		Stop: func() {
			if m.stopping.Load() {
				return
			}
			m.running.Store(false)
			m.gate.fail(audio.NewCaptureError(audio.ErrDeviceUnavailable, true, "%s device stopped", m.method))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		m.release(ctx)
		return fmt.Errorf("%w: init device: %v", audio.ErrDeviceUnavailable, err)
	}

	m.stopping.Store(false)
	m.gate.arm(sinks)
	if err := device.Start(); err != nil {
		m.gate.close()
		device.Uninit()
		m.release(ctx)
		return fmt.Errorf("%w: start device: %v", audio.ErrDeviceUnavailable, err)
	}

	m.ctx = ctx
	m.device = device
	m.running.Store(true)
	m.log.Info().
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Msg("Loopback capture started")
	return nil
}

func (m *malgoCapture) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil
	}
	m.stopping.Store(true)
	m.gate.close()

	err := m.device.Stop()
	m.device.Uninit()
	m.release(m.ctx)

	m.device = nil
	m.ctx = nil
	m.running.Store(false)
	m.log.Info().Msg("Loopback capture stopped")
	if err != nil {
		return fmt.Errorf("stop device: %w", err)
	}
	return nil
}

func (m *malgoCapture) release(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
