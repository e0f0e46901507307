//go:build linux

package backend

import (
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/petems/audiotap/internal/audio"
)

func systemTapDescriptor(opts Options) Descriptor {
	return Descriptor{
		Method: audio.MethodSystemTap,
		Available: func() bool {
			ok, err := hasMonitorSource()
			return err == nil && ok
		},
		New: func() Backend {
			return newMalgoCapture(audio.MethodSystemTap, opts.Logger, malgo.Capture, pickMonitorSource)
		},
	}
}

func screenCaptureDescriptor(Options) Descriptor {
	return unsupportedDescriptor(audio.MethodScreenCapture, "screen capture audio is only available on macOS")
}

// isMonitor matches the monitor sources PulseAudio and PipeWire expose for
// every output sink.
func isMonitor(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "monitor of") || strings.HasSuffix(lower, ".monitor")
}

func hasMonitorSource() (bool, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return false, err
	}
	for _, d := range devices {
		if isMonitor(d.Name()) {
			return true, nil
		}
	}
	return false, nil
}

// pickMonitorSource prefers the monitor named by deviceID, then the first
// monitor of a default sink, then any monitor.
func pickMonitorSource(ctx *malgo.AllocatedContext, deviceID string) (malgo.DeviceID, error) {
	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("%w: failed to list capture devices: %v", audio.ErrDeviceUnavailable, err)
	}

	var fallback *malgo.DeviceInfo
	for i := range devices {
		d := &devices[i]
		name := d.Name()
		if !isMonitor(name) {
			continue
		}
		if deviceID != "" && name == deviceID {
			return d.ID, nil
		}
		if fallback == nil || (d.IsDefault != 0 && fallback.IsDefault == 0) {
			fallback = d
		}
	}
	if deviceID != "" && deviceID != "default" {
		return malgo.DeviceID{}, fmt.Errorf("%w: no monitor source named %q", audio.ErrDeviceUnavailable, deviceID)
	}
	if fallback == nil {
		return malgo.DeviceID{}, fmt.Errorf("%w: no monitor source found", audio.ErrDeviceUnavailable)
	}
	return fallback.ID, nil
}
