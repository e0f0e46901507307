package audio

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// virtualKeywords mark loopback drivers and monitor sources.
var virtualKeywords = []string{
	"blackhole",
	"soundflower",
	"vb-cable",
	"cable output",
	"cable input",
	"loopback",
	"virtual",
	"monitor",
}

// Enumerator lists audio input endpoints through PortAudio.
type Enumerator struct{}

// NewEnumerator creates a PortAudio-backed device enumerator
func NewEnumerator() *Enumerator {
	return &Enumerator{}
}

// ListDevices re-initialises PortAudio so every call sees the current device
// topology. It never returns a nil slice on success.
func (e *Enumerator) ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defaultDevice, _ := portaudio.DefaultInputDevice()

	return describeDevices(devices, defaultDevice), nil
}

func describeDevices(devices []*portaudio.DeviceInfo, defaultDevice *portaudio.DeviceInfo) []Device {
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:      d.Name,
			Name:    d.Name,
			Default: defaultDevice != nil && d.Name == defaultDevice.Name,
			Virtual: IsVirtualDevice(d.Name),
		})
	}
	return result
}

// IsVirtualDevice reports whether name looks like a loopback or monitor device.
func IsVirtualDevice(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range virtualKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FindInputDevice resolves id to a PortAudio input device. An empty id picks
// the default input. PortAudio must already be initialised.
func FindInputDevice(id string) (*portaudio.DeviceInfo, error) {
	if id == "" || id == "default" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input device: %v", ErrDeviceUnavailable, err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == id && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: device not found: %s", ErrDeviceUnavailable, id)
}
