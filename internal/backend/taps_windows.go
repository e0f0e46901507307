//go:build windows

package backend

import (
	"github.com/gen2brain/malgo"

	"github.com/petems/audiotap/internal/audio"
)

// WASAPI loopback needs Vista (NT 6.0) or later.
const loopbackMinOS = "6.0"

func systemTapDescriptor(opts Options) Descriptor {
	return Descriptor{
		Method:    audio.MethodSystemTap,
		Available: func() bool { return osAtLeast(loopbackMinOS) },
		New: func() Backend {
			return newMalgoCapture(audio.MethodSystemTap, opts.Logger, malgo.Loopback, nil)
		},
	}
}

func screenCaptureDescriptor(Options) Descriptor {
	return unsupportedDescriptor(audio.MethodScreenCapture, "screen capture audio is only available on macOS")
}
