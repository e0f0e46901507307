//go:build darwin

package backend

import (
	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/permissions"
)

const (
	// Core Audio process taps arrived in macOS 14.2.
	systemTapMinOS = "14.2"
	// ScreenCaptureKit audio capture arrived in macOS 13.0.
	screenCaptureMinOS = "13.0"
)

func systemTapDescriptor(opts Options) Descriptor {
	path := opts.helperPath()
	return Descriptor{
		Method: audio.MethodSystemTap,
		Available: func() bool {
			return osAtLeast(systemTapMinOS) && helperAvailable(path)
		},
		New: func() Backend {
			return newHelperCapture(audio.MethodSystemTap, opts.Logger, helperCommand(path, "system"), nil)
		},
	}
}

func screenCaptureDescriptor(opts Options) Descriptor {
	path := opts.helperPath()
	return Descriptor{
		Method: audio.MethodScreenCapture,
		Available: func() bool {
			return osAtLeast(screenCaptureMinOS) && helperAvailable(path)
		},
		New: func() Backend {
			return newHelperCapture(audio.MethodScreenCapture, opts.Logger, helperCommand(path, "screen"), permissions.EnsureScreenRecording)
		},
	}
}
