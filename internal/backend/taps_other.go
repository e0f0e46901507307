//go:build !darwin && !windows && !linux

package backend

import "github.com/petems/audiotap/internal/audio"

func systemTapDescriptor(Options) Descriptor {
	return unsupportedDescriptor(audio.MethodSystemTap, "no system audio tap on this platform")
}

func screenCaptureDescriptor(Options) Descriptor {
	return unsupportedDescriptor(audio.MethodScreenCapture, "screen capture audio is only available on macOS")
}
