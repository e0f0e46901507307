//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation -framework CoreGraphics
#import <AVFoundation/AVFoundation.h>
#import <CoreGraphics/CoreGraphics.h>

int microphoneStatus() {
    return (int)[AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
}

void requestMicrophone() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}

int screenCapturePreflight() {
    return CGPreflightScreenCaptureAccess() ? 1 : 0;
}

int screenCaptureRequest() {
    return CGRequestScreenCaptureAccess() ? 1 : 0;
}
*/
import "C"

// Microphone returns the current microphone authorization.
func Microphone() Status {
	return Status(C.microphoneStatus())
}

// RequestMicrophone shows the system microphone dialog if the user has not
// answered it yet.
func RequestMicrophone() {
	C.requestMicrophone()
}

// ScreenRecordingGranted reports whether the process may capture screen and
// system audio content.
func ScreenRecordingGranted() bool {
	return C.screenCapturePreflight() == 1
}

// RequestScreenRecording prompts for screen recording access once per process
// lifetime and reports the resulting grant.
func RequestScreenRecording() bool {
	return C.screenCaptureRequest() == 1
}
