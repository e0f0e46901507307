// Package permissions reports and requests the macOS privacy grants capture
// needs. On other platforms every grant is reported as authorized.
package permissions

import "fmt"

// Status mirrors AVAuthorizationStatus.
type Status int

const (
	NotDetermined Status = 0
	Restricted    Status = 1
	Denied        Status = 2
	Authorized    Status = 3
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Report is a snapshot of the grants relevant to capture.
type Report struct {
	Microphone      Status `json:"microphone"`
	ScreenRecording bool   `json:"screen_recording"`
}

// Check returns the current grants without prompting.
func Check() Report {
	return Report{
		Microphone:      Microphone(),
		ScreenRecording: ScreenRecordingGranted(),
	}
}

// EnsureMicrophone returns nil when microphone access is granted. An
// undetermined status triggers the system prompt and still reports an error,
// since the answer arrives asynchronously.
func EnsureMicrophone() error {
	switch status := Microphone(); status {
	case Authorized:
		return nil
	case NotDetermined:
		RequestMicrophone()
		return fmt.Errorf("microphone access requested, grant it and retry")
	default:
		return fmt.Errorf("microphone access %s, enable it in System Settings > Privacy & Security > Microphone", status)
	}
}

// EnsureScreenRecording returns nil when screen recording access is granted,
// otherwise it asks the system to show its prompt.
func EnsureScreenRecording() error {
	if ScreenRecordingGranted() {
		return nil
	}
	if RequestScreenRecording() {
		return nil
	}
	return fmt.Errorf("screen recording access not granted, enable it in System Settings > Privacy & Security > Screen Recording")
}
