//go:build !darwin

package permissions

func Microphone() Status { return Authorized }

func RequestMicrophone() {}

func ScreenRecordingGranted() bool { return true }

func RequestScreenRecording() bool { return true }
