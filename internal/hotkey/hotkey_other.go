//go:build !darwin && !linux

package hotkey

// New reports ErrUnsupported; the tray menu remains the way to toggle capture.
func New() (Manager, error) {
	return nil, ErrUnsupported
}
