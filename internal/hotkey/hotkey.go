// Package hotkey registers a global keyboard shortcut.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned by New on platforms without a global hotkey API.
var ErrUnsupported = errors.New("global hotkeys are not supported on this platform")

// Manager defines the interface for global hotkey management
type Manager interface {
	// Register calls callback each time accel is pressed.
	Register(accel string, callback func()) error
	Close() error
}

type Modifier uint8

const (
	Ctrl Modifier = 1 << iota
	Shift
	Alt
	Super
)

// Accelerator is a parsed shortcut such as "Ctrl+Shift+A".
type Accelerator struct {
	Mods Modifier
	// Key is lower case: a letter, a digit, "space" or "f1" to "f12".
	Key string
}

var modifierNames = map[string]Modifier{
	"ctrl":    Ctrl,
	"control": Ctrl,
	"shift":   Shift,
	"alt":     Alt,
	"option":  Alt,
	"super":   Super,
	"cmd":     Super,
	"command": Super,
}

// ParseAccelerator parses "+"-separated modifiers followed by one key.
func ParseAccelerator(s string) (Accelerator, error) {
	parts := strings.Split(s, "+")
	var acc Accelerator
	for i, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			return Accelerator{}, fmt.Errorf("invalid hotkey %q", s)
		}
		if i < len(parts)-1 {
			mod, ok := modifierNames[name]
			if !ok {
				return Accelerator{}, fmt.Errorf("invalid hotkey %q: unknown modifier %q", s, part)
			}
			acc.Mods |= mod
			continue
		}
		if !validKey(name) {
			return Accelerator{}, fmt.Errorf("invalid hotkey %q: unknown key %q", s, part)
		}
		acc.Key = name
	}
	if acc.Mods == 0 {
		return Accelerator{}, fmt.Errorf("invalid hotkey %q: at least one modifier is required", s)
	}
	return acc, nil
}

func validKey(name string) bool {
	if name == "space" {
		return true
	}
	if len(name) == 1 {
		c := name[0]
		return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
	}
	if name[0] == 'f' {
		switch name[1:] {
		case "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12":
			return true
		}
	}
	return false
}
