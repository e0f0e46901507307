//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework Carbon
#include <Carbon/Carbon.h>

extern void goHotkeyCallback(void);

static EventHotKeyRef hotKeyRef = NULL;
static EventHandlerRef handlerRef = NULL;

static OSStatus hotkeyHandler(EventHandlerCallRef nextHandler, EventRef theEvent, void* userData) {
    goHotkeyCallback();
    return noErr;
}

static int registerHotkey(UInt32 keyCode, UInt32 modifiers) {
    if (handlerRef == NULL) {
        EventTypeSpec eventType;
        eventType.eventClass = kEventClassKeyboard;
        eventType.eventKind = kEventHotKeyPressed;
        InstallApplicationEventHandler(NewEventHandlerUPP(hotkeyHandler), 1, &eventType, NULL, &handlerRef);
    }
    if (hotKeyRef != NULL) {
        UnregisterEventHotKey(hotKeyRef);
        hotKeyRef = NULL;
    }

    EventHotKeyID hotKeyID;
    hotKeyID.signature = 'atap';
    hotKeyID.id = 1;

    OSStatus status = RegisterEventHotKey(keyCode, modifiers, hotKeyID, GetApplicationEventTarget(), 0, &hotKeyRef);
    return (status == noErr) ? 1 : 0;
}

static void unregisterHotkey(void) {
    if (hotKeyRef != NULL) {
        UnregisterEventHotKey(hotKeyRef);
        hotKeyRef = NULL;
    }
}
*/
import "C"

import (
	"fmt"
	"sync"
)

// Carbon virtual key codes for the ANSI layout.
var carbonKeyCodes = map[string]uint32{
	"a": 0, "s": 1, "d": 2, "f": 3, "h": 4, "g": 5, "z": 6, "x": 7, "c": 8, "v": 9,
	"b": 11, "q": 12, "w": 13, "e": 14, "r": 15, "y": 16, "t": 17,
	"1": 18, "2": 19, "3": 20, "4": 21, "6": 22, "5": 23, "9": 25, "7": 26, "8": 28, "0": 29,
	"o": 31, "u": 32, "i": 34, "p": 35, "l": 37, "j": 38, "k": 40, "n": 45, "m": 46, "space": 49,
	"f1": 122, "f2": 120, "f3": 99, "f4": 118, "f5": 96, "f6": 97,
	"f7": 98, "f8": 100, "f9": 101, "f10": 109, "f11": 103, "f12": 111,
}

func carbonModifiers(m Modifier) uint32 {
	var out uint32
	if m&Super != 0 {
		out |= 0x100 // cmdKey
	}
	if m&Shift != 0 {
		out |= 0x200 // shiftKey
	}
	if m&Alt != 0 {
		out |= 0x800 // optionKey
	}
	if m&Ctrl != 0 {
		out |= 0x1000 // controlKey
	}
	return out
}

type darwinManager struct{}

var (
	callbackMu sync.Mutex
	callback   func()
)

// New creates a new macOS hotkey manager using Carbon. Events are delivered
// by the application run loop, which the tray owns.
func New() (Manager, error) {
	return &darwinManager{}, nil
}

//export goHotkeyCallback
func goHotkeyCallback() {
	callbackMu.Lock()
	cb := callback
	callbackMu.Unlock()
	if cb != nil {
		go cb()
	}
}

func (m *darwinManager) Register(accel string, cb func()) error {
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}
	code, ok := carbonKeyCodes[acc.Key]
	if !ok {
		return fmt.Errorf("unsupported key %q", acc.Key)
	}

	callbackMu.Lock()
	callback = cb
	callbackMu.Unlock()

	if C.registerHotkey(C.UInt32(code), C.UInt32(carbonModifiers(acc.Mods))) == 0 {
		return fmt.Errorf("failed to register hotkey %s", accel)
	}
	return nil
}

func (m *darwinManager) Close() error {
	C.unregisterHotkey()
	callbackMu.Lock()
	callback = nil
	callbackMu.Unlock()
	return nil
}
