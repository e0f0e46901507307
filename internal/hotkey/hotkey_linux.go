//go:build linux

package hotkey

/*
#cgo pkg-config: x11
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <stdlib.h>

static Display* displayPtr = NULL;

static int grabKey(const char* keyName, unsigned int modifiers) {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    if (displayPtr == NULL) return -1;

    KeySym sym = XStringToKeysym(keyName);
    if (sym == NoSymbol) return 0;
    int keycode = XKeysymToKeycode(displayPtr, sym);
    if (keycode == 0) return 0;

    Window root = DefaultRootWindow(displayPtr);
    // Grab with and without CapsLock (LockMask) and NumLock (Mod2Mask).
    unsigned int extra[4] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};
    for (int i = 0; i < 4; i++) {
        XGrabKey(displayPtr, keycode, modifiers | extra[i], root, False, GrabModeAsync, GrabModeAsync);
    }
    XSelectInput(displayPtr, root, KeyPressMask);
    XSync(displayPtr, False);
    return keycode;
}

static int nextKeyPress(void) {
    if (displayPtr == NULL) return 0;
    while (XPending(displayPtr) > 0) {
        XEvent event;
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress) {
            return event.xkey.keycode;
        }
    }
    return 0;
}

static void closeDisplay(void) {
    if (displayPtr != NULL) {
        XCloseDisplay(displayPtr);
        displayPtr = NULL;
    }
}
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"
)

const pollInterval = 10 * time.Millisecond

type linuxManager struct {
	mu        sync.Mutex
	callbacks map[int]func()
	stop      chan struct{}
	done      chan struct{}
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		callbacks: make(map[int]func()),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go mgr.eventLoop()
	return mgr, nil
}

// x11KeyName converts a parsed key to its X keysym name.
func x11KeyName(key string) string {
	if strings.HasPrefix(key, "f") && len(key) > 1 {
		return "F" + key[1:]
	}
	return key
}

func x11Modifiers(m Modifier) C.uint {
	var out C.uint
	if m&Shift != 0 {
		out |= C.ShiftMask
	}
	if m&Ctrl != 0 {
		out |= C.ControlMask
	}
	if m&Alt != 0 {
		out |= C.Mod1Mask
	}
	if m&Super != 0 {
		out |= C.Mod4Mask
	}
	return out
}

func (m *linuxManager) Register(accel string, callback func()) error {
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	name := C.CString(x11KeyName(acc.Key))
	defer C.free(unsafe.Pointer(name))

	m.mu.Lock()
	defer m.mu.Unlock()

	keycode := int(C.grabKey(name, x11Modifiers(acc.Mods)))
	switch {
	case keycode < 0:
		return fmt.Errorf("failed to open X display")
	case keycode == 0:
		return fmt.Errorf("no keycode for %q", acc.Key)
	}

	m.callbacks[keycode] = callback
	return nil
}

func (m *linuxManager) eventLoop() {
	defer close(m.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			keycode := int(C.nextKeyPress())
			cb := m.callbacks[keycode]
			m.mu.Unlock()
			if cb != nil {
				cb()
			}
		}
	}
}

func (m *linuxManager) Close() error {
	close(m.stop)
	<-m.done
	m.mu.Lock()
	C.closeDisplay()
	m.mu.Unlock()
	return nil
}
