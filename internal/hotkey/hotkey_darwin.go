//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework Carbon
#include <Carbon/Carbon.h>

// Forward declaration for Go callback
extern void goHotkeyCallback(int id, int pressed);

static int handlerInstalled = 0;

// Event handler for hotkeys
static OSStatus hotkeyHandler(EventHandlerCallRef nextHandler, EventRef theEvent, void* userData) {
    EventHotKeyID hkRef;
    GetEventParameter(theEvent, kEventParamDirectObject, typeEventHotKeyID, NULL, sizeof(hkRef), NULL, &hkRef);

    UInt32 eventKind = GetEventKind(theEvent);
    int pressed = (eventKind == kEventHotKeyPressed) ? 1 : 0;

    goHotkeyCallback((int)hkRef.id, pressed);

    return noErr;
}

// Register hotkey with Carbon. Returns the hotkey ref, or NULL.
static void* registerHotkey(UInt32 keyCode, UInt32 modifiers, UInt32 id) {
    if (!handlerInstalled) {
        EventTypeSpec eventTypes[2];
        eventTypes[0].eventClass = kEventClassKeyboard;
        eventTypes[0].eventKind = kEventHotKeyPressed;
        eventTypes[1].eventClass = kEventClassKeyboard;
        eventTypes[1].eventKind = kEventHotKeyReleased;

        EventHandlerUPP handlerUPP = NewEventHandlerUPP(hotkeyHandler);
        InstallApplicationEventHandler(handlerUPP, 2, eventTypes, NULL, NULL);
        handlerInstalled = 1;
    }

    EventHotKeyRef hotKeyRef;
    EventHotKeyID hotKeyID;
    hotKeyID.signature = 'snip';
    hotKeyID.id = id;

    OSStatus status = RegisterEventHotKey(keyCode, modifiers, hotKeyID, GetApplicationEventTarget(), 0, &hotKeyRef);
    if (status != noErr) return NULL;
    return (void*)hotKeyRef;
}

static void unregisterHotkey(void* ref) {
    UnregisterEventHotKey((EventHotKeyRef)ref);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// Carbon virtual key codes (kVK_*).
var carbonKeys = map[string]uint32{
	"A": 0x00, "S": 0x01, "D": 0x02, "F": 0x03, "H": 0x04, "G": 0x05, "Z": 0x06, "X": 0x07,
	"C": 0x08, "V": 0x09, "B": 0x0B, "Q": 0x0C, "W": 0x0D, "E": 0x0E, "R": 0x0F, "Y": 0x10,
	"T": 0x11, "1": 0x12, "2": 0x13, "3": 0x14, "4": 0x15, "6": 0x16, "5": 0x17, "9": 0x19,
	"7": 0x1A, "8": 0x1C, "0": 0x1D, "O": 0x1F, "U": 0x20, "I": 0x22, "P": 0x23, "L": 0x25,
	"J": 0x26, "K": 0x28, "N": 0x2D, "M": 0x2E,
	"Enter": 0x24, "Tab": 0x30, "Space": 0x31, "Escape": 0x35,
	"F1": 0x7A, "F2": 0x78, "F3": 0x63, "F4": 0x76, "F5": 0x60, "F6": 0x61, "F7": 0x62,
	"F8": 0x64, "F9": 0x65, "F10": 0x6D, "F11": 0x67, "F12": 0x6F, "F13": 0x69, "F14": 0x6B,
	"F15": 0x71, "F16": 0x6A, "F17": 0x40, "F18": 0x4F, "F19": 0x50, "F20": 0x5A,
}

func carbonModifiers(m Modifier) uint32 {
	var mods uint32
	if m&ModSuper != 0 {
		mods |= 0x100 // cmdKey
	}
	if m&ModShift != 0 {
		mods |= 0x200 // shiftKey
	}
	if m&ModAlt != 0 {
		mods |= 0x800 // optionKey
	}
	if m&ModCtrl != 0 {
		mods |= 0x1000 // controlKey
	}
	return mods
}

type registration struct {
	id       uint32
	ref      unsafe.Pointer
	callback func(bool)
}

type darwinManager struct {
	mu     sync.Mutex
	byName map[string]*registration
	nextID uint32
}

var (
	globalMu      sync.Mutex
	globalManager *darwinManager
)

// New creates a new macOS hotkey manager using Carbon
func New() (Manager, error) {
	mgr := &darwinManager{byName: make(map[string]*registration)}
	globalMu.Lock()
	globalManager = mgr
	globalMu.Unlock()
	return mgr, nil
}

//export goHotkeyCallback
func goHotkeyCallback(id C.int, pressed C.int) {
	globalMu.Lock()
	mgr := globalManager
	globalMu.Unlock()
	if mgr == nil {
		return
	}

	mgr.mu.Lock()
	var cb func(bool)
	for _, r := range mgr.byName {
		if r.id == uint32(id) {
			cb = r.callback
			break
		}
	}
	mgr.mu.Unlock()

	if cb != nil {
		cb(pressed == 1)
	}
}

func (m *darwinManager) Register(accel string, callback func(pressed bool)) error {
	a, err := Parse(accel)
	if err != nil {
		return err
	}
	keyCode, ok := carbonKeys[a.Key]
	if !ok {
		return fmt.Errorf("key %s is not supported on macOS", a.Key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	ref := C.registerHotkey(C.UInt32(keyCode), C.UInt32(carbonModifiers(a.Modifiers)), C.UInt32(m.nextID))
	if ref == nil {
		return fmt.Errorf("failed to register hotkey %s", a)
	}

	m.byName[a.String()] = &registration{id: m.nextID, ref: ref, callback: callback}
	return nil
}

func (m *darwinManager) Unregister(accel string) error {
	a, err := Parse(accel)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byName[a.String()]
	if !ok {
		return nil
	}
	C.unregisterHotkey(r.ref)
	delete(m.byName, a.String())
	return nil
}

func (m *darwinManager) Close() error {
	m.mu.Lock()
	for name, r := range m.byName {
		C.unregisterHotkey(r.ref)
		delete(m.byName, name)
	}
	m.mu.Unlock()

	globalMu.Lock()
	if globalManager == m {
		globalManager = nil
	}
	globalMu.Unlock()
	return nil
}
