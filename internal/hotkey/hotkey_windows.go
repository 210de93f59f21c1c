//go:build windows

package hotkey

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	procRegisterHotKey     = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32.NewProc("UnregisterHotKey")
	procGetMessageW        = user32.NewProc("GetMessageW")
	procPeekMessageW       = user32.NewProc("PeekMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
	procGetAsyncKeyState   = user32.NewProc("GetAsyncKeyState")
)

const (
	wmQuit   = 0x0012
	wmHotkey = 0x0312
	wmUser   = 0x0400
	wmApp    = 0x8000

	modAlt      = 0x0001
	modControl  = 0x0002
	modShift    = 0x0004
	modWin      = 0x0008
	modNoRepeat = 0x4000

	pmNoRemove = 0x0000

	releasePoll = 20 * time.Millisecond
)

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

func virtualKey(key string) (uint32, bool) {
	switch key {
	case "Space":
		return 0x20, true
	case "Enter":
		return 0x0D, true
	case "Tab":
		return 0x09, true
	case "Escape":
		return 0x1B, true
	}
	if len(key) == 1 {
		// VK codes for letters and digits are their ASCII values.
		return uint32(key[0]), true
	}
	var n int
	if _, err := fmt.Sscanf(key, "F%d", &n); err == nil && n >= 1 && n <= 24 {
		return 0x70 + uint32(n-1), true
	}
	return 0, false
}

func windowsModifiers(m Modifier) uint32 {
	mods := uint32(modNoRepeat)
	if m&ModAlt != 0 {
		mods |= modAlt
	}
	if m&ModCtrl != 0 {
		mods |= modControl
	}
	if m&ModShift != 0 {
		mods |= modShift
	}
	if m&ModSuper != 0 {
		mods |= modWin
	}
	return mods
}

type request struct {
	register bool
	name     string
	vk       uint32
	mods     uint32
	callback func(bool)
	result   chan error
}

type hotkeyEntry struct {
	id       uintptr
	vk       uint32
	callback func(bool)
}

// windowsManager owns a locked OS thread running a message loop. Hotkeys
// are registered on that thread so WM_HOTKEY is posted to its queue.
type windowsManager struct {
	threadID uint32
	requests chan request
	done     chan struct{}
	once     sync.Once
}

// New creates a new Windows hotkey manager using RegisterHotKey
func New() (Manager, error) {
	m := &windowsManager{
		requests: make(chan request),
		done:     make(chan struct{}),
	}

	ready := make(chan uint32)
	go m.loop(ready)
	m.threadID = <-ready

	return m, nil
}

func (m *windowsManager) loop(ready chan<- uint32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(m.done)

	entries := make(map[string]*hotkeyEntry)
	byID := make(map[uintptr]*hotkeyEntry)
	var nextID uintptr

	// Create the thread's message queue before anyone posts to it.
	var message msg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&message)), 0, wmUser, wmUser, pmNoRemove)
	ready <- windows.GetCurrentThreadId()

	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&message)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}

		switch message.message {
		case wmApp:
			m.serve(<-m.requests, entries, byID, &nextID)
		case wmHotkey:
			if e, ok := byID[message.wParam]; ok {
				e.callback(true)
				go watchRelease(e.vk, e.callback)
			}
		}
	}

	for _, e := range entries {
		procUnregisterHotKey.Call(0, e.id)
	}
}

func (m *windowsManager) serve(req request, entries map[string]*hotkeyEntry, byID map[uintptr]*hotkeyEntry, nextID *uintptr) {
	if !req.register {
		if e, ok := entries[req.name]; ok {
			procUnregisterHotKey.Call(0, e.id)
			delete(entries, req.name)
			delete(byID, e.id)
		}
		req.result <- nil
		return
	}

	*nextID++
	ret, _, err := procRegisterHotKey.Call(0, *nextID, uintptr(req.mods), uintptr(req.vk))
	if ret == 0 {
		req.result <- fmt.Errorf("failed to register hotkey %s: %w", req.name, err)
		return
	}
	e := &hotkeyEntry{id: *nextID, vk: req.vk, callback: req.callback}
	entries[req.name] = e
	byID[e.id] = e
	req.result <- nil
}

// watchRelease reports the release of vk. WM_HOTKEY has no release event.
func watchRelease(vk uint32, callback func(bool)) {
	ticker := time.NewTicker(releasePoll)
	defer ticker.Stop()
	for range ticker.C {
		state, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
		if uint16(state)&0x8000 == 0 {
			callback(false)
			return
		}
	}
}

func (m *windowsManager) send(req request) error {
	req.result = make(chan error, 1)
	ret, _, err := procPostThreadMessageW.Call(uintptr(m.threadID), wmApp, 0, 0)
	if ret == 0 {
		return fmt.Errorf("failed to reach hotkey thread: %w", err)
	}
	select {
	case m.requests <- req:
	case <-m.done:
		return fmt.Errorf("hotkey manager closed")
	}
	return <-req.result
}

func (m *windowsManager) Register(accel string, callback func(pressed bool)) error {
	a, err := Parse(accel)
	if err != nil {
		return err
	}
	vk, ok := virtualKey(a.Key)
	if !ok {
		return fmt.Errorf("key %s is not supported on Windows", a.Key)
	}
	return m.send(request{
		register: true,
		name:     a.String(),
		vk:       vk,
		mods:     windowsModifiers(a.Modifiers),
		callback: callback,
	})
}

func (m *windowsManager) Unregister(accel string) error {
	a, err := Parse(accel)
	if err != nil {
		return err
	}
	return m.send(request{name: a.String()})
}

func (m *windowsManager) Close() error {
	m.once.Do(func() {
		procPostThreadMessageW.Call(uintptr(m.threadID), wmQuit, 0, 0)
		<-m.done
	})
	return nil
}
