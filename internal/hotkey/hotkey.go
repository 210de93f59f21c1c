// Package hotkey registers system-wide hotkeys.
package hotkey

// Manager defines the interface for global hotkey management. Callbacks
// receive true on press and false on release, where the platform reports
// releases.
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}
