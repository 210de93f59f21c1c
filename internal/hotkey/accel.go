package hotkey

import (
	"fmt"
	"strings"
)

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	// ModSuper is the Windows key, Command on macOS.
	ModSuper
)

// Accelerator is a parsed hotkey such as "Win+Shift+A".
type Accelerator struct {
	Modifiers Modifier
	// Key is the canonical key name: "A".."Z", "0".."9", "F1".."F24",
	// "Space", "Enter", "Tab", "Escape".
	Key string
}

func (a Accelerator) String() string {
	var parts []string
	if a.Modifiers&ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if a.Modifiers&ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if a.Modifiers&ModShift != 0 {
		parts = append(parts, "Shift")
	}
	if a.Modifiers&ModSuper != 0 {
		parts = append(parts, "Win")
	}
	return strings.Join(append(parts, a.Key), "+")
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"shift":   ModShift,
	"win":     ModSuper,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"meta":    ModSuper,
}

var keyNames = map[string]string{
	"space":  "Space",
	"enter":  "Enter",
	"return": "Enter",
	"tab":    "Tab",
	"esc":    "Escape",
	"escape": "Escape",
}

// Parse parses an accelerator string. Parts are separated by '+', are
// case-insensitive and end with exactly one non-modifier key.
func Parse(accel string) (Accelerator, error) {
	var a Accelerator
	parts := strings.Split(accel, "+")

	for i, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			return Accelerator{}, fmt.Errorf("invalid hotkey %q: empty part", accel)
		}

		if i < len(parts)-1 {
			mod, ok := modifierNames[name]
			if !ok {
				return Accelerator{}, fmt.Errorf("invalid hotkey %q: unknown modifier %q", accel, part)
			}
			a.Modifiers |= mod
			continue
		}

		key, err := parseKey(name)
		if err != nil {
			return Accelerator{}, fmt.Errorf("invalid hotkey %q: %w", accel, err)
		}
		a.Key = key
	}

	return a, nil
}

func parseKey(name string) (string, error) {
	if key, ok := keyNames[name]; ok {
		return key, nil
	}
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return strings.ToUpper(name), nil
		case c >= '0' && c <= '9':
			return name, nil
		}
	}
	if name[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(name[1:], "%d", &n); err == nil && n >= 1 && n <= 24 && fmt.Sprint(n) == name[1:] {
			return "F" + name[1:], nil
		}
	}
	if _, ok := modifierNames[name]; ok {
		return "", fmt.Errorf("missing key after modifier %q", name)
	}
	return "", fmt.Errorf("unknown key %q", name)
}

// FunctionKey returns n for "F<n>", or 0.
func (a Accelerator) FunctionKey() int {
	if len(a.Key) < 2 || a.Key[0] != 'F' {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(a.Key[1:], "%d", &n); err != nil {
		return 0
	}
	return n
}
