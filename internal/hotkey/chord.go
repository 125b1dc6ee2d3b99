package hotkey

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonical modifier names.
const (
	KeyCtrl  = "ctrl"
	KeyShift = "shift"
	KeyAlt   = "alt"
	KeySuper = "super"
)

// KeyEvent is a raw press or release of a single key.
type KeyEvent struct {
	Key     string
	Pressed bool
}

// Chord is the set of keys that must be held together.
type Chord map[string]struct{}

var aliases = map[string]string{
	"control": KeyCtrl,
	"ctl":     KeyCtrl,
	"lctrl":   KeyCtrl,
	"rctrl":   KeyCtrl,
	"lshift":  KeyShift,
	"rshift":  KeyShift,
	"menu":    KeyAlt,
	"option":  KeyAlt,
	"opt":     KeyAlt,
	"lalt":    KeyAlt,
	"ralt":    KeyAlt,
	"win":     KeySuper,
	"meta":    KeySuper,
	"cmd":     KeySuper,
	"command": KeySuper,
	"escape":  "esc",
	"return":  "enter",
	"del":     "delete",
	"ins":     "insert",
	"pgup":    "pageup",
	"pgdn":    "pagedown",
	"scroll":  "scrolllock",
}

var named = map[string]bool{
	KeyCtrl: true, KeyShift: true, KeyAlt: true, KeySuper: true,
	"space": true, "esc": true, "enter": true, "tab": true, "backspace": true,
	"insert": true, "delete": true, "home": true, "end": true,
	"pageup": true, "pagedown": true, "left": true, "up": true, "right": true, "down": true,
	"capslock": true, "scrolllock": true, "pause": true,
}

// CanonicalKey normalises a key token ("Control", "CMD", "F5") to the name
// used by Chord and KeyEvent. ok is false for tokens no source can produce.
func CanonicalKey(token string) (string, bool) {
	k := strings.ToLower(strings.TrimSpace(token))
	if k == "" {
		return "", false
	}
	if a, found := aliases[k]; found {
		k = a
	}
	if named[k] {
		return k, true
	}
	if len(k) == 1 {
		ch := k[0]
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			return k, true
		}
	}
	if strings.HasPrefix(k, "f") {
		if n, err := strconv.Atoi(strings.TrimPrefix(k, "f")); err == nil && n >= 1 && n <= 24 {
			return k, true
		}
	}
	return "", false
}

// IsModifier reports whether key is one of the canonical modifiers.
func IsModifier(key string) bool {
	switch key {
	case KeyCtrl, KeyShift, KeyAlt, KeySuper:
		return true
	}
	return false
}

// ParseChord accepts strings like "ctrl+shift+space", "alt+f9" or "scrolllock".
func ParseChord(s string) (Chord, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty key")
	}
	c := Chord{}
	for _, part := range strings.Split(s, "+") {
		k, ok := CanonicalKey(part)
		if !ok {
			return nil, fmt.Errorf("unsupported key token '%s' in %s", strings.TrimSpace(part), s)
		}
		c[k] = struct{}{}
	}
	return c, nil
}

// Keys returns the chord members, modifiers first, then sorted.
func (c Chord) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		mi, mj := IsModifier(keys[i]), IsModifier(keys[j])
		if mi != mj {
			return mi
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Trigger returns the single non-modifier member, if there is exactly one.
func (c Chord) Trigger() (string, bool) {
	var trigger string
	for k := range c {
		if IsModifier(k) {
			continue
		}
		if trigger != "" {
			return "", false
		}
		trigger = k
	}
	return trigger, trigger != ""
}

func (c Chord) String() string {
	return strings.Join(c.Keys(), "+")
}
