//go:build linux

package hotkey

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgbutil"
	"github.com/jezek/xgbutil/keybind"
	"github.com/rs/zerolog"
)

var keysyms = map[string]string{
	"space":      "space",
	"esc":        "Escape",
	"enter":      "Return",
	"tab":        "Tab",
	"backspace":  "BackSpace",
	"insert":     "Insert",
	"delete":     "Delete",
	"home":       "Home",
	"end":        "End",
	"pageup":     "Prior",
	"pagedown":   "Next",
	"left":       "Left",
	"up":         "Up",
	"right":      "Right",
	"down":       "Down",
	"capslock":   "Caps_Lock",
	"scrolllock": "Scroll_Lock",
	"pause":      "Pause",
}

var modMasks = []struct {
	key  string
	mask uint16
}{
	{KeyShift, xproto.ModMaskShift},
	{KeyCtrl, xproto.ModMaskControl},
	{KeyAlt, xproto.ModMask1},
	{KeySuper, xproto.ModMask4},
}

func keysymFor(key string) string {
	if s, ok := keysyms[key]; ok {
		return s
	}
	if strings.HasPrefix(key, "f") && len(key) > 1 {
		return "F" + key[1:]
	}
	return key
}

type x11Source struct {
	xu     *xgbutil.XUtil
	codes  []xproto.Keycode
	keys   *x11Keys
	events chan KeyEvent
	log    zerolog.Logger
	once   sync.Once
}

// NewSource grabs the chord's non-modifier key on the X11 root window with
// any modifier mask. Modifier state comes from the event state mask when the
// trigger goes down; while it is held the grab is active and modifier key
// events arrive directly, so the chord needs exactly one non-modifier key.
func NewSource(chord Chord, log zerolog.Logger) (Source, error) {
	trigger, ok := chord.Trigger()
	if !ok {
		return nil, fmt.Errorf("chord %s needs exactly one non-modifier key on X11", chord)
	}

	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("cannot connect to X11: %w", err)
	}
	keybind.Initialize(xu)

	codes := keybind.StrToKeycodes(xu, keysymFor(trigger))
	if len(codes) == 0 {
		xu.Conn().Close()
		return nil, fmt.Errorf("no keycode found for %s", trigger)
	}
	root := xu.RootWin()
	for _, code := range codes {
		if err := xproto.GrabKeyChecked(
			xu.Conn(),
			false,
			root,
			xproto.ModMaskAny,
			code,
			xproto.GrabModeAsync,
			xproto.GrabModeAsync,
		).Check(); err != nil {
			xu.Conn().Close()
			return nil, fmt.Errorf("GrabKey %s (keycode %d): %w", trigger, code, err)
		}
	}

	s := &x11Source{
		xu:     xu,
		codes:  codes,
		keys:   newX11Keys(trigger, codes, modifierCodes(keybind.ModMapGet(xu))),
		events: make(chan KeyEvent, eventBuffer),
		log:    log,
	}
	log.Debug().Str("chord", chord.String()).Str("keysym", keysymFor(trigger)).Msg("X11 key grab installed")
	go s.loop()
	return s, nil
}

// modifierCodes maps every keycode bound to shift, control, mod1 or mod4 to
// its canonical name.
func modifierCodes(mm *xgbutil.ModifierMapping) map[xproto.Keycode]string {
	out := make(map[xproto.Keycode]string)
	if mm == nil || mm.GetModifierMappingReply == nil || mm.KeycodesPerModifier == 0 {
		return out
	}
	per := int(mm.KeycodesPerModifier)
	for i, code := range mm.Keycodes {
		if code == 0 || i/per >= len(keybind.Modifiers) {
			continue
		}
		mask := keybind.Modifiers[i/per]
		for _, m := range modMasks {
			if m.mask == mask {
				out[code] = m.key
			}
		}
	}
	return out
}

func (s *x11Source) loop() {
	defer close(s.events)

	var pending xgb.Event
	for {
		var ev xgb.Event
		if pending != nil {
			ev = pending
			pending = nil
		} else {
			var xerr xgb.Error
			ev, xerr = s.xu.Conn().WaitForEvent()
			if xerr != nil {
				s.log.Warn().Str("error", xerr.Error()).Msg("X11 error")
				continue
			}
			if ev == nil {
				return
			}
		}

		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			s.emit(s.keys.press(e.Detail, e.State))

		case xproto.KeyReleaseEvent:
			var next xgb.Event
			if s.keys.isTrigger(e.Detail) {
				// X11 queues KeyRelease+KeyPress as a pair on auto-repeat.
				next, _ = s.xu.Conn().PollForEvent()
			}
			if kp, ok := autoRepeat(e, next); ok {
				s.emit(s.keys.repeat(kp.State))
				break
			}
			if next != nil {
				pending = next
			}
			s.emit(s.keys.release(e.Detail))
		}
	}
}

func (s *x11Source) emit(evs []KeyEvent) {
	for _, ev := range evs {
		s.log.Debug().Str("key", ev.Key).Bool("pressed", ev.Pressed).Msg("key event")
		s.events <- ev
	}
}

// autoRepeat reports whether release and the event queued right behind it
// form an auto-repeat pair, returning the repeated press.
func autoRepeat(release xproto.KeyReleaseEvent, next xgb.Event) (xproto.KeyPressEvent, bool) {
	kp, ok := next.(xproto.KeyPressEvent)
	if !ok || kp.Detail != release.Detail {
		return xproto.KeyPressEvent{}, false
	}
	return kp, true
}

// x11Keys turns raw X key events into KeyEvents. It knows the trigger's
// keycodes and which keycodes are modifiers; everything else is ignored.
type x11Keys struct {
	trigger     string
	codes       []xproto.Keycode
	modCodes    map[xproto.Keycode]string
	mods        map[string]bool
	triggerDown bool
}

func newX11Keys(trigger string, codes []xproto.Keycode, modCodes map[xproto.Keycode]string) *x11Keys {
	return &x11Keys{
		trigger:  trigger,
		codes:    codes,
		modCodes: modCodes,
		mods:     make(map[string]bool),
	}
}

func (k *x11Keys) isTrigger(code xproto.Keycode) bool { return containsCode(k.codes, code) }

func (k *x11Keys) press(code xproto.Keycode, state uint16) []KeyEvent {
	if k.isTrigger(code) {
		out := k.syncModifiers(state, true)
		if !k.triggerDown {
			k.triggerDown = true
			out = append(out, KeyEvent{Key: k.trigger, Pressed: true})
		}
		return out
	}
	if name, ok := k.modCodes[code]; ok && !k.mods[name] {
		k.mods[name] = true
		return []KeyEvent{{Key: name, Pressed: true}}
	}
	return nil
}

func (k *x11Keys) release(code xproto.Keycode) []KeyEvent {
	if k.isTrigger(code) {
		if !k.triggerDown {
			return nil
		}
		k.triggerDown = false
		return []KeyEvent{{Key: k.trigger, Pressed: false}}
	}
	if name, ok := k.modCodes[code]; ok && k.mods[name] {
		k.mods[name] = false
		return []KeyEvent{{Key: name, Pressed: false}}
	}
	return nil
}

// repeat handles the press half of an auto-repeat pair. It only reports
// modifiers that are no longer in the state mask: a modifier that went down
// during the hold already arrived as its own key event.
func (k *x11Keys) repeat(state uint16) []KeyEvent {
	return k.syncModifiers(state, false)
}

func (k *x11Keys) syncModifiers(state uint16, presses bool) []KeyEvent {
	var out []KeyEvent
	for _, m := range modMasks {
		held := state&m.mask != 0
		if held == k.mods[m.key] || (held && !presses) {
			continue
		}
		k.mods[m.key] = held
		out = append(out, KeyEvent{Key: m.key, Pressed: held})
	}
	return out
}

func (s *x11Source) Events() <-chan KeyEvent { return s.events }

// Close ungrabs the key and closes the X connection, which ends the loop.
func (s *x11Source) Close() error {
	s.once.Do(func() {
		root := s.xu.RootWin()
		for _, code := range s.codes {
			xproto.UngrabKey(s.xu.Conn(), code, root, xproto.ModMaskAny)
		}
		s.xu.Conn().Close()
	})
	return nil
}

func containsCode(codes []xproto.Keycode, c xproto.Keycode) bool {
	for _, code := range codes {
		if code == c {
			return true
		}
	}
	return false
}
