// Package clipboard delivers text to the focused application by placing it on
// the system clipboard and injecting the paste keystroke.
package clipboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
	"github.com/rs/zerolog"

	"voicepaste/internal/hotkey"
)

const (
	defaultSettleDelay  = 100 * time.Millisecond
	defaultRestoreDelay = 120 * time.Millisecond
)

var letterKeys = map[string]int{
	"a": keybd_event.VK_A, "b": keybd_event.VK_B, "c": keybd_event.VK_C, "d": keybd_event.VK_D,
	"e": keybd_event.VK_E, "f": keybd_event.VK_F, "g": keybd_event.VK_G, "h": keybd_event.VK_H,
	"i": keybd_event.VK_I, "j": keybd_event.VK_J, "k": keybd_event.VK_K, "l": keybd_event.VK_L,
	"m": keybd_event.VK_M, "n": keybd_event.VK_N, "o": keybd_event.VK_O, "p": keybd_event.VK_P,
	"q": keybd_event.VK_Q, "r": keybd_event.VK_R, "s": keybd_event.VK_S, "t": keybd_event.VK_T,
	"u": keybd_event.VK_U, "v": keybd_event.VK_V, "w": keybd_event.VK_W, "x": keybd_event.VK_X,
	"y": keybd_event.VK_Y, "z": keybd_event.VK_Z,
}

// Options configures a Deliverer.
type Options struct {
	// PasteKey is the chord that pastes in the target application, e.g. "ctrl+v".
	PasteKey string
	// SettleDelay separates the clipboard write from the keystroke.
	SettleDelay time.Duration
	// Restore puts the previous clipboard contents back after pasting.
	Restore      bool
	RestoreDelay time.Duration
}

// pasteChord is the parsed form of Options.PasteKey.
type pasteChord struct {
	ctrl, shift, alt, super bool
	key                     int
}

func parsePasteKey(s string) (pasteChord, error) {
	chord, err := hotkey.ParseChord(s)
	if err != nil {
		return pasteChord{}, fmt.Errorf("paste key: %w", err)
	}
	trigger, ok := chord.Trigger()
	if !ok {
		return pasteChord{}, fmt.Errorf("paste key %q needs exactly one non-modifier key", s)
	}
	vk, ok := letterKeys[trigger]
	if !ok {
		return pasteChord{}, fmt.Errorf("paste key %q: only letter keys can be injected", s)
	}
	pc := pasteChord{key: vk}
	_, pc.ctrl = chord[hotkey.KeyCtrl]
	_, pc.shift = chord[hotkey.KeyShift]
	_, pc.alt = chord[hotkey.KeyAlt]
	_, pc.super = chord[hotkey.KeySuper]
	return pc, nil
}

// Deliverer writes text to the clipboard and pastes it. Deliver calls are
// serialised.
type Deliverer struct {
	opts  Options
	chord pasteChord
	log   zerolog.Logger

	readAll  func() (string, error)
	writeAll func(string) error
	press    func(pasteChord) error
	sleep    func(time.Duration)

	mu sync.Mutex
}

// New parses the paste chord. The keyboard device itself is created on the
// first delivery.
func New(opts Options, log zerolog.Logger) (*Deliverer, error) {
	chord, err := parsePasteKey(opts.PasteKey)
	if err != nil {
		return nil, err
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.RestoreDelay <= 0 {
		opts.RestoreDelay = defaultRestoreDelay
	}
	d := &Deliverer{
		opts:     opts,
		chord:    chord,
		log:      log,
		readAll:  clipboard.ReadAll,
		writeAll: clipboard.WriteAll,
		sleep:    time.Sleep,
	}
	d.press = newKeyPresser()
	return d, nil
}

// Deliver pastes text into the focused application. Empty text is a no-op.
func (d *Deliverer) Deliver(text string) error {
	if text == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var orig string
	var haveOrig bool
	if d.opts.Restore {
		if s, err := d.readAll(); err == nil {
			orig, haveOrig = s, true
		} else {
			d.log.Debug().Err(err).Msg("read clipboard failed; will not restore")
		}
	}

	if err := d.writeAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	d.sleep(d.opts.SettleDelay)

	if err := d.press(d.chord); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	d.log.Debug().Int("chars", len(text)).Msg("text pasted")

	if haveOrig {
		d.sleep(d.opts.RestoreDelay)
		if err := d.writeAll(orig); err != nil {
			d.log.Warn().Err(err).Msg("restore clipboard failed")
		}
	}
	return nil
}

// newKeyPresser returns a press func bound to one lazily created keyboard
// device; creation is retried on the next press if it fails.
func newKeyPresser() func(pasteChord) error {
	var mu sync.Mutex
	var kb *keybd_event.KeyBonding
	return func(pc pasteChord) error {
		mu.Lock()
		defer mu.Unlock()
		if kb == nil {
			k, err := keybd_event.NewKeyBonding()
			if err != nil {
				return err
			}
			kb = &k
		}
		kb.Clear()
		kb.HasCTRL(pc.ctrl)
		kb.HasSHIFT(pc.shift)
		kb.HasALT(pc.alt)
		kb.HasSuper(pc.super)
		kb.SetKeys(pc.key)
		return kb.Launching()
	}
}
