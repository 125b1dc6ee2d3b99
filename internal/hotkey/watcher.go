package hotkey

// Signal is an edge derived from the held-key set.
type Signal int

const (
	None Signal = iota
	Engaged
	Released
)

func (s Signal) String() string {
	switch s {
	case Engaged:
		return "engaged"
	case Released:
		return "released"
	default:
		return "none"
	}
}

// Watcher tracks held keys and reports chord edges. It is not safe for
// concurrent use; one goroutine feeds it.
type Watcher struct {
	chord   Chord
	held    map[string]struct{}
	engaged bool
}

// NewWatcher creates a watcher for chord.
func NewWatcher(chord Chord) *Watcher {
	return &Watcher{chord: chord, held: make(map[string]struct{})}
}

// Feed applies ev and returns Engaged when the chord becomes fully held,
// Released when it stops being fully held, and None otherwise.
func (w *Watcher) Feed(ev KeyEvent) Signal {
	if ev.Pressed {
		w.held[ev.Key] = struct{}{}
	} else {
		delete(w.held, ev.Key)
	}

	all := w.allHeld()
	switch {
	case all && !w.engaged:
		w.engaged = true
		return Engaged
	case !all && w.engaged:
		w.engaged = false
		return Released
	}
	return None
}

// Engaged reports whether the chord is currently fully held.
func (w *Watcher) Engaged() bool { return w.engaged }

// Reset forgets all held keys without emitting a signal.
func (w *Watcher) Reset() {
	w.held = make(map[string]struct{})
	w.engaged = false
}

func (w *Watcher) allHeld() bool {
	if len(w.chord) == 0 {
		return false
	}
	for k := range w.chord {
		if _, ok := w.held[k]; !ok {
			return false
		}
	}
	return true
}
