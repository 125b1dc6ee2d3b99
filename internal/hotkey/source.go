package hotkey

import (
	"sync"
	"time"
)

// eventBuffer is large enough that an OS callback never waits on the
// consumer during a burst of key repeats.
const eventBuffer = 256

// Source delivers raw key events from the operating system. The events
// channel is closed after Close returns or the source fails.
type Source interface {
	Events() <-chan KeyEvent
	Close() error
}

// ChanSource is a Source fed by the caller. Tests and alternative front ends
// push events with Send.
type ChanSource struct {
	ch   chan KeyEvent
	once sync.Once
}

// NewChanSource creates an in-process source.
func NewChanSource() *ChanSource {
	return &ChanSource{ch: make(chan KeyEvent, eventBuffer)}
}

// Send queues ev.
func (s *ChanSource) Send(ev KeyEvent) { s.ch <- ev }

// Events implements Source.
func (s *ChanSource) Events() <-chan KeyEvent { return s.ch }

// Close implements Source.
func (s *ChanSource) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

// releaseWait bounds how long a key source waits for room in the buffer
// before it gives up on a release. Presses are dropped immediately when the
// buffer is full; a lost release would leave the chord engaged.
const releaseWait = 50 * time.Millisecond

// offer queues ev without blocking for presses and waits up to wait for
// releases. It reports whether ev was queued.
func offer(ch chan<- KeyEvent, ev KeyEvent, wait time.Duration) bool {
	select {
	case ch <- ev:
		return true
	default:
	}
	if ev.Pressed {
		return false
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case ch <- ev:
		return true
	case <-t.C:
		return false
	}
}

// keySides folds the left and right variants of a key into its canonical
// name. The canonical key is down while any variant is down.
type keySides struct {
	down map[string]map[uint32]struct{}
}

func newKeySides() *keySides {
	return &keySides{down: make(map[string]map[uint32]struct{})}
}

// apply records a transition of the physical key code, reported as name.
// ok is false when the canonical state did not change (auto-repeat, or one
// side released while the other is still held).
func (k *keySides) apply(name string, code uint32, pressed bool) (ev KeyEvent, ok bool) {
	codes := k.down[name]
	if pressed {
		if len(codes) > 0 {
			codes[code] = struct{}{}
			return KeyEvent{}, false
		}
		k.down[name] = map[uint32]struct{}{code: {}}
		return KeyEvent{Key: name, Pressed: true}, true
	}
	delete(codes, code)
	if len(codes) > 0 {
		return KeyEvent{}, false
	}
	delete(k.down, name)
	return KeyEvent{Key: name, Pressed: false}, true
}
