//go:build windows

package hotkey

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmQuit        = 0x0012
	llkhfInjected = 0x10
)

var vkNames = map[uint32]string{
	0x08: "backspace",
	0x09: "tab",
	0x0D: "enter",
	0x10: KeyShift,
	0x11: KeyCtrl,
	0x12: KeyAlt,
	0x13: "pause",
	0x14: "capslock",
	0x1B: "esc",
	0x20: "space",
	0x21: "pageup",
	0x22: "pagedown",
	0x23: "end",
	0x24: "home",
	0x25: "left",
	0x26: "up",
	0x27: "right",
	0x28: "down",
	0x2D: "insert",
	0x2E: "delete",
	0x5B: KeySuper,
	0x5C: KeySuper,
	0x91: "scrolllock",
	0xA0: KeyShift,
	0xA1: KeyShift,
	0xA2: KeyCtrl,
	0xA3: KeyCtrl,
	0xA4: KeyAlt,
	0xA5: KeyAlt,
}

func vkName(vk uint32) string {
	switch {
	case vk >= '0' && vk <= '9':
		return string(rune(vk))
	case vk >= 'A' && vk <= 'Z':
		return string(rune(vk - 'A' + 'a'))
	case vk >= 0x70 && vk <= 0x87:
		return fmt.Sprintf("f%d", vk-0x70+1)
	}
	return vkNames[vk]
}

type hookSource struct {
	events   chan KeyEvent
	sides    *keySides // hook thread only
	threadID uintptr
	done     chan struct{}
	once     sync.Once
}

// NewSource installs a WH_KEYBOARD_LL hook on a dedicated OS thread and
// reports every physical key transition. Keys are passed through to the
// focused application; injected events are ignored so our own paste
// keystroke never feeds back into the watcher.
func NewSource(chord Chord, log zerolog.Logger) (Source, error) {
	s := &hookSource{
		events: make(chan KeyEvent, eventBuffer),
		sides:  newKeySides(),
		done:   make(chan struct{}),
	}
	errCh := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(s.done)
		defer close(s.events)

		user32 := syscall.NewLazyDLL("user32.dll")
		kernel32 := syscall.NewLazyDLL("kernel32.dll")
		procSetWindowsHookExW := user32.NewProc("SetWindowsHookExW")
		procUnhookWindowsHookEx := user32.NewProc("UnhookWindowsHookEx")
		procCallNextHookEx := user32.NewProc("CallNextHookEx")
		procGetMessageW := user32.NewProc("GetMessageW")
		procGetCurrentThreadId := kernel32.NewProc("GetCurrentThreadId")

		type KBDLLHOOKSTRUCT struct {
			vkCode      uint32
			scanCode    uint32
			flags       uint32
			time        uint32
			dwExtraInfo uintptr
		}

		callback := syscall.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			if int32(nCode) >= 0 {
				k := (*KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
				if k.flags&llkhfInjected == 0 {
					var pressed, known bool
					switch uint32(wParam) {
					case wmKeyDown, wmSysKeyDown:
						pressed, known = true, true
					case wmKeyUp, wmSysKeyUp:
						known = true
					}
					if name := vkName(k.vkCode); known && name != "" {
						if ev, ok := s.sides.apply(name, k.vkCode, pressed); ok && !offer(s.events, ev, releaseWait) {
							log.Warn().Str("key", name).Bool("pressed", pressed).Msg("event buffer full; dropping key event")
						}
					}
				}
			}
			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		})

		tid, _, _ := procGetCurrentThreadId.Call()
		s.threadID = tid

		hook, _, _ := procSetWindowsHookExW.Call(uintptr(whKeyboardLL), callback, 0, 0)
		if hook == 0 {
			errCh <- fmt.Errorf("SetWindowsHookExW failed")
			return
		}
		log.Debug().Str("chord", chord.String()).Msg("low-level hook installed (WH_KEYBOARD_LL)")
		errCh <- nil

		var msg struct {
			Hwnd    uintptr
			Message uint32
			WParam  uintptr
			LParam  uintptr
			Time    uint32
			Pt_x    int32
			Pt_y    int32
		}
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) == -1 {
				log.Error().Msg("GetMessageW error; exiting low-level hook loop")
				break
			}
			if ret == 0 {
				break
			}
		}

		procUnhookWindowsHookEx.Call(hook)
		log.Debug().Msg("low-level hook uninstalled")
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-time.After(2 * time.Second):
		return nil, fmt.Errorf("timeout installing low-level hook")
	}
}

func (s *hookSource) Events() <-chan KeyEvent { return s.events }

// Close posts WM_QUIT to the hook thread and waits for it to unhook.
func (s *hookSource) Close() error {
	s.once.Do(func() {
		user32 := syscall.NewLazyDLL("user32.dll")
		procPostThreadMessageW := user32.NewProc("PostThreadMessageW")
		procPostThreadMessageW.Call(s.threadID, wmQuit, 0, 0)
	})
	select {
	case <-s.done:
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("timeout removing low-level hook")
	}
}
