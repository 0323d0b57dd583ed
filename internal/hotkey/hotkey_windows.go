//go:build windows

package hotkey

import (
	"errors"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL = 13

	wmKeyDown    = 0x0100
	wmSysKeyDown = 0x0104
	wmQuit       = 0x0012
)

type kbdLLHookStruct struct {
	VKCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")

	procGetCurrentThreadId = kernel32.NewProc("GetCurrentThreadId")
)

// WH_KEYBOARD_LL is one per process
var (
	curMu   sync.Mutex
	current *Hook
)

// Start installs the low-level hook and runs its message loop on a goroutine.
func (h *Hook) Start() error {
	if h.started.Swap(true) {
		return errors.New("hotkey: already started")
	}

	curMu.Lock()
	if current != nil {
		curMu.Unlock()
		h.started.Store(false)
		return errors.New("hotkey: another hook is already installed")
	}
	current = h
	curMu.Unlock()

	go h.run()
	return nil
}

// Close removes the hook and stops the message loop.
func (h *Hook) Close() error {
	if !h.started.Load() {
		return nil
	}
	h.started.Store(false)

	if hook := h.hHook.Swap(0); hook != 0 {
		procUnhookWindowsHookEx.Call(hook)
	}

	// wake GetMessageW
	if tid := h.threadID.Load(); tid != 0 {
		procPostThreadMessageW.Call(uintptr(tid), uintptr(wmQuit), 0, 0)
	}

	curMu.Lock()
	if current == h {
		current = nil
	}
	curMu.Unlock()
	return nil
}

func (h *Hook) run() {
	// the hook, its thread id and the message loop belong to one OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid, _, _ := procGetCurrentThreadId.Call()
	h.threadID.Store(uint32(tid))

	cb := syscall.NewCallback(llKeyboardProc)
	ret, _, err := procSetWindowsHookExW.Call(uintptr(whKeyboardLL), cb, 0, 0)
	if ret == 0 {
		logrus.WithError(err).Errorln("SetWindowsHookExW failed")
		h.Close()
		return
	}
	h.hHook.Store(ret)
	if !h.started.Load() {
		// Close ran before the hook existed
		if hook := h.hHook.Swap(0); hook != 0 {
			procUnhookWindowsHookEx.Call(hook)
		}
		return
	}
	logrus.Debugln("Media key hook installed")

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 || !h.started.Load() {
			break
		}
	}
	logrus.Debugln("Media key hook loop exited")
}

// llKeyboardProc returns 1 to swallow a handled media key.
func llKeyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == 0 && (wParam == wmKeyDown || wParam == wmSysKeyDown) {
		//nolint:govet // lParam is an OS-provided KBDLLHOOKSTRUCT pointer
		k := (*kbdLLHookStruct)(unsafe.Pointer(lParam))

		curMu.Lock()
		h := current
		curMu.Unlock()

		if h != nil && h.started.Load() && h.dispatch(k.VKCode) {
			return 1
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}
