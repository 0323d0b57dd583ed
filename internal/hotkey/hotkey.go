// Package hotkey turns global media keys into bot actions: volume-up asks for
// a fresh group summary, volume-down posts the ranking board, mute is
// optional. Only Windows is supported (WH_KEYBOARD_LL); on other systems
// Start returns ErrUnsupported.
package hotkey

import (
	"errors"
	"sync/atomic"
)

var ErrUnsupported = errors.New("hotkey: global key hook is not supported on this OS")

type Hook struct {
	hHook    atomic.Uintptr
	threadID atomic.Uint32
	started  atomic.Bool

	onUp   func()
	onDown func()
	onMute func()
}

// New creates the hook without installing it.
func New(onUp, onDown func(), opts ...func(*Hook)) *Hook {
	h := &Hook{
		onUp:   onUp,
		onDown: onDown,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithMute sets the Mute key callback.
func WithMute(cb func()) func(*Hook) {
	return func(h *Hook) { h.onMute = cb }
}

func (h *Hook) Running() bool { return h.started.Load() }

// dispatch runs the callback bound to a virtual key code. It reports whether
// the key was consumed.
func (h *Hook) dispatch(vk uint32) bool {
	var cb func()
	switch vk {
	case vkVolumeUp:
		cb = h.onUp
	case vkVolumeDown:
		cb = h.onDown
	case vkVolumeMute:
		cb = h.onMute
	default:
		return false
	}
	if cb == nil {
		return false
	}
	// never block the OS hook thread
	go cb()
	return true
}

const (
	vkVolumeMute = 0xAD
	vkVolumeDown = 0xAE
	vkVolumeUp   = 0xAF
)
