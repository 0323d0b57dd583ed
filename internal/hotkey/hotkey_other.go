//go:build !windows

package hotkey

func (h *Hook) Start() error {
	return ErrUnsupported
}

func (h *Hook) Close() error {
	h.started.Store(false)
	return nil
}
