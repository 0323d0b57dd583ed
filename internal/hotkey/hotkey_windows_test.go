//go:build windows

package hotkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartClose(t *testing.T) {
	h := New(func() {}, func() {})
	require.NoError(t, h.Start())
	assert.True(t, h.Running())
	assert.Error(t, h.Start(), "already started")

	other := New(func() {}, nil)
	assert.Error(t, other.Start(), "one hook at a time")

	require.Eventually(t, func() bool { return h.hHook.Load() != 0 }, 2*time.Second, 10*time.Millisecond)
	tid := h.threadID.Load()
	assert.NotZero(t, tid)

	require.NoError(t, h.Close())
	assert.False(t, h.Running())
	assert.Zero(t, h.hHook.Load())

	// the slot is free again
	require.NoError(t, other.Start())
	require.NoError(t, other.Close())
}
