//go:build !windows

package backend

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/audiotap/internal/audio"
)

func shellCommand(script string) commandFunc {
	return func(ctx context.Context, _ audio.Config) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", script)
	}
}

type collector struct {
	mu     sync.Mutex
	sizes  []int
	bytes  atomic.Int64
	errs   []*audio.CaptureError
	failed chan struct{}
}

func newCollector() *collector {
	return &collector{failed: make(chan struct{}, 1)}
}

func (c *collector) sinks() Sinks {
	return Sinks{
		Data: func(p []byte) {
			c.bytes.Add(int64(len(p)))
			c.mu.Lock()
			c.sizes = append(c.sizes, len(p))
			c.mu.Unlock()
		},
		Error: func(err *audio.CaptureError) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
			select {
			case c.failed <- struct{}{}:
			default:
			}
		},
	}
}

func (c *collector) waitFailure(t *testing.T) *audio.CaptureError {
	t.Helper()
	select {
	case <-c.failed:
	case <-time.After(5 * time.Second):
		t.Fatal("no error delivered")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[len(c.errs)-1]
}

var mono16k = audio.Config{SampleRate: 16000, Channels: 1}

func TestHelperStreamsFixedChunks(t *testing.T) {
	h := newHelperCapture(audio.MethodSystemTap, zerolog.Nop(), shellCommand("exec head -c 1600 /dev/zero"), nil)
	c := newCollector()

	require.NoError(t, h.Start(mono16k, c.sinks()))
	err := c.waitFailure(t)

	assert.True(t, err.Fatal)
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	c.mu.Lock()
	assert.Equal(t, []int{640, 640, 320}, c.sizes)
	c.mu.Unlock()
	assert.False(t, h.IsCapturing())
	require.NoError(t, h.Stop())
}

func TestHelperPermissionDiagnostic(t *testing.T) {
	script := "echo 'error: screen recording permission denied' >&2; exit 3"
	h := newHelperCapture(audio.MethodScreenCapture, zerolog.Nop(), shellCommand(script), nil)
	c := newCollector()

	require.NoError(t, h.Start(mono16k, c.sinks()))
	err := c.waitFailure(t)

	assert.True(t, err.Fatal)
	assert.ErrorIs(t, err, audio.ErrPermissionDenied)
	assert.Contains(t, err.Message, "screen recording permission denied")
	require.NoError(t, h.Stop())
}

func TestHelperPreflightFailure(t *testing.T) {
	var launched atomic.Bool
	cmd := func(ctx context.Context, _ audio.Config) *exec.Cmd {
		launched.Store(true)
		return exec.CommandContext(ctx, "/bin/sh", "-c", "true")
	}
	h := newHelperCapture(audio.MethodScreenCapture, zerolog.Nop(), cmd, func() error {
		return errors.New("screen recording access not granted")
	})

	err := h.Start(mono16k, newCollector().sinks())
	assert.ErrorIs(t, err, audio.ErrPermissionDenied)
	assert.False(t, launched.Load())
	assert.False(t, h.IsCapturing())
}

func TestHelperMissingBinary(t *testing.T) {
	h := newHelperCapture(audio.MethodSystemTap, zerolog.Nop(), helperCommand("/nonexistent/audiotap-helper", "system"), nil)

	err := h.Start(mono16k, newCollector().sinks())
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.False(t, helperAvailable("/nonexistent/audiotap-helper"))
}

func TestHelperStopSilencesSinks(t *testing.T) {
	h := newHelperCapture(audio.MethodSystemTap, zerolog.Nop(), shellCommand("exec cat /dev/zero"), nil)
	c := newCollector()

	require.NoError(t, h.Start(mono16k, c.sinks()))
	assert.ErrorIs(t, h.Start(mono16k, c.sinks()), audio.ErrAlreadyCapturing)

	require.Eventually(t, func() bool { return c.bytes.Load() > 0 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, h.IsCapturing())

	require.NoError(t, h.Stop())
	after := c.bytes.Load()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, after, c.bytes.Load())
	assert.False(t, h.IsCapturing())
	c.mu.Lock()
	assert.Empty(t, c.errs, "a requested stop is not an error")
	c.mu.Unlock()

	// Stop is idempotent and the instance can be restarted.
	require.NoError(t, h.Stop())
	require.NoError(t, h.Start(mono16k, c.sinks()))
	require.NoError(t, h.Stop())
}

func TestHelperLowSampleRate(t *testing.T) {
	cfg := audio.Config{SampleRate: 40, Channels: 1}
	require.NoError(t, cfg.Validate())

	h := newHelperCapture(audio.MethodSystemTap, zerolog.Nop(), shellCommand("exec cat /dev/zero"), nil)
	c := newCollector()

	require.NoError(t, h.Start(cfg, c.sinks()))
	require.Eventually(t, func() bool { return c.bytes.Load() > 0 }, 5*time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- h.Stop() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.sizes {
		assert.Equal(t, 2, n, "one frame per chunk")
	}
}
