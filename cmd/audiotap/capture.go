package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petems/audiotap/internal/app"
	"github.com/petems/audiotap/internal/capture"
)

func newCaptureCmd(c *cli) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture audio until interrupted",
		Long: `Capture audio until interrupted, the duration elapses or the backend fails.

The stream is raw little-endian signed 16-bit PCM, interleaved. Use --out - to
write to stdout, --stream to send it to a WebSocket endpoint, or both.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCapture(cmd.Context(), duration)
		},
	}

	flags := cmd.Flags()
	flags.Int("rate", 0, "sample rate in Hz (default 16000)")
	flags.Int("channels", 0, "1 for mono, 2 for stereo (default 1)")
	flags.String("device", "", "input device ID for the hal method")
	flags.String("method", "", "preferred method: system-tap, screen-capture or hal")
	flags.Bool("strict", false, "fail instead of falling back when --method is unavailable")
	flags.String("out", "", "raw PCM output file, - for stdout")
	flags.String("stream", "", "WebSocket server to stream to, e.g. ws://localhost:8080")
	flags.Int("queue", 0, "chunks buffered between the backend and the output")
	flags.DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")

	c.bind(flags.Lookup("rate"), "capture.sample_rate")
	c.bind(flags.Lookup("channels"), "capture.channels")
	c.bind(flags.Lookup("device"), "capture.device_id")
	c.bind(flags.Lookup("method"), "capture.method")
	c.bind(flags.Lookup("strict"), "capture.strict")
	c.bind(flags.Lookup("out"), "output.path")
	c.bind(flags.Lookup("stream"), "output.stream_url")
	c.bind(flags.Lookup("queue"), "capture.queue_size")

	return cmd
}

func (c *cli) runCapture(ctx context.Context, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var (
		application *app.App
		ended       = make(chan struct{})
		endOnce     sync.Once
	)
	engine := c.engine(func(s capture.State) {
		application.OnState(s)
		if s == capture.Idle {
			endOnce.Do(func() { close(ended) })
		}
	})
	application = app.New(app.Config{
		Engine: engine,
		Config: c.cfg,
		Logger: c.log,
	})

	if err := application.StartCapture(); err != nil {
		return err
	}

	var last capture.Session
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s, ok := engine.Session(); ok {
				last = s
			}
		case <-ended:
			if cause := engine.LastError(); cause != nil {
				return fmt.Errorf("capture ended: %w", cause)
			}
			return nil
		case <-ctx.Done():
			if s, ok := engine.Session(); ok {
				last = s
			}
			err := application.StopCapture()
			c.log.Info().
				Str("session", last.ID).
				Str("method", string(last.Method)).
				Dur("elapsed", time.Since(last.Started)).
				Uint64("delivered", last.Stats.Delivered).
				Uint64("dropped", last.Stats.Dropped).
				Msg("Capture finished")
			return err
		}
	}
}
