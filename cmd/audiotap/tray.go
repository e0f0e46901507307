package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petems/audiotap/internal/app"
	"github.com/petems/audiotap/internal/capture"
	"github.com/petems/audiotap/internal/config"
	"github.com/petems/audiotap/internal/hotkey"
	"github.com/petems/audiotap/internal/permissions"
	"github.com/petems/audiotap/internal/tray"
)

func newTrayCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Run as a menu bar app that records sessions to files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runTray(cmd.Context())
		},
	}
}

func (c *cli) runTray(ctx context.Context) error {
	log := c.log

	// Quitting the tray runs the app shutdown, so a signal only needs to
	// cancel ctx.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	grants := permissions.Check()
	log.Info().
		Str("microphone", grants.Microphone.String()).
		Bool("screen_recording", grants.ScreenRecording).
		Msg("Privacy grants")

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, log, Version, Commit)

	var application *app.App
	engine := c.engine(func(s capture.State) { application.OnState(s) })
	application = app.New(app.Config{
		Engine:        engine,
		Config:        c.cfg,
		Logger:        log,
		Sinks:         app.RecordingSinks(config.RecordingsDir(), log),
		StatusUpdater: trayUI,
	})
	trayUI.SetApp(application)

	if c.cfg.Hotkey != "" {
		hk, err := hotkey.New()
		switch {
		case errors.Is(err, hotkey.ErrUnsupported):
			log.Info().Msg("Global hotkey unavailable on this platform")
		case err != nil:
			return err
		default:
			defer hk.Close()
			toggle := func() {
				if err := application.Toggle(); err != nil {
					log.Error().Err(err).Msg("Toggle capture failed")
				}
			}
			if err := hk.Register(c.cfg.Hotkey, toggle); err != nil {
				log.Warn().Err(err).Str("hotkey", c.cfg.Hotkey).Msg("Failed to register hotkey")
			} else {
				log.Info().Str("hotkey", c.cfg.Hotkey).Msg("Registered capture hotkey")
			}
		}
	}

	log.Info().Msg("audiotap tray starting...")

	// Start tray UI - MUST run on main thread
	return trayUI.Run(ctx)
}
