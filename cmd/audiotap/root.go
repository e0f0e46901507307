package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petems/audiotap/internal/capture"
	"github.com/petems/audiotap/internal/config"
	"github.com/petems/audiotap/internal/logging"
)

// cli carries state shared by every subcommand. Flags are bound to v, so an
// explicitly set flag beats AUDIOTAP_* variables and the config file.
type cli struct {
	v          *viper.Viper
	configPath string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "audiotap",
		Short:         "Capture system audio as raw PCM",
		Long:          `Capture system output audio or an input device as 16-bit PCM, written to a file, stdout or a streaming endpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	c.bind(flags.Lookup("log-level"), "log_level")

	rootCmd.AddCommand(newDevicesCmd(c))
	rootCmd.AddCommand(newMethodsCmd(c))
	rootCmd.AddCommand(newPermissionsCmd(c))
	rootCmd.AddCommand(newCaptureCmd(c))
	rootCmd.AddCommand(newTrayCmd(c))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (c *cli) load() error {
	cfg, err := config.LoadWith(c.v, c.configPath)
	if err != nil {
		c.log = logging.New()
		return err
	}
	c.cfg = cfg
	c.log = logging.NewWithLevel(cfg.LogLevel)
	return cfg.Validate()
}

// engine builds a capture engine from the loaded config.
func (c *cli) engine(onState func(capture.State)) *capture.Engine {
	return capture.New(capture.Options{
		Logger:     c.log,
		HelperPath: c.cfg.Tap.HelperPath,
		QueueSize:  c.cfg.Capture.QueueSize,
		OnState:    onState,
	})
}
