package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/hotkey"
)

const appName = "audiotap"

type Config struct {
	LogLevel string        `mapstructure:"log_level" json:"log_level"`
	Hotkey   string        `mapstructure:"hotkey" json:"hotkey"` // toggles capture in tray mode, "" disables
	Capture  CaptureConfig `mapstructure:"capture" json:"capture"`
	Tap      TapConfig     `mapstructure:"tap" json:"tap"`
	Output   OutputConfig  `mapstructure:"output" json:"output"`

	path string
}

type CaptureConfig struct {
	SampleRate int    `mapstructure:"sample_rate" json:"sample_rate"`
	Channels   int    `mapstructure:"channels" json:"channels"`
	DeviceID   string `mapstructure:"device_id" json:"device_id"`
	Method     string `mapstructure:"method" json:"method"` // "", "system-tap", "screen-capture" or "hal"
	Strict     bool   `mapstructure:"strict" json:"strict"`
	QueueSize  int    `mapstructure:"queue_size" json:"queue_size"`
}

type TapConfig struct {
	HelperPath string `mapstructure:"helper_path" json:"helper_path"`
}

type OutputConfig struct {
	Path      string `mapstructure:"path" json:"path"` // "-" for stdout
	StreamURL string `mapstructure:"stream_url" json:"stream_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("hotkey", DefaultHotkey())
	v.SetDefault("capture.sample_rate", audio.DefaultSampleRate)
	v.SetDefault("capture.channels", audio.DefaultChannels)
	v.SetDefault("capture.device_id", "")
	v.SetDefault("capture.method", "")
	v.SetDefault("capture.strict", false)
	v.SetDefault("capture.queue_size", 256)
	v.SetDefault("tap.helper_path", "audiotap-helper")
	v.SetDefault("output.path", "-")
	v.SetDefault("output.stream_url", "")
}

// Load reads the config at path, or at the platform default location when
// path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith loads through v, so flags bound to v take precedence over the file
// and AUDIOTAP_* environment variables.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("AUDIOTAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if err := c.AudioConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("capture: %w", err))
	}
	if _, err := audio.ParseMethod(c.Capture.Method); err != nil {
		errs = append(errs, fmt.Errorf("capture.method: %w", err))
	}
	if c.Hotkey != "" {
		if _, err := hotkey.ParseAccelerator(c.Hotkey); err != nil {
			errs = append(errs, fmt.Errorf("hotkey: %w", err))
		}
	}
	if c.Capture.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.queue_size must be positive, got %d", c.Capture.QueueSize))
	}

	return errors.Join(errs...)
}

// AudioConfig returns the PCM format requested by the capture section.
func (c *Config) AudioConfig() audio.Config {
	return audio.Config{
		SampleRate: c.Capture.SampleRate,
		Channels:   c.Capture.Channels,
		DeviceID:   c.Capture.DeviceID,
	}.WithDefaults()
}

// Path is where Save writes.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.Path()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultHotkey returns the platform's default capture toggle.
func DefaultHotkey() string {
	if runtime.GOOS == "darwin" {
		return "Cmd+Shift+A"
	}
	return "Ctrl+Alt+A"
}

// DefaultPath returns the platform-specific config file path
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// RecordingsDir returns the platform-specific directory for tray recordings
func RecordingsDir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName, "recordings")
}
