package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/audiotap/internal/audio"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 16000, cfg.Capture.SampleRate)
	assert.Equal(t, 1, cfg.Capture.Channels)
	assert.Equal(t, "", cfg.Capture.Method)
	assert.Equal(t, 256, cfg.Capture.QueueSize)
	assert.Equal(t, "audiotap-helper", cfg.Tap.HelperPath)
	assert.Equal(t, "-", cfg.Output.Path)
	assert.Equal(t, DefaultHotkey(), cfg.Hotkey)
	assert.Equal(t, path, cfg.Path())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "log_level": "debug",
  "capture": {"sample_rate": 48000, "channels": 2, "method": "hal"}
}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, audio.Config{SampleRate: 48000, Channels: 2}, cfg.AudioConfig())
	assert.Equal(t, "hal", cfg.Capture.Method)
	assert.Equal(t, 256, cfg.Capture.QueueSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"capture": {"sample_rate": 48000}}`), 0644))
	t.Setenv("AUDIOTAP_CAPTURE_SAMPLE_RATE", "22050")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, cfg.Capture.SampleRate)
}

func TestLoadWithBoundOverride(t *testing.T) {
	v := viper.New()
	v.Set("capture.device_id", "BlackHole 2ch")

	cfg, err := LoadWith(v, filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "BlackHole 2ch", cfg.Capture.DeviceID)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Capture.DeviceID = "USB Audio CODEC"
	cfg.Capture.Method = "screen-capture"
	require.NoError(t, cfg.Save())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "USB Audio CODEC", again.Capture.DeviceID)
	assert.Equal(t, "screen-capture", again.Capture.Method)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	cfg.LogLevel = "loud"
	cfg.Capture.Channels = 6
	cfg.Capture.Method = "wasapi"
	cfg.Capture.QueueSize = 0
	cfg.Hotkey = "Ctrl+Enter"

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrInvalidConfig)
	assert.ErrorIs(t, err, audio.ErrBackendUnsupported)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "queue_size")
	assert.Contains(t, err.Error(), "hotkey")
}

func TestEmptyHotkeyIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	cfg.Hotkey = ""
	assert.NoError(t, cfg.Validate())
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "config.json", filepath.Base(DefaultPath()))
	assert.Equal(t, appName, filepath.Base(filepath.Dir(DefaultPath())))
}
