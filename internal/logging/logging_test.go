package logging

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewWithLevel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("LOCALAPPDATA", t.TempDir())

	assert.Equal(t, zerolog.DebugLevel, NewWithLevel("debug").GetLevel())
	assert.Equal(t, zerolog.WarnLevel, NewWithLevel("warn").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewWithLevel("").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewWithLevel("chatty").GetLevel())
}

func TestPathUsesXDGStateHome(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_STATE_HOME only applies on linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "audiotap", "audiotap.log"), Path())

	logger := New()
	logger.Info().Msg("hello")
	_, err := os.Stat(Path())
	assert.NoError(t, err)
}
