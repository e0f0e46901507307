package hotkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccelerator(t *testing.T) {
	tests := []struct {
		in   string
		want Accelerator
	}{
		{"Ctrl+Shift+A", Accelerator{Mods: Ctrl | Shift, Key: "a"}},
		{"alt+space", Accelerator{Mods: Alt, Key: "space"}},
		{"Cmd + Option + F5", Accelerator{Mods: Super | Alt, Key: "f5"}},
		{"Control+9", Accelerator{Mods: Ctrl, Key: "9"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccelerator(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAcceleratorRejects(t *testing.T) {
	for _, in := range []string{"", "A", "Ctrl+", "Hyper+A", "Ctrl+Enter", "Ctrl+F13", "Ctrl++A"} {
		_, err := ParseAccelerator(in)
		assert.Error(t, err, in)
	}
}
