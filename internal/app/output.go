package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/config"
	"github.com/petems/audiotap/internal/sink"
)

// OpenOutput opens every destination out names: a raw PCM file (or stdout
// for "-") and a streaming endpoint.
func OpenOutput(ctx context.Context, out config.OutputConfig, log zerolog.Logger) (Sink, error) {
	if out.Path == "" && out.StreamURL == "" {
		return nil, ErrNoOutput
	}

	group := &sink.Group{}
	if out.Path != "" {
		pw, err := sink.OpenPCM(out.Path, log)
		if err != nil {
			return nil, err
		}
		group.Add(pw)
	}
	if out.StreamURL != "" {
		ws, err := sink.DialWebSocket(ctx, out.StreamURL, log)
		if err != nil {
			_ = group.Close()
			return nil, err
		}
		group.Add(ws)
	}
	return group, nil
}

// RecordingPath names a new raw capture file inside dir.
func RecordingPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("capture-%s.pcm", now.Format("20060102-150405")))
}

// RecordingSinks writes each session to its own file under dir, in addition
// to any configured stream. Used by the tray, where stdout has no reader.
func RecordingSinks(dir string, log zerolog.Logger) SinkFactory {
	return func(ctx context.Context, out config.OutputConfig) (Sink, error) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create recordings directory: %w", err)
		}
		out.Path = RecordingPath(dir, time.Now())
		log.Info().Str("path", out.Path).Msg("Recording to file")
		return OpenOutput(ctx, out, log)
	}
}
