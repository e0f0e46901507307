// Package sink provides bridge consumers that forward captured PCM.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/bridge"
)

// PCMWriter writes raw s16le chunks to an io.Writer. After the first write
// error it stops writing and reports the error from Close.
type PCMWriter struct {
	w      io.Writer
	closer io.Closer
	log    zerolog.Logger

	mu    sync.Mutex
	bytes int64
	err   error
}

var _ bridge.Consumer = (*PCMWriter)(nil)

func NewPCMWriter(w io.Writer, log zerolog.Logger) *PCMWriter {
	return &PCMWriter{w: w, log: log.With().Str("sink", "pcm").Logger()}
}

// OpenPCM creates path for writing, or uses stdout for "-".
func OpenPCM(path string, log zerolog.Logger) (*PCMWriter, error) {
	if path == "" || path == "-" {
		return NewPCMWriter(os.Stdout, log), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	pw := NewPCMWriter(f, log)
	pw.closer = f
	return pw, nil
}

func (p *PCMWriter) OnChunk(c audio.Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	n, err := p.w.Write(c.Data)
	p.bytes += int64(n)
	if err != nil {
		p.err = err
		p.log.Error().Err(err).Uint64("seq", c.Seq).Msg("Write failed, discarding further audio")
	}
}

func (p *PCMWriter) OnError(err *audio.CaptureError) {
	logCaptureError(p.log, err)
}

// Bytes returns the number of bytes written so far.
func (p *PCMWriter) Bytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

func (p *PCMWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var closeErr error
	if p.closer != nil {
		closeErr = p.closer.Close()
		p.closer = nil
	}
	if p.err != nil {
		return p.err
	}
	return closeErr
}

func logCaptureError(log zerolog.Logger, err *audio.CaptureError) {
	ev := log.Warn()
	if err.Fatal {
		ev = log.Error()
	}
	ev.Err(err).Bool("fatal", err.Fatal).Msg("Capture error")
}
