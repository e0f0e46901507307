package sink

import (
	"errors"
	"io"

	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/bridge"
)

// Tee delivers every event to each consumer in turn.
type Tee []bridge.Consumer

func (t Tee) OnChunk(c audio.Chunk) {
	for _, consumer := range t {
		consumer.OnChunk(c)
	}
}

func (t Tee) OnError(err *audio.CaptureError) {
	for _, consumer := range t {
		consumer.OnError(err)
	}
}

// Group is a Tee that also owns its consumers' lifetimes.
type Group struct {
	Tee
	closers []io.Closer
}

// Add appends c. If c is an io.Closer, Close will close it.
func (g *Group) Add(c bridge.Consumer) {
	g.Tee = append(g.Tee, c)
	if closer, ok := c.(io.Closer); ok {
		g.closers = append(g.closers, closer)
	}
}

// Close closes consumers in reverse order of addition.
func (g *Group) Close() error {
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}
