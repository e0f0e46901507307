// Package bridge moves captured buffers and error events from a real-time
// producer (an OS audio callback or backend read loop) to a single consumer
// goroutine.
//
// Posting never waits for the consumer: it copies the buffer, appends it to a
// bounded queue under a short mutex and signals the dispatcher. Delivery is
// strictly FIFO. When the consumer falls behind, the oldest queued chunk is
// dropped and an advisory overflow error is queued in its place; consecutive
// drops are folded into that one error until it is delivered. Errors are never
// dropped and do not count towards the bound.
package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/petems/audiotap/internal/audio"
)

// DefaultCapacity is the number of queued chunks, not counting the one the
// consumer is handling, held before the oldest is dropped. At 20 ms per chunk
// this is about five seconds of audio.
const DefaultCapacity = 256

// Consumer receives events on the bridge's dispatch goroutine. Implementations
// may block; doing so only delays delivery and eventually causes drops.
type Consumer interface {
	OnChunk(chunk audio.Chunk)
	OnError(err *audio.CaptureError)
}

// ConsumerFuncs adapts plain functions to Consumer. Nil fields are ignored.
type ConsumerFuncs struct {
	Chunk func(audio.Chunk)
	Error func(*audio.CaptureError)
}

func (f ConsumerFuncs) OnChunk(c audio.Chunk) {
	if f.Chunk != nil {
		f.Chunk(c)
	}
}

func (f ConsumerFuncs) OnError(err *audio.CaptureError) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Options configures a Bridge.
type Options struct {
	Capacity int
	Logger   zerolog.Logger
}

// Stats is a point-in-time snapshot of bridge counters.
type Stats struct {
	Posted    uint64 `json:"posted"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Late      uint64 `json:"late"`
	Panics    uint64 `json:"panics"`
	Queued    int    `json:"queued"`
}

type event struct {
	chunk audio.Chunk
	err   *audio.CaptureError
	// dropped > 0 marks a synthesized overflow event.
	dropped int
}

func (e *event) isChunk() bool {
	return e.err == nil && e.dropped == 0
}

// Bridge is a bounded FIFO hand-off between one producer side and one consumer.
type Bridge struct {
	consumer Consumer
	capacity int
	log      zerolog.Logger

	mu   sync.Mutex
	cond *sync.Cond

	queue    []*event
	chunks   int
	overflow *event
	seq      uint64

	open      bool
	sealed    bool
	closing   bool
	discarded bool

	done chan struct{}

	posted    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	late      atomic.Uint64
	panics    atomic.Uint64
}

// New creates a bridge and its dispatch goroutine. Nothing is delivered until
// Open is called; events posted before that are held in the queue.
func New(consumer Consumer, opts Options) *Bridge {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	b := &Bridge{
		consumer: consumer,
		capacity: capacity,
		log:      opts.Logger.With().Str("component", "bridge").Logger(),
		queue:    make([]*event, 0, capacity+1),
		done:     make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)

	go b.run()
	return b
}

// PostData copies p and queues it for delivery. Safe to call from any
// goroutine; it never blocks on the consumer.
func (b *Bridge) PostData(p []byte) {
	data := make([]byte, len(p))
	copy(data, p)

	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		b.late.Add(1)
		return
	}
	if b.chunks >= b.capacity {
		b.dropOldestLocked()
	}
	b.seq++
	b.queue = append(b.queue, &event{chunk: audio.Chunk{Seq: b.seq, Data: data}})
	b.chunks++
	b.mu.Unlock()

	b.posted.Add(1)
	b.cond.Signal()
}

// PostError queues err behind every event posted before it. A fatal error
// seals the bridge so it is the last event the consumer sees.
func (b *Bridge) PostError(err *audio.CaptureError) {
	if err == nil {
		return
	}

	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		b.late.Add(1)
		return
	}
	b.queue = append(b.queue, &event{err: err})
	if err.Fatal {
		b.sealed = true
	}
	b.mu.Unlock()

	b.posted.Add(1)
	b.cond.Signal()
}

func (b *Bridge) dropOldestLocked() {
	for i, ev := range b.queue {
		if !ev.isChunk() {
			continue
		}
		b.queue = append(b.queue[:i], b.queue[i+1:]...)
		b.chunks--
		b.dropped.Add(1)

		if b.overflow != nil {
			b.overflow.dropped++
			return
		}
		b.overflow = &event{dropped: 1}
		b.queue = append(b.queue, b.overflow)
		return
	}
}

// Open starts delivery to the consumer.
func (b *Bridge) Open() {
	b.mu.Lock()
	b.open = true
	b.mu.Unlock()
	b.cond.Signal()
}

// Drain seals the bridge, waits until every queued event has been delivered
// and the dispatch goroutine has exited. A bridge that was never opened
// delivers nothing. Drain must not be called from a Consumer callback.
func (b *Bridge) Drain() {
	b.mu.Lock()
	b.sealed = true
	b.closing = true
	b.mu.Unlock()
	b.cond.Signal()

	<-b.done
}

// Discard seals the bridge and drops everything still queued without
// delivering it.
func (b *Bridge) Discard() {
	b.mu.Lock()
	b.sealed = true
	b.discarded = true
	b.queue = nil
	b.chunks = 0
	b.overflow = nil
	b.mu.Unlock()
	b.cond.Signal()

	<-b.done
}

// Sealed reports whether further posts are being discarded.
func (b *Bridge) Sealed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sealed
}

func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	queued := len(b.queue)
	b.mu.Unlock()

	return Stats{
		Posted:    b.posted.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Late:      b.late.Load(),
		Panics:    b.panics.Load(),
		Queued:    queued,
	}
}

// ready reports whether the dispatcher has something to do. Caller holds mu.
func (b *Bridge) ready() bool {
	switch {
	case b.discarded:
		return true
	case !b.open:
		return b.closing
	default:
		return len(b.queue) > 0 || b.closing
	}
}

func (b *Bridge) run() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for !b.ready() {
			b.cond.Wait()
		}
		if b.discarded || !b.open || len(b.queue) == 0 {
			b.queue = nil
			b.mu.Unlock()
			return
		}

		ev := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		switch {
		case ev == b.overflow:
			b.overflow = nil
		case ev.isChunk():
			b.chunks--
		}
		b.mu.Unlock()

		b.dispatch(ev)
	}
}

func (b *Bridge) dispatch(ev *event) {
	var pc panics.Catcher
	pc.Try(func() {
		switch {
		case ev.dropped > 0:
			b.consumer.OnError(overflowError(ev.dropped))
		case ev.err != nil:
			b.consumer.OnError(ev.err)
		default:
			b.consumer.OnChunk(ev.chunk)
		}
	})
	b.delivered.Add(1)

	if r := pc.Recovered(); r != nil {
		b.panics.Add(1)
		b.log.Error().Err(r.AsError()).Msg("Consumer panicked")
	}
}

func overflowError(dropped int) *audio.CaptureError {
	if dropped == 1 {
		return audio.NewCaptureError(audio.ErrOverflow, false, "dropped 1 chunk")
	}
	return audio.NewCaptureError(audio.ErrOverflow, false, "dropped %d chunks", dropped)
}
