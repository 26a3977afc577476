package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultBufferSize is the capacity of a Bus created with size <= 0.
const DefaultBufferSize = 4096

// Bus is a bounded, non-blocking Dispatcher. A single consumer goroutine
// drains the buffer into the sinks in dispatch order. When the buffer is
// full the event is dropped and counted.
type Bus struct {
	ch     chan Event
	sinks  []Sink
	done   chan struct{}
	closed atomic.Bool
	mu     sync.RWMutex // guards sends against Close

	dispatched atomic.Int64
	dropped    atomic.Int64
	onDrop     func(Event)
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// OnDrop is called, from the dispatching goroutine, for every dropped event.
func OnDrop(fn func(Event)) BusOption {
	return func(b *Bus) {
		b.onDrop = fn
	}
}

// NewBus starts a bus with the given buffer size feeding sinks.
func NewBus(size int, sinks []Sink, opts ...BusOption) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	b := &Bus{
		ch:    make(chan Event, size),
		sinks: append([]Sink(nil), sinks...),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.consume()
	return b
}

func (b *Bus) consume() {
	defer close(b.done)
	for e := range b.ch {
		for _, s := range b.sinks {
			s.Consume(e)
		}
	}
}

// Dispatch enqueues e without blocking. Events dispatched after Close are
// dropped.
func (b *Bus) Dispatch(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed.Load() {
		b.drop(e)
		return
	}

	select {
	case b.ch <- e:
		b.dispatched.Add(1)
	default:
		b.drop(e)
	}
}

func (b *Bus) drop(e Event) {
	b.dropped.Add(1)
	if b.onDrop != nil {
		b.onDrop(e)
	}
}

// Close stops accepting events and waits until the buffered ones have been
// consumed. Calling Close again is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed.Swap(true) {
		b.mu.Unlock()
		<-b.done
		return
	}
	close(b.ch)
	b.mu.Unlock()

	<-b.done
}

// Dispatched returns the number of events accepted into the buffer.
func (b *Bus) Dispatched() int64 { return b.dispatched.Load() }

// Dropped returns the number of events lost to a full buffer or a closed
// bus.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// LogSink writes every event to a zerolog logger at debug level.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Consume(e Event) {
	ev := s.log.Debug().
		Str("kind", string(e.Kind)).
		Str("type", string(e.Type)).
		Str("scenario", e.Scenario).
		Str("actor", e.ActorID)
	if e.Step != "" {
		ev = ev.Str("step", e.Step)
	}
	if e.IsEnd() {
		ev = ev.Int64("elapsed_ms", e.ElapsedMs()).Str("status", e.Status).Bool("failed", e.Failed)
	}
	ev.Msg("event")
}

// Recorder is a Sink keeping every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Consume(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns the recorded events matching kind and type.
func (r *Recorder) Filter(kind Kind, typ Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind && e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
