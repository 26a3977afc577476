package events

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInOrder(t *testing.T) {
	rec := &Recorder{}
	bus := NewBus(16, []Sink{rec})

	for i := 0; i < 10; i++ {
		bus.Dispatch(Event{Kind: KindRequest, Type: TypeStart, Attempt: i})
	}
	bus.Close()

	got := rec.Events()
	require.Len(t, got, 10)
	for i, e := range got {
		assert.Equal(t, i, e.Attempt)
	}
	assert.Equal(t, int64(10), bus.Dispatched())
	assert.Zero(t, bus.Dropped())
}

func TestBus_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	blocking := SinkFunc(func(Event) { <-release })

	var dropped []Event
	var mu sync.Mutex
	bus := NewBus(1, []Sink{blocking}, OnDrop(func(e Event) {
		mu.Lock()
		dropped = append(dropped, e)
		mu.Unlock()
	}))

	// The first event is taken by the consumer, the second fills the
	// buffer, everything after that is dropped.
	bus.Dispatch(Event{Attempt: 1})
	time.Sleep(20 * time.Millisecond)
	bus.Dispatch(Event{Attempt: 2})

	start := time.Now()
	for i := 0; i < 5; i++ {
		bus.Dispatch(Event{Attempt: 3 + i})
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "Dispatch must not block")

	close(release)
	bus.Close()

	assert.Equal(t, int64(5), bus.Dropped())
	mu.Lock()
	assert.Len(t, dropped, 5)
	mu.Unlock()
}

func TestBus_CloseIdempotent(t *testing.T) {
	bus := NewBus(0, nil)
	bus.Close()
	bus.Close()

	bus.Dispatch(Event{})
	assert.Equal(t, int64(1), bus.Dropped())
}

func TestPair(t *testing.T) {
	start := time.Now()
	end := start.Add(150 * time.Millisecond)

	s, e := Pair(Event{Kind: KindMeasure, Scenario: "checkout", ActorID: "a"}, start, end)

	assert.Equal(t, TypeStart, s.Type)
	assert.Equal(t, TypeEnd, e.Type)
	assert.True(t, e.IsEnd())
	assert.Equal(t, int64(150), e.ElapsedMs())
	assert.Equal(t, "checkout", s.Scenario)
	assert.True(t, s.End.IsZero())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf).Level(zerolog.DebugLevel))

	_, e := Pair(Event{Kind: KindRequest, Scenario: "home", ActorID: "a", Status: "200"}, time.Now(), time.Now())
	sink.Consume(e)

	out := buf.String()
	assert.True(t, strings.Contains(out, `"scenario":"home"`), out)
	assert.True(t, strings.Contains(out, `"status":"200"`), out)
}

func TestRecorder_Filter(t *testing.T) {
	rec := &Recorder{}
	rec.Consume(Event{Kind: KindRequest, Type: TypeStart})
	rec.Consume(Event{Kind: KindRequest, Type: TypeEnd})
	rec.Consume(Event{Kind: KindWorkflow, Type: TypeEnd})

	assert.Len(t, rec.Filter(KindRequest, TypeEnd), 1)
	assert.Len(t, rec.Filter(KindWorkflow, TypeStart), 0)
}
