// Package events carries start/end timing records from workflow pipelines to
// reporting sinks.
package events

import (
	"time"
)

// Kind says what an event measures.
type Kind string

const (
	KindRequest  Kind = "request"
	KindMeasure  Kind = "measure"
	KindWorkflow Kind = "workflow"
)

// Type marks the start or the end of an interval.
type Type string

const (
	TypeStart Type = "START"
	TypeEnd   Type = "END"
)

// Status values used by workflow events. Request events carry the HTTP
// status code text instead.
const (
	StatusCompleted  = "completed"
	StatusTerminated = "terminated"
	StatusDropped    = "dropped"
	StatusFailed     = "failed"
	StatusAbandoned  = "abandoned"
	StatusError      = "error"
)

// Event is one timing record.
type Event struct {
	Kind     Kind          `json:"kind"`
	Type     Type          `json:"eventType"`
	RunID    string        `json:"runId,omitempty"`
	Scenario string        `json:"scenarioName"`
	Step     string        `json:"step,omitempty"`
	Tag      string        `json:"tag,omitempty"`
	ActorID  string        `json:"actorId"`
	Start    time.Time     `json:"startTs"`
	End      time.Time     `json:"endTs,omitempty"`
	Elapsed  time.Duration `json:"-"`
	Status   string        `json:"status,omitempty"`
	Code     int           `json:"code,omitempty"`
	Failed   bool          `json:"failed"`
	Attempt  int           `json:"attempt,omitempty"`
}

// ElapsedMs returns Elapsed in milliseconds.
func (e Event) ElapsedMs() int64 {
	return e.Elapsed.Milliseconds()
}

// IsEnd reports whether e closes an interval.
func (e Event) IsEnd() bool { return e.Type == TypeEnd }

// Dispatcher accepts events. Dispatch must not block the caller.
type Dispatcher interface {
	Dispatch(Event)
}

// Sink consumes events on the bus's consumer goroutine.
type Sink interface {
	Consume(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Consume(e Event) { f(e) }

// Discard drops every event.
var Discard Dispatcher = discard{}

type discard struct{}

func (discard) Dispatch(Event) {}

// Pair builds the start and end events of one interval.
func Pair(base Event, start, end time.Time) (Event, Event) {
	s := base
	s.Type = TypeStart
	s.Start = start
	s.End = time.Time{}
	s.Elapsed = 0

	e := base
	e.Type = TypeEnd
	e.Start = start
	e.End = end
	e.Elapsed = end.Sub(start)
	return s, e
}
