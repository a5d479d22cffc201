package bb84

import (
	"sync"

	"github.com/qkdlab/bb84sim/bb84/photon"
)

// An EventKind names the type of an Event on the wire.
type EventKind string

const (
	KindQubit   EventKind = "qubit"
	KindStats   EventKind = "stats"
	KindSummary EventKind = "summary"
	KindReset   EventKind = "reset"
)

// An Event is one of QubitEvent, StatsSnapshot, SessionSummary or ResetAck.
// Events are values; once emitted they belong to the sink.
type Event interface {
	Kind() EventKind
}

// A QubitEvent describes the fate of one transmitted qubit. X, Y and Z are the
// Bloch coordinates of the qubit as it reached the receiver. EveBasis is only
// meaningful when Intercepted is set.
type QubitEvent struct {
	Seq           int          `json:"seq"`
	Bit           photon.Bit   `json:"bit"`
	SenderBasis   photon.Basis `json:"senderBasis"`
	ReceiverBasis photon.Basis `json:"receiverBasis"`
	MeasuredBit   photon.Bit   `json:"measuredBit"`
	Intercepted   bool         `json:"intercepted"`
	Detected      bool         `json:"detected"`
	EveBasis      photon.Basis `json:"eveBasis"`
	X             float64      `json:"x"`
	Y             float64      `json:"y"`
	Z             float64      `json:"z"`

	// InformationGain is what the eavesdropper learned about Bit.
	InformationGain float64 `json:"informationGain"`
}

// Sifted reports whether the qubit survives sifting.
func (e QubitEvent) Sifted() bool {
	return e.SenderBasis == e.ReceiverBasis
}

// A StatsSnapshot reports running aggregates every ReportInterval qubits.
type StatsSnapshot struct {
	TotalSent   int     `json:"totalSent"`
	Intercepts  int     `json:"intercepts"`
	Detections  int     `json:"detections"`
	RunningQBER float64 `json:"runningQBER"`

	EveInformationGain float64 `json:"eveInformationGain"`
}

// A SessionSummary is emitted once, when a run completes without being
// stopped.
type SessionSummary struct {
	TotalSent  int     `json:"totalSent"`
	Intercepts int     `json:"intercepts"`
	Detections int     `json:"detections"`
	FinalQBER  float64 `json:"finalQBER"`
	Verdict    Verdict `json:"verdict"`
	KeyLength  int     `json:"keyLength"`
	Efficiency float64 `json:"efficiency"`

	// EveInformationGain is the average information gain per intercept.
	EveInformationGain float64 `json:"eveInformationGain"`
}

// A ResetAck acknowledges a Reset.
type ResetAck struct{}

func (QubitEvent) Kind() EventKind     { return KindQubit }
func (StatsSnapshot) Kind() EventKind  { return KindStats }
func (SessionSummary) Kind() EventKind { return KindSummary }
func (ResetAck) Kind() EventKind       { return KindReset }

// A Sink receives events pushed by a Session.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard is a Sink which drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// MultiSink returns a Sink which forwards each event to every sink, in order.
func MultiSink(sinks ...Sink) Sink {
	all := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			all = append(all, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range all {
			s.Emit(e)
		}
	})
}

// A Collector is a Sink which keeps every event it is given. It is safe for
// concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (c *Collector) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of everything collected so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Qubits returns the collected QubitEvents.
func (c *Collector) Qubits() []QubitEvent {
	var r []QubitEvent
	for _, e := range c.Events() {
		if q, ok := e.(QubitEvent); ok {
			r = append(r, q)
		}
	}
	return r
}
