// Package events implements the C8 Event Emitter: it turns Block Runner
// state transitions into ordered mdflow.Event frames and writes them to a
// sink, typically an SSE response writer.
package events

import (
	"context"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// Sink receives emitted events. Implementations must not block the emitter
// indefinitely; a slow consumer should apply its own backpressure policy.
type Sink interface {
	Emit(ctx context.Context, event mdflow.Event)
}

// NopSink discards every event. Useful in tests and for dry runs.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(context.Context, mdflow.Event) {}

// ChanSink forwards events onto a buffered channel, used to bridge the
// emitter into an SSE handler's write loop.
type ChanSink struct {
	ch chan mdflow.Event
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{ch: make(chan mdflow.Event, buffer)}
}

// Events returns the receive side of the channel.
func (s *ChanSink) Events() <-chan mdflow.Event {
	return s.ch
}

// Close closes the underlying channel. Callers must stop calling Emit
// before calling Close.
func (s *ChanSink) Close() {
	close(s.ch)
}

// Emit implements Sink. It blocks until ctx is done or the channel accepts
// the event.
func (s *ChanSink) Emit(ctx context.Context, event mdflow.Event) {
	select {
	case s.ch <- event:
	case <-ctx.Done():
	}
}

// MultiSink fans an event out to every sink in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink from the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Emit implements Sink.
func (m *MultiSink) Emit(ctx context.Context, event mdflow.Event) {
	for _, sink := range m.sinks {
		sink.Emit(ctx, event)
	}
}
