package events

import (
	"context"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// Emitter builds and dispatches mdflow.Event frames for one run, stamping
// every event with the outline/generated-block identity currently active
// on the Block Runner.
type Emitter struct {
	outlineBID        string
	generatedBlockBID string
	sink              Sink
}

// NewEmitter creates an emitter for the given outline, dispatching to sink.
// A nil sink is replaced with NopSink.
func NewEmitter(outlineBID string, sink Sink) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Emitter{outlineBID: outlineBID, sink: sink}
}

// SetGeneratedBlock updates the generated-block id stamped on subsequent
// events. The Block Runner calls this once per generated block, before
// streaming its content.
func (e *Emitter) SetGeneratedBlock(generatedBlockBID string) {
	e.generatedBlockBID = generatedBlockBID
}

func (e *Emitter) base(eventType mdflow.EventType) mdflow.Event {
	return mdflow.Event{
		OutlineBID:        e.outlineBID,
		GeneratedBlockBID: e.generatedBlockBID,
		Type:              eventType,
	}
}

func (e *Emitter) emit(ctx context.Context, event mdflow.Event) mdflow.Event {
	e.sink.Emit(ctx, event)
	return event
}

// Content emits a streamed text chunk.
func (e *Emitter) Content(ctx context.Context, text string) mdflow.Event {
	event := e.base(mdflow.EventContent)
	event.Content = text
	return e.emit(ctx, event)
}

// Break emits a section-break marker (the `===` divider crossed during
// replay or generation).
func (e *Emitter) Break(ctx context.Context) mdflow.Event {
	return e.emit(ctx, e.base(mdflow.EventBreak))
}

// Interaction emits the verbatim interaction source the client must render
// as an input control.
func (e *Emitter) Interaction(ctx context.Context, source string) mdflow.Event {
	event := e.base(mdflow.EventInteraction)
	event.Content = source
	return e.emit(ctx, event)
}

// VariableUpdate emits a variable assignment resulting from user input.
func (e *Emitter) VariableUpdate(ctx context.Context, name, value string) mdflow.Event {
	event := e.base(mdflow.EventVariableUpdate)
	event.Variable = &mdflow.VariableUpdatePayload{VariableName: name, VariableValue: value}
	return e.emit(ctx, event)
}

// OutlineItemUpdate emits an outline-tree progress change (Outline Walker
// transition).
func (e *Emitter) OutlineItemUpdate(ctx context.Context, payload mdflow.OutlineItemUpdatePayload) mdflow.Event {
	event := e.base(mdflow.EventOutlineItemUpdate)
	event.Outline = &payload
	return e.emit(ctx, event)
}

// NewSlide emits a visual-alignment hint ahead of the audio part it
// accompanies.
func (e *Emitter) NewSlide(ctx context.Context, payload mdflow.NewSlidePayload) mdflow.Event {
	event := e.base(mdflow.EventNewSlide)
	event.Slide = &payload
	return e.emit(ctx, event)
}

// AudioSegment emits one synthesized TTS segment in playback order.
func (e *Emitter) AudioSegment(ctx context.Context, payload mdflow.AudioSegmentPayload) mdflow.Event {
	event := e.base(mdflow.EventAudioSegment)
	event.Segment = &payload
	return e.emit(ctx, event)
}

// AudioComplete emits the finalized, uploaded audio object for one part.
func (e *Emitter) AudioComplete(ctx context.Context, payload mdflow.AudioCompletePayload) mdflow.Event {
	event := e.base(mdflow.EventAudioComplete)
	event.Audio = &payload
	return e.emit(ctx, event)
}

// Done emits the terminal event marking the end of the stream.
func (e *Emitter) Done(ctx context.Context) mdflow.Event {
	return e.emit(ctx, e.base(mdflow.EventDone))
}

// Error emits a terminating error frame (§7 propagation policy: an error
// that isn't a PaidException/UserNotLoginException becomes a `type:
// "error"` frame rather than an INTERACTION). Callers must still emit Done
// afterward — no error frame implicitly ends the stream.
func (e *Emitter) Error(ctx context.Context, message string) mdflow.Event {
	event := e.base(mdflow.EventError)
	event.Content = message
	return e.emit(ctx, event)
}
