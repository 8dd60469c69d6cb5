package events

import (
	"context"
	"testing"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

func TestEmitterStampsOutlineAndBlockIDs(t *testing.T) {
	sink := NewChanSink(4)
	e := NewEmitter("outline-1", sink)
	e.SetGeneratedBlock("block-1")

	ctx := context.Background()
	e.Content(ctx, "hello")
	e.Done(ctx)
	sink.Close()

	var got []mdflow.Event
	for ev := range sink.Events() {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].OutlineBID != "outline-1" || got[0].GeneratedBlockBID != "block-1" {
		t.Fatalf("unexpected stamping: %+v", got[0])
	}
	if got[0].Type != mdflow.EventContent || got[0].Content != "hello" {
		t.Fatalf("unexpected content event: %+v", got[0])
	}
	if got[1].Type != mdflow.EventDone {
		t.Fatalf("expected terminal done event, got %+v", got[1])
	}
}

func TestEmitterVariableUpdatePayload(t *testing.T) {
	sink := NewChanSink(1)
	e := NewEmitter("outline-1", sink)
	e.VariableUpdate(context.Background(), "name", "Alice")
	sink.Close()

	ev := <-sink.Events()
	if ev.Variable == nil {
		t.Fatal("expected variable payload")
	}
	if ev.Variable.VariableName != "name" || ev.Variable.VariableValue != "Alice" {
		t.Fatalf("unexpected payload: %+v", ev.Variable)
	}
}

func TestEmitterErrorFrame(t *testing.T) {
	sink := NewChanSink(2)
	e := NewEmitter("outline-1", sink)
	e.Error(context.Background(), "runner: request failed")
	e.Done(context.Background())
	sink.Close()

	first := <-sink.Events()
	if first.Type != mdflow.EventError || first.Content != "runner: request failed" {
		t.Fatalf("unexpected error event: %+v", first)
	}
	second := <-sink.Events()
	if second.Type != mdflow.EventDone {
		t.Fatalf("expected done after error, got %+v", second)
	}
}

func TestMultiSinkFansOutToAllSinks(t *testing.T) {
	a := NewChanSink(1)
	b := NewChanSink(1)
	multi := NewMultiSink(a, b)

	e := NewEmitter("outline-1", multi)
	e.Done(context.Background())

	evA := <-a.Events()
	evB := <-b.Events()
	if evA.Type != mdflow.EventDone || evB.Type != mdflow.EventDone {
		t.Fatalf("expected both sinks to receive the done event: %+v %+v", evA, evB)
	}
}
