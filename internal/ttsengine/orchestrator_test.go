package ttsengine

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

type fakeSynth struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (SynthResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	shouldFail := f.fail != nil && f.fail[text]
	f.mu.Unlock()
	if shouldFail {
		return SynthResult{}, context.Canceled
	}
	return SynthResult{Audio: []byte("audio:" + text), Format: "mp3"}, nil
}

type fakeUploader struct {
	uploaded map[string][]byte
}

func (f *fakeUploader) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if f.uploaded == nil {
		f.uploaded = make(map[string][]byte)
	}
	f.uploaded[key] = data
	return "https://cdn.example.com/" + key, nil
}

type fakeStore struct {
	rows []*mdflow.LearnGeneratedAudio
}

func (f *fakeStore) InsertGeneratedAudio(ctx context.Context, audio *mdflow.LearnGeneratedAudio) error {
	f.rows = append(f.rows, audio)
	return nil
}

func newTestOrchestrator(synth *fakeSynth, uploader Uploader, store AudioStore) (*Orchestrator, *events.ChanSink) {
	sink := events.NewChanSink(64)
	emitter := events.NewEmitter("outline-1", sink)
	emitter.SetGeneratedBlock("block-1")
	orch := New(DefaultConfig(), NewWorkerPool(4), synth, uploader, store, nil, emitter, RequestIdentity{
		UserBID: "user-1", ShifuBID: "shifu-1", GeneratedBlockBID: "block-1", Scene: mdflow.SceneProduction,
	})
	return orch, sink
}

func drainEvents(sink *events.ChanSink) []mdflow.Event {
	sink.Close()
	var out []mdflow.Event
	for ev := range sink.Events() {
		out = append(out, ev)
	}
	return out
}

func TestOrchestratorSingleSentenceSegment(t *testing.T) {
	synth := &fakeSynth{}
	store := &fakeStore{}
	orch, sink := newTestOrchestrator(synth, &fakeUploader{}, store)
	ctx := context.Background()

	orch.Feed(ctx, "Hello world.")
	if err := orch.Finalize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	evs := drainEvents(sink)
	var sawSegment, sawComplete bool
	for _, ev := range evs {
		if ev.Type == mdflow.EventAudioSegment {
			sawSegment = true
			if !ev.Segment.IsFinal {
				t.Fatalf("expected sole segment to be final: %+v", ev.Segment)
			}
		}
		if ev.Type == mdflow.EventAudioComplete {
			sawComplete = true
			if ev.Audio.Position != 0 {
				t.Fatalf("expected position 0, got %d", ev.Audio.Position)
			}
		}
	}
	if !sawSegment || !sawComplete {
		t.Fatalf("expected both AUDIO_SEGMENT and AUDIO_COMPLETE, got %+v", evs)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected 1 persisted audio row, got %d", len(store.rows))
	}
}

func TestOrchestratorSplitsAtVisualBoundary(t *testing.T) {
	synth := &fakeSynth{}
	store := &fakeStore{}
	orch, sink := newTestOrchestrator(synth, &fakeUploader{}, store)
	ctx := context.Background()

	orch.Feed(ctx, "Before. <svg><text>v</text></svg> After there.")
	if err := orch.Finalize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	evs := drainEvents(sink)
	var slideCount, completeCount int
	var positions []int
	for _, ev := range evs {
		switch ev.Type {
		case mdflow.EventNewSlide:
			slideCount++
		case mdflow.EventAudioComplete:
			completeCount++
			positions = append(positions, ev.Audio.Position)
		}
	}
	if slideCount != 1 {
		t.Fatalf("expected 1 NEW_SLIDE event, got %d", slideCount)
	}
	if completeCount != 2 {
		t.Fatalf("expected 2 AUDIO_COMPLETE events (one per side of the visual), got %d: %+v", completeCount, positions)
	}
	if positions[0] != 0 || positions[1] != 1 {
		t.Fatalf("expected ascending positions 0,1, got %v", positions)
	}
}

func TestOrchestratorDropsEmptyPartSilently(t *testing.T) {
	synth := &fakeSynth{fail: map[string]bool{}}
	store := &fakeStore{}
	orch, sink := newTestOrchestrator(synth, &fakeUploader{}, store)
	ctx := context.Background()

	// A single-character tail after preprocessing never reaches the
	// 2-char minimum, so no segment is ever submitted for this part.
	orch.Feed(ctx, "A")
	if err := orch.Finalize(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	evs := drainEvents(sink)
	for _, ev := range evs {
		if ev.Type == mdflow.EventAudioComplete {
			t.Fatalf("expected no AUDIO_COMPLETE for a dropped empty part, got %+v", ev)
		}
	}
	if len(store.rows) != 0 {
		t.Fatalf("expected no persisted rows for a dropped part, got %d", len(store.rows))
	}
}

func TestOrchestratorFinalizePreviewSkipsUploadAndStore(t *testing.T) {
	synth := &fakeSynth{}
	uploader := &fakeUploader{}
	store := &fakeStore{}
	orch, sink := newTestOrchestrator(synth, uploader, store)
	ctx := context.Background()

	orch.Feed(ctx, "Hello preview world.")
	if err := orch.FinalizePreview(ctx); err != nil {
		t.Fatalf("finalize preview: %v", err)
	}

	evs := drainEvents(sink)
	found := false
	for _, ev := range evs {
		if ev.Type == mdflow.EventAudioComplete {
			found = true
			if ev.Audio.AudioURL != "" {
				t.Fatalf("expected empty audio_url in preview mode, got %q", ev.Audio.AudioURL)
			}
			if ev.Audio.AudioBID == "" {
				t.Fatal("expected a non-empty audio_bid even in preview mode")
			}
		}
	}
	if !found {
		t.Fatal("expected an AUDIO_COMPLETE event")
	}
	if len(uploader.uploaded) != 0 {
		t.Fatalf("expected no uploads in preview mode, got %d", len(uploader.uploaded))
	}
	if len(store.rows) != 0 {
		t.Fatalf("expected no persisted rows in preview mode, got %d", len(store.rows))
	}
}

func TestEarliestAndLastTerminatorCut(t *testing.T) {
	if cut := earliestTerminatorCut("no terminator here"); cut != -1 {
		t.Fatalf("expected -1, got %d", cut)
	}
	s := "Hi. More words without a stop"
	cut := earliestTerminatorCut(s)
	if s[:cut] != "Hi." {
		t.Fatalf("unexpected earliest cut: %q", s[:cut])
	}
	s2 := "One. Two. Three"
	last := lastTerminatorCut(s2)
	if !strings.HasSuffix(s2[:last], "Two.") {
		t.Fatalf("unexpected last cut: %q", s2[:last])
	}
}
