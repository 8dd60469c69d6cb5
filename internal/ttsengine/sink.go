package ttsengine

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/internal/ttsprep"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// FeedingSink wraps a downstream events.Sink and drives one Orchestrator
// per generated block (§4.7: the orchestrator "accepts a stream of text
// chunks belonging to one generated block"). A run_script call can advance
// through several blocks before blocking on input, so the sink builds a
// fresh Orchestrator each time the active generated_block_bid changes and
// finalizes the previous one. Each orchestrator emits its own
// audio_segment/audio_complete/new_slide frames through the *events.Emitter
// it was built with, so this sink only needs to forward the Block Runner's
// own content/break/interaction/done/error frames unchanged.
type FeedingSink struct {
	downstream events.Sink
	newOrch    func(generatedBlockBID string) *Orchestrator
	preview    bool

	current    *Orchestrator
	currentBID string
}

// NewFeedingSink wraps downstream. newOrch builds an Orchestrator bound to
// one generated block id (its RequestIdentity.GeneratedBlockBID); preview
// selects FinalizePreview over Finalize for every block in this stream.
func NewFeedingSink(downstream events.Sink, preview bool, newOrch func(generatedBlockBID string) *Orchestrator) *FeedingSink {
	return &FeedingSink{downstream: downstream, newOrch: newOrch, preview: preview}
}

// Emit implements events.Sink.
func (s *FeedingSink) Emit(ctx context.Context, event mdflow.Event) {
	s.downstream.Emit(ctx, event)

	switch event.Type {
	case mdflow.EventContent:
		if s.current == nil || event.GeneratedBlockBID != s.currentBID {
			s.finalizeCurrent(ctx)
			s.current = s.newOrch(event.GeneratedBlockBID)
			s.currentBID = event.GeneratedBlockBID
		}
		s.current.Feed(ctx, ttsprep.PreprocessForTTS(event.Content))
	case mdflow.EventInteraction, mdflow.EventDone, mdflow.EventError:
		s.finalizeCurrent(ctx)
	}
}

func (s *FeedingSink) finalizeCurrent(ctx context.Context) {
	if s.current == nil {
		return
	}
	orch := s.current
	s.current, s.currentBID = nil, ""

	var err error
	if s.preview {
		err = orch.FinalizePreview(ctx)
	} else {
		err = orch.Finalize(ctx)
	}
	if err != nil {
		if orch.logger != nil {
			orch.logger.Error(ctx, "tts finalize failed", "error", err)
		} else {
			slog.Default().Error("tts finalize failed", "error", err)
		}
	}
}
