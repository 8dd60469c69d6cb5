package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/internal/markdownflow"
	"github.com/haasonsaas/mdflow-engine/internal/outline"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// handleContent advances one OUTPUT step: it resolves the ancestor-chain
// LLM settings and system prompt, builds the bound MarkdownFlow document,
// and either streams a CONTENT block or surfaces the next INTERACTION block
// for the learner to answer (§4.3 CONTENT).
func (r *Runner) handleContent(ctx context.Context, req RunRequest, state *State, emitter *events.Emitter) (*State, error) {
	doc, err := r.buildDocument(ctx, req)
	if err != nil {
		return nil, err
	}

	block, ok := doc.Block(state.BlockPosition)
	if !ok {
		if err := r.advanceOutlineOnCompletion(ctx, req, emitter); err != nil {
			return nil, err
		}
		state.CanContinue = false
		return state, nil
	}

	if block.Type == mdflow.BlockInteraction {
		return r.emitInteractionBlock(ctx, req, state, emitter, block)
	}
	return r.streamContentBlock(ctx, req, state, emitter, doc, block)
}

// buildDocument resolves the ancestor-chain LLM settings/system prompt and
// parses the outline leaf's raw MarkdownFlow document against them.
func (r *Runner) buildDocument(ctx context.Context, req RunRequest) (*markdownflow.Document, error) {
	item, err := r.store.GetOutlineWithMdflow(ctx, req.OutlineItemBID, req.PreviewMode)
	if err != nil {
		return nil, fmt.Errorf("runner: load outline mdflow: %w", err)
	}

	settings, err := r.resolveLLMSettings(ctx, req.ShifuBID, req.OutlineItemBID, req.PreviewMode)
	if err != nil {
		return nil, fmt.Errorf("runner: resolve llm settings: %w", err)
	}
	prompt, err := r.resolveDocumentPrompt(ctx, req.ShifuBID, req.OutlineItemBID, req.PreviewMode)
	if err != nil {
		return nil, fmt.Errorf("runner: resolve document prompt: %w", err)
	}

	return markdownflow.NewDocument(item.Mdflow, prompt, settings, r.registry), nil
}

// emitInteractionBlock persists (if not already persisted) the active
// interaction row for this position and emits its source to the learner,
// then blocks the run awaiting their answer.
func (r *Runner) emitInteractionBlock(ctx context.Context, req RunRequest, state *State, emitter *events.Emitter, block mdflow.Block) (*State, error) {
	row, err := r.store.FindActiveGeneratedBlock(ctx, state.ProgressRecordBID, state.BlockPosition, mdflow.GeneratedInteraction)
	switch {
	case err == nil:
		// already persisted (e.g. a prior run reached this block but the
		// learner has not answered yet); re-emit verbatim.
	case err == outline.ErrNotFound:
		bid, appendErr := r.store.AppendGeneratedBlock(ctx, &mdflow.LearnGeneratedBlock{
			ProgressRecordBID: state.ProgressRecordBID,
			UserBID:           req.UserBID,
			ShifuBID:          req.ShifuBID,
			OutlineItemBID:    req.OutlineItemBID,
			Type:              mdflow.GeneratedInteraction,
			Role:              mdflow.RoleTeacher,
			Position:          state.BlockPosition,
			GeneratedContent:  block.Content,
			Status:            1,
		})
		if appendErr != nil {
			return nil, fmt.Errorf("runner: persist interaction block: %w", appendErr)
		}
		row = &mdflow.LearnGeneratedBlock{GeneratedBlockBID: bid, GeneratedContent: block.Content}
	default:
		return nil, fmt.Errorf("runner: load pending interaction: %w", err)
	}

	emitter.SetGeneratedBlock(row.GeneratedBlockBID)
	emitter.Interaction(ctx, block.Content)

	state.RunType = RunInput
	state.CanContinue = false
	return state, nil
}

// streamContentBlock streams one CONTENT block's generation, persists the
// concatenated text, and advances the block cursor.
func (r *Runner) streamContentBlock(ctx context.Context, req RunRequest, state *State, emitter *events.Emitter, doc *markdownflow.Document, block mdflow.Block) (*State, error) {
	profile, err := r.profiles.GetAll(ctx, req.UserBID, req.ShifuBID)
	if err != nil {
		return nil, fmt.Errorf("runner: load learner profile: %w", err)
	}

	stream, err := doc.Stream(ctx, state.BlockPosition, profile)
	if err != nil {
		return nil, fmt.Errorf("runner: stream content block: %w", err)
	}

	var text strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return nil, fmt.Errorf("runner: content stream: %w", chunk.Err)
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			emitter.Content(ctx, chunk.Text)
		}
	}
	emitter.Break(ctx)

	bid, err := r.store.AppendGeneratedBlock(ctx, &mdflow.LearnGeneratedBlock{
		ProgressRecordBID: state.ProgressRecordBID,
		UserBID:           req.UserBID,
		ShifuBID:          req.ShifuBID,
		OutlineItemBID:    req.OutlineItemBID,
		Type:              mdflow.GeneratedContent,
		Role:              mdflow.RoleTeacher,
		Position:          state.BlockPosition,
		GeneratedContent:  text.String(),
		Status:            1,
	})
	if err != nil {
		return nil, fmt.Errorf("runner: persist content block: %w", err)
	}
	emitter.SetGeneratedBlock(bid)

	state.BlockPosition++
	state.RunType = RunOutput
	state.CanContinue = true
	return state, nil
}
