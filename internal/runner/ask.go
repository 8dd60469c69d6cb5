package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/internal/llm"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// handleAsk answers a learner's free-form question without advancing the
// structured block cursor (§4.3 ask). The first ask call against a leaf
// records LastPosition so a later reload can restore the learner to where
// they asked from; subsequent asks within the same visit reuse it.
func (r *Runner) handleAsk(ctx context.Context, req RunRequest, state *State, emitter *events.Emitter) (*State, error) {
	if state.LastPosition == 0 {
		state.LastPosition = state.BlockPosition
	}

	settings, err := r.resolveLLMSettings(ctx, req.ShifuBID, req.OutlineItemBID, req.PreviewMode)
	if err != nil {
		return nil, fmt.Errorf("runner: resolve llm settings: %w", err)
	}
	prompt, err := r.resolveDocumentPrompt(ctx, req.ShifuBID, req.OutlineItemBID, req.PreviewMode)
	if err != nil {
		return nil, fmt.Errorf("runner: resolve document prompt: %w", err)
	}

	question := req.Input.Text
	if question == "" {
		for _, values := range req.Input.Values {
			if len(values) > 0 {
				question = values[0]
				break
			}
		}
	}

	stream, err := r.registry.Stream(ctx, &llm.CompletionRequest{
		Model:       settings.Model,
		System:      prompt,
		Temperature: settings.Temperature,
		Messages:    []llm.CompletionMessage{{Role: "user", Content: question}},
	})
	if err != nil {
		return nil, fmt.Errorf("runner: ask stream: %w", err)
	}

	var answer strings.Builder
	for chunk := range stream {
		if chunk.Error != nil {
			return nil, fmt.Errorf("runner: ask stream: %w", chunk.Error)
		}
		if chunk.Text != "" {
			answer.WriteString(chunk.Text)
			emitter.Content(ctx, chunk.Text)
		}
	}
	emitter.Break(ctx)

	if _, err := r.store.AppendGeneratedBlock(ctx, &mdflow.LearnGeneratedBlock{
		ProgressRecordBID: state.ProgressRecordBID,
		UserBID:           req.UserBID,
		ShifuBID:          req.ShifuBID,
		OutlineItemBID:    req.OutlineItemBID,
		Type:              mdflow.GeneratedAsk,
		Role:              mdflow.RoleStudent,
		Position:          state.LastPosition,
		GeneratedContent:  question,
		Status:            1,
	}); err != nil {
		return nil, fmt.Errorf("runner: persist ask question: %w", err)
	}
	if _, err := r.store.AppendGeneratedBlock(ctx, &mdflow.LearnGeneratedBlock{
		ProgressRecordBID: state.ProgressRecordBID,
		UserBID:           req.UserBID,
		ShifuBID:          req.ShifuBID,
		OutlineItemBID:    req.OutlineItemBID,
		Type:              mdflow.GeneratedAnswer,
		Role:              mdflow.RoleTeacher,
		Position:          state.LastPosition,
		GeneratedContent:  answer.String(),
		Status:            1,
	}); err != nil {
		return nil, fmt.Errorf("runner: persist ask answer: %w", err)
	}

	state.CanContinue = false
	return state, nil
}
