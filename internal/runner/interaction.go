package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// handleInteraction validates the learner's answer against the pending
// interaction block and either records it and advances, or blocks the run
// again for a retry (§4.3 INTERACTION, steps 1-4).
func (r *Runner) handleInteraction(ctx context.Context, req RunRequest, state *State, emitter *events.Emitter) (*State, error) {
	doc, err := r.buildDocument(ctx, req)
	if err != nil {
		return nil, err
	}

	block, ok := doc.Block(state.BlockPosition)
	if !ok || block.Type != mdflow.BlockInteraction {
		return nil, ErrNoSuchBlock
	}

	row, err := r.store.FindActiveGeneratedBlock(ctx, state.ProgressRecordBID, state.BlockPosition, mdflow.GeneratedInteraction)
	if err != nil {
		return nil, fmt.Errorf("runner: load pending interaction: %w", err)
	}
	emitter.SetGeneratedBlock(row.GeneratedBlockBID)

	if value, ok := matchSystemButton(block.Interaction, req.Input.Text); ok {
		if err := r.checkSystemButton(req, value); err != nil {
			return nil, err
		}
		return r.advancePastInteraction(state), nil
	}

	if block.Interaction.Variable == "" {
		// Purely informational: any tap advances, nothing to validate.
		return r.advancePastInteraction(state), nil
	}

	values := req.Input.Normalise(block.Interaction.Variable)
	answer := strings.Join(values[block.Interaction.Variable], ",")
	if err := r.persistAnswer(ctx, row.GeneratedBlockBID, answer); err != nil {
		return nil, err
	}

	question := block.Interaction.Question
	if question == "" {
		question = block.Content
	}

	feedback, err := r.risk.Check(ctx, question, answer)
	if err != nil {
		return nil, fmt.Errorf("runner: risk check: %w", err)
	}
	var flagged bool
	for chunk := range feedback {
		flagged = true
		emitter.Content(ctx, chunk)
	}
	if flagged {
		emitter.Break(ctx)
		emitter.Interaction(ctx, block.Content)
		state.RunType = RunInput
		state.CanContinue = false
		return state, nil
	}

	result, err := doc.Complete(ctx, state.BlockPosition, values)
	if err != nil {
		return nil, fmt.Errorf("runner: complete interaction: %w", err)
	}
	if len(result.Variables) == 0 {
		return r.rejectAnswer(ctx, req, state, emitter, row, block, result.Message)
	}

	for name, value := range result.Variables {
		if err := r.profiles.Set(ctx, req.UserBID, req.ShifuBID, name, value); err != nil {
			return nil, fmt.Errorf("runner: persist variable: %w", err)
		}
		emitter.VariableUpdate(ctx, name, value)
	}
	return r.advancePastInteraction(state), nil
}

func matchSystemButton(interaction *mdflow.Interaction, input string) (string, bool) {
	if input == "" {
		return "", false
	}
	for _, b := range interaction.Buttons {
		if b.IsSystem() && b.Value == input {
			return b.Value, true
		}
	}
	return "", false
}

func (r *Runner) checkSystemButton(req RunRequest, value string) error {
	switch value {
	case "_sys_pay":
		if !req.Auth.Paid {
			return &PaidException{ShifuBID: req.ShifuBID}
		}
	case "_sys_login":
		if !req.Auth.Mobile {
			return &UserNotLoginException{UserBID: req.UserBID}
		}
	}
	return nil
}

func (r *Runner) advancePastInteraction(state *State) *State {
	state.BlockPosition++
	state.RunType = RunOutput
	state.CanContinue = true
	return state
}

func (r *Runner) persistAnswer(ctx context.Context, generatedBlockBID, answer string) error {
	if err := r.store.UpdateGeneratedBlock(ctx, generatedBlockBID, mdflow.RoleStudent, answer); err != nil {
		return fmt.Errorf("runner: persist answer: %w", err)
	}
	return nil
}

// rejectAnswer handles a failed variable-extraction attempt (§4.3.3d): the
// rejected interaction row is retired, an ERROR_MESSAGE block explains why,
// and a fresh interaction row re-asks the same question.
func (r *Runner) rejectAnswer(ctx context.Context, req RunRequest, state *State, emitter *events.Emitter, row *mdflow.LearnGeneratedBlock, block mdflow.Block, message string) (*State, error) {
	if err := r.store.MarkGeneratedBlocksObsolete(ctx, state.ProgressRecordBID, state.BlockPosition, row.ID); err != nil {
		return nil, fmt.Errorf("runner: obsolete rejected interaction: %w", err)
	}

	if message == "" {
		message = "That answer doesn't look right, try again."
	}
	if _, err := r.store.AppendGeneratedBlock(ctx, &mdflow.LearnGeneratedBlock{
		ProgressRecordBID: state.ProgressRecordBID,
		UserBID:           req.UserBID,
		ShifuBID:          req.ShifuBID,
		OutlineItemBID:    req.OutlineItemBID,
		Type:              mdflow.GeneratedError,
		Role:              mdflow.RoleTeacher,
		Position:          state.BlockPosition,
		GeneratedContent:  message,
		Status:            1,
	}); err != nil {
		return nil, fmt.Errorf("runner: persist error message: %w", err)
	}
	emitter.Content(ctx, message)
	emitter.Break(ctx)

	bid, err := r.store.AppendGeneratedBlock(ctx, &mdflow.LearnGeneratedBlock{
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
	if err != nil {
		return nil, fmt.Errorf("runner: re-persist interaction: %w", err)
	}
	emitter.SetGeneratedBlock(bid)
	emitter.Interaction(ctx, block.Content)

	state.RunType = RunInput
	state.CanContinue = false
	return state, nil
}
