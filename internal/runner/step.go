package runner

import (
	"context"

	"github.com/haasonsaas/mdflow-engine/internal/events"
)

// step advances at most one block (or, when the leaf just completed, one
// outline-boundary batch) and returns the resulting State. It never loops:
// Run's run_script wrapper is responsible for repeated calls.
func (r *Runner) step(ctx context.Context, req RunRequest, state *State, emitter *events.Emitter) (*State, error) {
	if state.InputType == InputAsk {
		return r.handleAsk(ctx, req, state, emitter)
	}
	if state.RunType == RunInput {
		return r.handleInteraction(ctx, req, state, emitter)
	}
	return r.handleContent(ctx, req, state, emitter)
}
