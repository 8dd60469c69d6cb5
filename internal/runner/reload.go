package runner

import (
	"context"
	"fmt"
)

// reload implements the reload contract (§4.6). A non-ask reload rewinds
// the run to an earlier generated block: every generated row at or after
// the target's (id, position) is retired and the progress cursor resets to
// the target's position, so the next step regenerates from there. An ask
// reload leaves generated rows untouched and only restores LastPosition,
// since ask answers live alongside the structured run rather than in it.
func (r *Runner) reload(ctx context.Context, req RunRequest) error {
	progress, err := r.store.FindActiveProgress(ctx, req.UserBID, req.OutlineItemBID)
	if err != nil {
		return fmt.Errorf("runner: load progress for reload: %w", err)
	}

	target, err := r.store.FindGeneratedBlockByBID(ctx, req.ReloadTargetBID)
	if err != nil {
		return fmt.Errorf("runner: load reload target: %w", err)
	}
	if target.ProgressRecordBID != progress.ProgressRecordBID {
		return fmt.Errorf("runner: reload target belongs to a different progress record")
	}

	if req.InputType == InputAsk {
		return nil
	}

	if err := r.store.MarkGeneratedBlocksObsolete(ctx, progress.ProgressRecordBID, target.Position, target.ID); err != nil {
		return fmt.Errorf("runner: obsolete rows past reload target: %w", err)
	}
	if err := r.store.SetBlockPosition(ctx, progress.ProgressRecordBID, target.Position); err != nil {
		return fmt.Errorf("runner: reset block position for reload: %w", err)
	}
	return nil
}
