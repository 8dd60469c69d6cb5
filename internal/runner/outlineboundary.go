package runner

import (
	"context"
	"fmt"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/internal/outline"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// nextChapterVariable is the system button value the client recognises as
// "advance into the next chapter" rather than a learner-declared variable.
const nextChapterButtonValue = "_sys_next_chapter"

// enterLeafIfNeeded asks the Outline Walker (C4) whether entering
// req.OutlineItemBID crosses a NOT_STARTED boundary and, if so, persists and
// emits the resulting NODE_START/LEAF_START transitions (§4.4).
func (r *Runner) enterLeafIfNeeded(ctx context.Context, req RunRequest, emitter *events.Emitter) error {
	tree, err := r.store.GetStruct(ctx, req.ShifuBID, req.PreviewMode)
	if err != nil {
		return fmt.Errorf("runner: load struct tree: %w", err)
	}

	bids := append(outline.AncestorBIDs(tree, req.OutlineItemBID), req.OutlineItemBID)
	progressByOutline, err := r.store.FindProgressByOutlines(ctx, req.UserBID, bids)
	if err != nil {
		return fmt.Errorf("runner: load ancestor progress: %w", err)
	}

	updates := outline.EnterLeaf(tree, progressByOutline, req.OutlineItemBID)
	return r.applyOutlineUpdates(ctx, req, updates, emitter, false)
}

// advanceOutlineOnCompletion is called once a leaf's last block has
// executed: it climbs the outline tree, completing the leaf and any
// ancestor whose last child just finished, entering the next sibling chain
// when one exists. A transition that closes out a whole chapter (a
// NodeCompleted alongside the auto-entered next leaf) gets a synthetic
// "next chapter" interaction persisted on the new leaf instead of silently
// continuing into it, so the learner explicitly opts into the next section.
func (r *Runner) advanceOutlineOnCompletion(ctx context.Context, req RunRequest, emitter *events.Emitter) error {
	tree, err := r.store.GetStruct(ctx, req.ShifuBID, req.PreviewMode)
	if err != nil {
		return fmt.Errorf("runner: load struct tree: %w", err)
	}

	updates := outline.AdvanceOnCompletion(tree, req.OutlineItemBID)
	if err := r.applyOutlineUpdates(ctx, req, updates, emitter, false); err != nil {
		return err
	}
	return r.maybeInsertNextChapterPrompt(ctx, req, updates)
}

func (r *Runner) applyOutlineUpdates(ctx context.Context, req RunRequest, updates []outline.Update, emitter *events.Emitter, _ bool) error {
	for _, u := range updates {
		status := mdflow.StatusInProgress
		resetPosition := false
		switch u.Kind {
		case outline.NodeStart, outline.LeafStart:
			status = mdflow.StatusInProgress
			resetPosition = true
		case outline.NodeCompleted, outline.LeafCompleted:
			status = mdflow.StatusCompleted
		}

		if err := r.store.UpsertProgress(ctx, req.UserBID, req.ShifuBID, u.OutlineBID, status, resetPosition); err != nil {
			return fmt.Errorf("runner: upsert outline progress: %w", err)
		}

		emitter.OutlineItemUpdate(ctx, mdflow.OutlineItemUpdatePayload{
			OutlineBID:  u.OutlineBID,
			Title:       u.Title,
			Status:      status,
			HasChildren: u.HasChildren,
		})
	}
	return nil
}

// maybeInsertNextChapterPrompt detects a chapter-level transition (a
// NodeCompleted present alongside an auto-entered LeafStart in the same
// batch) and, if the new leaf has no pending interaction yet, persists a
// synthetic one-button prompt as its first generated block.
func (r *Runner) maybeInsertNextChapterPrompt(ctx context.Context, req RunRequest, updates []outline.Update) error {
	var closedChapter bool
	var newLeaf *outline.Update
	for i := range updates {
		u := &updates[i]
		if u.Kind == outline.NodeCompleted {
			closedChapter = true
		}
		if u.Kind == outline.LeafStart {
			newLeaf = u
		}
	}
	if !closedChapter || newLeaf == nil {
		return nil
	}

	progress, err := r.store.FindActiveProgress(ctx, req.UserBID, newLeaf.OutlineBID)
	if err != nil {
		return fmt.Errorf("runner: load new leaf progress: %w", err)
	}

	_, err = r.store.FindActiveGeneratedBlock(ctx, progress.ProgressRecordBID, 0, mdflow.GeneratedInteraction)
	if err == nil {
		return nil // already persisted, nothing to do
	}
	if err != outline.ErrNotFound {
		return fmt.Errorf("runner: check existing next-chapter prompt: %w", err)
	}

	content := fmt.Sprintf("?[%s//%s](%s)", newLeaf.Title, nextChapterButtonValue, newLeaf.Title)
	_, err = r.store.AppendGeneratedBlock(ctx, &mdflow.LearnGeneratedBlock{
		ProgressRecordBID: progress.ProgressRecordBID,
		UserBID:           req.UserBID,
		ShifuBID:          req.ShifuBID,
		OutlineItemBID:    newLeaf.OutlineBID,
		Type:              mdflow.GeneratedInteraction,
		Role:              mdflow.RoleTeacher,
		Position:          0,
		GeneratedContent:  content,
		Status:            1,
	})
	if err != nil {
		return fmt.Errorf("runner: persist next-chapter prompt: %w", err)
	}
	return nil
}
