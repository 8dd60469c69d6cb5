package outline

import (
	"context"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// Store is C2's persistence surface: read access to StructTree snapshots
// and OutlineItems (owned by the authoring subsystem, external to this
// engine) plus CRUD for LearnProgressRecord/LearnGeneratedBlock, which the
// Block Runner owns exclusively for a given (user, outline) pair.
type Store interface {
	// GetStruct returns the StructTree snapshot for shifuBID, selecting the
	// draft or published variant per previewMode.
	GetStruct(ctx context.Context, shifuBID string, previewMode bool) (*mdflow.StructTree, error)

	// GetOutlineWithMdflow loads one outline item's metadata and its raw
	// MarkdownFlow document.
	GetOutlineWithMdflow(ctx context.Context, outlineItemBID string, previewMode bool) (*mdflow.OutlineItem, error)

	// GetShifu loads a Shifu's course-level metadata and default LLM/TTS
	// settings, selecting the draft or published variant per previewMode.
	GetShifu(ctx context.Context, shifuBID string, previewMode bool) (*mdflow.Shifu, error)

	// FindActiveProgress returns the most recently inserted non-RESET
	// progress record for (userBID, outlineItemBID), or ErrNoActiveProgress.
	FindActiveProgress(ctx context.Context, userBID, outlineItemBID string) (*mdflow.LearnProgressRecord, error)

	// FindProgressByOutlines returns the active progress record (if any)
	// for each outline in outlineItemBIDs, keyed by outline bid. Missing
	// entries mean no active record exists.
	FindProgressByOutlines(ctx context.Context, userBID string, outlineItemBIDs []string) (map[string]*mdflow.LearnProgressRecord, error)

	// EnsureProgressChain creates NOT_STARTED progress rows for every
	// ancestor (root to outlineItemBID inclusive) that lacks one. It is a
	// side-effect-only operation.
	EnsureProgressChain(ctx context.Context, userBID, shifuBID, outlineItemBID string) error

	// UpsertProgress applies an outline-boundary mutation: ensures a
	// progress row exists for outlineItemBID and sets its status (and, for
	// LEAF_START/NODE_START, resets block_position to 0).
	UpsertProgress(ctx context.Context, userBID, shifuBID, outlineItemBID string, status mdflow.ProgressStatus, resetPosition bool) error

	// SetBlockPosition advances a progress record's cursor.
	SetBlockPosition(ctx context.Context, progressRecordBID string, position int) error

	// AppendGeneratedBlock inserts a new LearnGeneratedBlock row and
	// returns its assigned bid.
	AppendGeneratedBlock(ctx context.Context, block *mdflow.LearnGeneratedBlock) (string, error)

	// UpdateGeneratedBlock overwrites the mutable fields of an existing
	// active generated block row (used when a learner's answer is
	// persisted onto the pending interaction row).
	UpdateGeneratedBlock(ctx context.Context, generatedBlockBID string, role mdflow.GeneratedBlockRole, generatedContent string) error

	// FindActiveGeneratedBlock returns the active (status=1, not deleted)
	// row for (progressRecordBID, position, blockType), or ErrNotFound.
	FindActiveGeneratedBlock(ctx context.Context, progressRecordBID string, position int, blockType mdflow.GeneratedBlockType) (*mdflow.LearnGeneratedBlock, error)

	// FindGeneratedBlockByBID loads one generated block row regardless of
	// status, used by the reload contract to resolve a reload target.
	FindGeneratedBlockByBID(ctx context.Context, generatedBlockBID string) (*mdflow.LearnGeneratedBlock, error)

	// MarkGeneratedBlocksObsolete sets status=0 on all active rows with
	// position >= fromPosition and id >= anchorID within progressRecordBID.
	MarkGeneratedBlocksObsolete(ctx context.Context, progressRecordBID string, fromPosition int, anchorID int64) error

	// SetGeneratedBlockLiked records a learner's reaction to a generated
	// block (§6.1 POST .../generated-contents/{bid}/{action}). liked is
	// -1 (dislike), 0 (none/clear), or 1 (like).
	SetGeneratedBlockLiked(ctx context.Context, generatedBlockBID string, liked int) error

	// ListGeneratedBlocks returns every non-deleted generated block for
	// progressRecordBID in position order (§6.1 GET .../records/{outline_bid}).
	ListGeneratedBlocks(ctx context.Context, progressRecordBID string) ([]*mdflow.LearnGeneratedBlock, error)
}
