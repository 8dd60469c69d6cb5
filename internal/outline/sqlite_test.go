package outline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(":memory:")
	if err != nil {
		if strings.Contains(err.Error(), "unknown driver") {
			t.Skip("sqlite driver not available")
		}
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTestCourse(t *testing.T, store *SQLiteStore) {
	t.Helper()
	shifu := &mdflow.Shifu{ShifuBID: "shifu-1", Title: "Test course"}
	leaf := &mdflow.OutlineItem{
		OutlineItemBID: "outline-1",
		ShifuBID:       "shifu-1",
		Position:       "1",
		Title:          "Leaf",
		Mdflow:         "Hello.\n?[%{{answer}}...how are you?]",
	}
	tree := &mdflow.StructTree{
		ShifuBID: "shifu-1",
		Root: &mdflow.StructNode{
			BID:  "shifu-1",
			Type: mdflow.StructShifu,
			Children: []*mdflow.StructNode{
				{BID: "outline-1", Type: mdflow.StructOutline, Title: "Leaf"},
			},
		},
	}
	if err := store.SeedContent(context.Background(), false, shifu, []*mdflow.OutlineItem{leaf}, tree); err != nil {
		t.Fatalf("SeedContent: %v", err)
	}
}

func TestSQLiteStoreGetShifuAndOutline(t *testing.T) {
	store := newTestSQLiteStore(t)
	seedTestCourse(t, store)
	ctx := context.Background()

	shifu, err := store.GetShifu(ctx, "shifu-1", false)
	if err != nil {
		t.Fatalf("GetShifu: %v", err)
	}
	if shifu.Title != "Test course" {
		t.Fatalf("unexpected shifu: %+v", shifu)
	}

	item, err := store.GetOutlineWithMdflow(ctx, "outline-1", false)
	if err != nil {
		t.Fatalf("GetOutlineWithMdflow: %v", err)
	}
	if item.Position != "1" {
		t.Fatalf("unexpected outline item: %+v", item)
	}

	if _, err := store.GetShifu(ctx, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStoreProgressLifecycle(t *testing.T) {
	store := newTestSQLiteStore(t)
	seedTestCourse(t, store)
	ctx := context.Background()

	if err := store.EnsureProgressChain(ctx, "user-1", "shifu-1", "outline-1"); err != nil {
		t.Fatalf("EnsureProgressChain: %v", err)
	}

	progress, err := store.FindActiveProgress(ctx, "user-1", "outline-1")
	if err != nil {
		t.Fatalf("FindActiveProgress: %v", err)
	}
	if progress.Status != mdflow.StatusNotStarted || progress.BlockPosition != 0 {
		t.Fatalf("unexpected fresh progress: %+v", progress)
	}

	if err := store.SetBlockPosition(ctx, progress.ProgressRecordBID, 3); err != nil {
		t.Fatalf("SetBlockPosition: %v", err)
	}
	progress, err = store.FindActiveProgress(ctx, "user-1", "outline-1")
	if err != nil {
		t.Fatalf("FindActiveProgress after advance: %v", err)
	}
	if progress.BlockPosition != 3 {
		t.Fatalf("expected block position 3, got %d", progress.BlockPosition)
	}

	if err := store.UpsertProgress(ctx, "user-1", "shifu-1", "outline-1", mdflow.StatusReset, false); err != nil {
		t.Fatalf("UpsertProgress reset: %v", err)
	}
	if _, err := store.FindActiveProgress(ctx, "user-1", "outline-1"); !errors.Is(err, ErrNoActiveProgress) {
		t.Fatalf("expected ErrNoActiveProgress after reset, got %v", err)
	}
}

func TestSQLiteStoreGeneratedBlockLifecycle(t *testing.T) {
	store := newTestSQLiteStore(t)
	seedTestCourse(t, store)
	ctx := context.Background()

	if err := store.EnsureProgressChain(ctx, "user-1", "shifu-1", "outline-1"); err != nil {
		t.Fatalf("EnsureProgressChain: %v", err)
	}
	progress, err := store.FindActiveProgress(ctx, "user-1", "outline-1")
	if err != nil {
		t.Fatalf("FindActiveProgress: %v", err)
	}

	bid, err := store.AppendGeneratedBlock(ctx, &mdflow.LearnGeneratedBlock{
		ProgressRecordBID: progress.ProgressRecordBID,
		UserBID:           "user-1",
		ShifuBID:          "shifu-1",
		OutlineItemBID:    "outline-1",
		Type:              mdflow.GeneratedInteraction,
		Role:              mdflow.RoleTeacher,
		Position:          0,
	})
	if err != nil {
		t.Fatalf("AppendGeneratedBlock: %v", err)
	}

	block, err := store.FindActiveGeneratedBlock(ctx, progress.ProgressRecordBID, 0, mdflow.GeneratedInteraction)
	if err != nil {
		t.Fatalf("FindActiveGeneratedBlock: %v", err)
	}
	if block.GeneratedBlockBID != bid {
		t.Fatalf("unexpected block: %+v", block)
	}

	if err := store.SetGeneratedBlockLiked(ctx, bid, 1); err != nil {
		t.Fatalf("SetGeneratedBlockLiked: %v", err)
	}
	list, err := store.ListGeneratedBlocks(ctx, progress.ProgressRecordBID)
	if err != nil {
		t.Fatalf("ListGeneratedBlocks: %v", err)
	}
	if len(list) != 1 || list[0].Liked != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := store.MarkGeneratedBlocksObsolete(ctx, progress.ProgressRecordBID, 0, block.ID); err != nil {
		t.Fatalf("MarkGeneratedBlocksObsolete: %v", err)
	}
	if _, err := store.FindActiveGeneratedBlock(ctx, progress.ProgressRecordBID, 0, mdflow.GeneratedInteraction); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after obsoleting, got %v", err)
	}
}
