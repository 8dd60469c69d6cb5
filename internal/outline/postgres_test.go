package outline

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, NewPostgresStore(db)
}

func TestFindActiveProgressReturnsErrNoActiveProgress(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery("SELECT id, progress_record_bid").
		WithArgs("user-1", "outline-1", mdflow.StatusReset).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.FindActiveProgress(context.Background(), "user-1", "outline-1")
	if !errors.Is(err, ErrNoActiveProgress) {
		t.Fatalf("expected ErrNoActiveProgress, got %v", err)
	}
}

func TestFindActiveProgressScansRow(t *testing.T) {
	mock, store := setupMockStore(t)
	cols := []string{"id", "progress_record_bid", "user_bid", "shifu_bid", "outline_item_bid", "status", "block_position", "deleted", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT id, progress_record_bid").
		WithArgs("user-1", "outline-1", mdflow.StatusReset).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			int64(1), "progress-1", "user-1", "shifu-1", "outline-1", mdflow.StatusInProgress, 2, false, sqlmock.AnyArg(), sqlmock.AnyArg(),
		))

	rec, err := store.FindActiveProgress(context.Background(), "user-1", "outline-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ProgressRecordBID != "progress-1" || rec.BlockPosition != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestAppendGeneratedBlockAssignsBIDWhenMissing(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectExec("INSERT INTO learn_generated_blocks").
		WillReturnResult(sqlmock.NewResult(1, 1))

	bid, err := store.AppendGeneratedBlock(context.Background(), &mdflow.LearnGeneratedBlock{
		ProgressRecordBID: "progress-1",
		UserBID:           "user-1",
		ShifuBID:          "shifu-1",
		OutlineItemBID:    "outline-1",
		Type:              mdflow.GeneratedInteraction,
		Role:              mdflow.RoleTeacher,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bid == "" {
		t.Fatal("expected a generated bid to be assigned")
	}
}

func TestMarkGeneratedBlocksObsoleteExecutesUpdate(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectExec("UPDATE learn_generated_blocks SET status = 0").
		WithArgs("progress-1", 3, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := store.MarkGeneratedBlocksObsolete(context.Background(), "progress-1", 3, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
