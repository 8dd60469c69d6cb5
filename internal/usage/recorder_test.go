package usage

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

func setupMockRecorder(t *testing.T) (sqlmock.Sqlmock, *Recorder, *bytes.Buffer) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	return mock, NewRecorder(db, logger), &logBuf
}

func TestRecordLLMUsageInsertsRequestLevelRow(t *testing.T) {
	mock, rec, _ := setupMockRecorder(t)
	mock.ExpectExec("INSERT INTO bill_usage_records").
		WithArgs(
			sqlmock.AnyArg(), nil, "user-1", "shifu-1", mdflow.UsageLLM, mdflow.LevelRequest, mdflow.SceneProduction,
			"openai", "gpt-4o", false, int64(10), int64(20), int64(30), int64(0), int64(0),
			int64(500), 0, 0, true, "ok", "", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec.RecordLLMUsage(context.Background(), LLMUsageInput{
		UserBID: "user-1", ShifuBID: "shifu-1", Provider: "openai", Model: "gpt-4o",
		InputTokens: 10, OutputTokens: 20, TotalTokens: 30, LatencyMS: 500,
		Scene: mdflow.SceneProduction,
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordTTSUsageSegmentLevelSetsParent(t *testing.T) {
	mock, rec, _ := setupMockRecorder(t)
	mock.ExpectExec("INSERT INTO bill_usage_records").
		WithArgs(
			sqlmock.AnyArg(), "parent-1", "user-1", "shifu-1", mdflow.UsageTTS, mdflow.LevelSegment, mdflow.SceneDebug,
			"edge-tts", "", false, int64(0), int64(0), int64(0), int64(42), int64(1200),
			int64(80), 2, 5, false, "ok", "", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec.RecordTTSUsage(context.Background(), TTSUsageInput{
		ParentUsageBID: "parent-1", UserBID: "user-1", ShifuBID: "shifu-1", Provider: "edge-tts",
		WordCount: 42, DurationMS: 1200, LatencyMS: 80, SegmentIndex: 2, SegmentCount: 5,
		Scene: mdflow.SceneDebug,
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordLLMUsageSwallowsInsertFailure(t *testing.T) {
	mock, rec, logBuf := setupMockRecorder(t)
	mock.ExpectExec("INSERT INTO bill_usage_records").WillReturnError(context.DeadlineExceeded)

	rec.RecordLLMUsage(context.Background(), LLMUsageInput{
		UserBID: "user-1", ShifuBID: "shifu-1", Provider: "openai", Model: "gpt-4o",
		Scene: mdflow.SceneProduction,
	})

	if logBuf.Len() == 0 {
		t.Fatal("expected a warning to be logged on insert failure")
	}
}

func TestResolveBillableDefersToSceneWithoutOverride(t *testing.T) {
	if resolveBillable(nil, mdflow.SceneDebug) {
		t.Fatal("debug scene should default to non-billable")
	}
	if !resolveBillable(nil, mdflow.SceneProduction) {
		t.Fatal("production scene should default to billable")
	}
	override := true
	if !resolveBillable(&override, mdflow.SceneDebug) {
		t.Fatal("explicit override should take precedence over scene default")
	}
}
