// Package usage implements the Metering Recorder (C10): best-effort
// persistence of BillUsageRecord rows for LLM and TTS consumption. A
// recording failure must never propagate to the caller — only be logged.
package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// Recorder persists BillUsageRecord rows, swallowing failures. It also
// feeds a rolling in-memory Tracker so an operator surface (e.g. a status
// CLI command) can read recent totals without a round trip to Postgres.
type Recorder struct {
	db      *sql.DB
	logger  *slog.Logger
	tracker *Tracker
}

// NewRecorder builds a Recorder. A nil logger falls back to slog.Default.
func NewRecorder(db *sql.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger, tracker: NewTracker(DefaultTrackerConfig())}
}

// Tracker exposes the rolling in-memory usage summary fed by every record
// call, independent of whether the Postgres insert succeeds.
func (r *Recorder) Tracker() *Tracker {
	return r.tracker
}

// LLMUsageInput is the request-level metering entry point's arguments.
type LLMUsageInput struct {
	UsageBID     string // caller-supplied; freshly generated if empty
	UserBID      string
	ShifuBID     string
	Provider     string
	Model        string
	IsStream     bool
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	LatencyMS    int64
	Scene        mdflow.UsageScene
	Billable     *bool // explicit override; nil defers to scene-based default
	Err          error
}

// RecordLLMUsage persists a request-level (record_level=0) LLM usage row.
// Failures are logged, never returned: callers must not gate behavior on
// metering succeeding.
func (r *Recorder) RecordLLMUsage(ctx context.Context, in LLMUsageInput) {
	rec := &mdflow.BillUsageRecord{
		UsageBID:     nonEmptyOr(in.UsageBID, mdflow.NewBID()),
		UserBID:      in.UserBID,
		ShifuBID:     in.ShifuBID,
		UsageType:    mdflow.UsageLLM,
		RecordLevel:  mdflow.LevelRequest,
		UsageScene:   in.Scene,
		Provider:     in.Provider,
		Model:        in.Model,
		IsStream:     in.IsStream,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		TotalTokens:  in.TotalTokens,
		LatencyMS:    in.LatencyMS,
		Billable:     resolveBillable(in.Billable, in.Scene),
		Status:       statusOf(in.Err),
		ErrorMessage: errMessage(in.Err),
	}
	r.tracker.Record(Record{
		ID:       rec.UsageBID,
		Provider: in.Provider,
		Model:    in.Model,
		UserID:   in.UserBID,
		Usage:    Usage{InputTokens: in.InputTokens, OutputTokens: in.OutputTokens},
	})
	r.insert(ctx, rec)
}

// TTSUsageInput covers both request-level and segment-level TTS metering;
// segment rows set ParentUsageBID to the owning request row's UsageBID.
type TTSUsageInput struct {
	UsageBID       string
	ParentUsageBID string
	UserBID        string
	ShifuBID       string
	Provider       string
	Model          string
	WordCount      int64
	DurationMS     int64
	LatencyMS      int64
	SegmentIndex   int
	SegmentCount   int
	Scene          mdflow.UsageScene
	Billable       *bool
	Extra          map[string]any
	Err            error
}

// RecordTTSUsage persists a TTS usage row at either record level (0 for a
// request-level row, 1 for a segment-level row with ParentUsageBID set).
func (r *Recorder) RecordTTSUsage(ctx context.Context, in TTSUsageInput) {
	level := mdflow.LevelRequest
	if in.ParentUsageBID != "" {
		level = mdflow.LevelSegment
	}
	rec := &mdflow.BillUsageRecord{
		UsageBID:     nonEmptyOr(in.UsageBID, mdflow.NewBID()),
		ParentUsageBID: in.ParentUsageBID,
		UserBID:      in.UserBID,
		ShifuBID:     in.ShifuBID,
		UsageType:    mdflow.UsageTTS,
		RecordLevel:  level,
		UsageScene:   in.Scene,
		Provider:     in.Provider,
		Model:        in.Model,
		WordCount:    in.WordCount,
		DurationMS:   in.DurationMS,
		LatencyMS:    in.LatencyMS,
		SegmentIndex: in.SegmentIndex,
		SegmentCount: in.SegmentCount,
		Billable:     resolveBillable(in.Billable, in.Scene),
		Status:       statusOf(in.Err),
		ErrorMessage: errMessage(in.Err),
		Extra:        in.Extra,
	}
	r.insert(ctx, rec)
}

func (r *Recorder) insert(ctx context.Context, rec *mdflow.BillUsageRecord) {
	extra, err := json.Marshal(rec.Extra)
	if err != nil {
		extra = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO bill_usage_records
		   (usage_bid, parent_usage_bid, user_bid, shifu_bid, usage_type, record_level, usage_scene,
		    provider, model, is_stream, input_tokens, output_tokens, total_tokens, word_count, duration_ms,
		    latency_ms, segment_index, segment_count, billable, status, error_message, extra, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,now())`,
		rec.UsageBID, nullable(rec.ParentUsageBID), rec.UserBID, rec.ShifuBID, rec.UsageType, rec.RecordLevel, rec.UsageScene,
		rec.Provider, rec.Model, rec.IsStream, rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.WordCount, rec.DurationMS,
		rec.LatencyMS, rec.SegmentIndex, rec.SegmentCount, rec.Billable, rec.Status, rec.ErrorMessage, extra,
	)
	if err != nil {
		r.logger.Warn("usage: failed to persist bill usage record", "usage_bid", rec.UsageBID, "error", err)
		return
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonEmptyOr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func resolveBillable(override *bool, scene mdflow.UsageScene) bool {
	if override != nil {
		return *override
	}
	return scene == mdflow.SceneProduction
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
