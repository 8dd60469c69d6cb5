package outline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// PostgresStore implements Store against a Postgres-compatible database
// (lib/pq driver), following the sql.DB-plus-sentinel-error idiom used
// throughout this module's storage layer.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// structRow is the on-disk shape of a StructTree snapshot: one JSON blob
// per (shifu, variant), matching the authoring subsystem's immutable
// HistoryItem snapshots (§3).
type structRow struct {
	ShifuBID string
	Variant  string
	Tree     json.RawMessage
}

func variantOf(previewMode bool) string {
	if previewMode {
		return "draft"
	}
	return "published"
}

// GetStruct implements Store.
func (s *PostgresStore) GetStruct(ctx context.Context, shifuBID string, previewMode bool) (*mdflow.StructTree, error) {
	var raw json.RawMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT tree FROM struct_trees WHERE shifu_bid = $1 AND variant = $2 ORDER BY id DESC LIMIT 1`,
		shifuBID, variantOf(previewMode),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: get struct: %w", err)
	}

	var tree mdflow.StructTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("outline: decode struct tree: %w", err)
	}
	return &tree, nil
}

// GetOutlineWithMdflow implements Store.
func (s *PostgresStore) GetOutlineWithMdflow(ctx context.Context, outlineItemBID string, previewMode bool) (*mdflow.OutlineItem, error) {
	var item mdflow.OutlineItem
	var llmTemperature sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT outline_item_bid, shifu_bid, position, title, type, hidden,
		        llm_system_prompt, llm, llm_temperature, mdflow
		 FROM outline_items
		 WHERE outline_item_bid = $1 AND variant = $2`,
		outlineItemBID, variantOf(previewMode),
	).Scan(&item.OutlineItemBID, &item.ShifuBID, &item.Position, &item.Title, &item.Type, &item.Hidden,
		&item.LLMSystemPrompt, &item.LLM, &llmTemperature, &item.Mdflow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: get outline item: %w", err)
	}
	if llmTemperature.Valid {
		item.LLMTemperature = &llmTemperature.Float64
	}
	return &item, nil
}

// GetShifu implements Store.
func (s *PostgresStore) GetShifu(ctx context.Context, shifuBID string, previewMode bool) (*mdflow.Shifu, error) {
	var shifu mdflow.Shifu
	var llmTemperature sql.NullFloat64
	var keywords pq.StringArray
	err := s.db.QueryRowContext(ctx,
		`SELECT shifu_bid, title, description, avatar, price, keywords, llm_system_prompt, llm, llm_temperature,
		        tts_enabled, tts_provider, tts_model, tts_voice_id, tts_speed, tts_pitch, tts_emotion, tts_volume
		 FROM shifus WHERE shifu_bid = $1 AND variant = $2`,
		shifuBID, variantOf(previewMode),
	).Scan(&shifu.ShifuBID, &shifu.Title, &shifu.Description, &shifu.Avatar, &shifu.Price, &keywords,
		&shifu.LLMSystemPrompt, &shifu.LLM, &llmTemperature,
		&shifu.TTS.Enabled, &shifu.TTS.Provider, &shifu.TTS.Model, &shifu.TTS.VoiceID,
		&shifu.TTS.Speed, &shifu.TTS.Pitch, &shifu.TTS.Emotion, &shifu.TTS.Volume)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: get shifu: %w", err)
	}
	shifu.Keywords = []string(keywords)
	if llmTemperature.Valid {
		shifu.LLMTemperature = &llmTemperature.Float64
	}
	return &shifu, nil
}

func scanProgress(row interface {
	Scan(dest ...any) error
}) (*mdflow.LearnProgressRecord, error) {
	var rec mdflow.LearnProgressRecord
	err := row.Scan(&rec.ID, &rec.ProgressRecordBID, &rec.UserBID, &rec.ShifuBID, &rec.OutlineItemBID,
		&rec.Status, &rec.BlockPosition, &rec.Deleted, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindActiveProgress implements Store.
func (s *PostgresStore) FindActiveProgress(ctx context.Context, userBID, outlineItemBID string) (*mdflow.LearnProgressRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, progress_record_bid, user_bid, shifu_bid, outline_item_bid, status, block_position, deleted, created_at, updated_at
		 FROM learn_progress_records
		 WHERE user_bid = $1 AND outline_item_bid = $2 AND status != $3 AND deleted = false
		 ORDER BY id DESC LIMIT 1`,
		userBID, outlineItemBID, mdflow.StatusReset,
	)
	rec, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveProgress
	}
	if err != nil {
		return nil, fmt.Errorf("outline: find active progress: %w", err)
	}
	return rec, nil
}

// FindProgressByOutlines implements Store.
func (s *PostgresStore) FindProgressByOutlines(ctx context.Context, userBID string, outlineItemBIDs []string) (map[string]*mdflow.LearnProgressRecord, error) {
	result := make(map[string]*mdflow.LearnProgressRecord, len(outlineItemBIDs))
	if len(outlineItemBIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(outlineItemBIDs))
	args := make([]any, 0, len(outlineItemBIDs)+2)
	args = append(args, userBID, mdflow.StatusReset)
	for i, bid := range outlineItemBIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, bid)
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT ON (outline_item_bid) id, progress_record_bid, user_bid, shifu_bid, outline_item_bid, status, block_position, deleted, created_at, updated_at
		 FROM learn_progress_records
		 WHERE user_bid = $1 AND status != $2 AND deleted = false AND outline_item_bid IN (%s)
		 ORDER BY outline_item_bid, id DESC`,
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("outline: find progress by outlines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("outline: scan progress row: %w", err)
		}
		result[rec.OutlineItemBID] = rec
	}
	return result, rows.Err()
}

// EnsureProgressChain implements Store. It loads the ancestor chain via
// the outline_items.position dotted path and inserts a NOT_STARTED row
// for every ancestor lacking an active one.
func (s *PostgresStore) EnsureProgressChain(ctx context.Context, userBID, shifuBID, outlineItemBID string) error {
	chain, err := s.ancestorChain(ctx, shifuBID, outlineItemBID)
	if err != nil {
		return err
	}

	existing, err := s.FindProgressByOutlines(ctx, userBID, chain)
	if err != nil {
		return err
	}

	for _, bid := range chain {
		if _, ok := existing[bid]; ok {
			continue
		}
		if err := s.insertProgress(ctx, userBID, shifuBID, bid, mdflow.StatusNotStarted, 0); err != nil {
			return err
		}
	}
	return nil
}

// ancestorChain returns outline item bids from root to outlineItemBID
// inclusive, derived from the dotted position path (e.g. "1.2.3" yields
// the bids for positions "1", "1.2", "1.2.3").
func (s *PostgresStore) ancestorChain(ctx context.Context, shifuBID, outlineItemBID string) ([]string, error) {
	var position string
	err := s.db.QueryRowContext(ctx,
		`SELECT position FROM outline_items WHERE outline_item_bid = $1`, outlineItemBID,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: load position: %w", err)
	}

	segments := strings.Split(position, ".")
	prefixes := make([]string, len(segments))
	for i := range segments {
		prefixes[i] = strings.Join(segments[:i+1], ".")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT outline_item_bid FROM outline_items WHERE shifu_bid = $1 AND position = ANY($2) ORDER BY position`,
		shifuBID, pq.Array(prefixes),
	)
	if err != nil {
		return nil, fmt.Errorf("outline: load ancestor chain: %w", err)
	}
	defer rows.Close()

	var chain []string
	for rows.Next() {
		var bid string
		if err := rows.Scan(&bid); err != nil {
			return nil, fmt.Errorf("outline: scan ancestor: %w", err)
		}
		chain = append(chain, bid)
	}
	return chain, rows.Err()
}

// UpsertProgress implements Store.
func (s *PostgresStore) UpsertProgress(ctx context.Context, userBID, shifuBID, outlineItemBID string, status mdflow.ProgressStatus, resetPosition bool) error {
	rec, err := s.FindActiveProgress(ctx, userBID, outlineItemBID)
	if errors.Is(err, ErrNoActiveProgress) {
		position := 0
		return s.insertProgress(ctx, userBID, shifuBID, outlineItemBID, status, position)
	}
	if err != nil {
		return err
	}

	if resetPosition {
		_, err = s.db.ExecContext(ctx,
			`UPDATE learn_progress_records SET status = $1, block_position = 0, updated_at = now() WHERE id = $2`,
			status, rec.ID,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE learn_progress_records SET status = $1, updated_at = now() WHERE id = $2`,
			status, rec.ID,
		)
	}
	if err != nil {
		return fmt.Errorf("outline: upsert progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) insertProgress(ctx context.Context, userBID, shifuBID, outlineItemBID string, status mdflow.ProgressStatus, blockPosition int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learn_progress_records (progress_record_bid, user_bid, shifu_bid, outline_item_bid, status, block_position, deleted, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,false,now(),now())`,
		mdflow.NewBID(), userBID, shifuBID, outlineItemBID, status, blockPosition,
	)
	if err != nil {
		return fmt.Errorf("outline: insert progress: %w", err)
	}
	return nil
}

// SetBlockPosition implements Store.
func (s *PostgresStore) SetBlockPosition(ctx context.Context, progressRecordBID string, position int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learn_progress_records SET block_position = $1, updated_at = now() WHERE progress_record_bid = $2`,
		position, progressRecordBID,
	)
	if err != nil {
		return fmt.Errorf("outline: set block position: %w", err)
	}
	return nil
}

// AppendGeneratedBlock implements Store.
func (s *PostgresStore) AppendGeneratedBlock(ctx context.Context, block *mdflow.LearnGeneratedBlock) (string, error) {
	if block.GeneratedBlockBID == "" {
		block.GeneratedBlockBID = mdflow.NewBID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learn_generated_blocks
		   (generated_block_bid, progress_record_bid, user_bid, shifu_bid, outline_item_bid,
		    type, role, position, block_content_conf, generated_content, status, liked, deleted, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,0,false,now(),now())`,
		block.GeneratedBlockBID, block.ProgressRecordBID, block.UserBID, block.ShifuBID, block.OutlineItemBID,
		block.Type, block.Role, block.Position, block.BlockContentConf, block.GeneratedContent,
	)
	if err != nil {
		return "", fmt.Errorf("outline: append generated block: %w", err)
	}
	return block.GeneratedBlockBID, nil
}

// UpdateGeneratedBlock implements Store.
func (s *PostgresStore) UpdateGeneratedBlock(ctx context.Context, generatedBlockBID string, role mdflow.GeneratedBlockRole, generatedContent string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learn_generated_blocks SET role = $1, generated_content = $2, updated_at = now() WHERE generated_block_bid = $3`,
		role, generatedContent, generatedBlockBID,
	)
	if err != nil {
		return fmt.Errorf("outline: update generated block: %w", err)
	}
	return nil
}

// FindActiveGeneratedBlock implements Store.
func (s *PostgresStore) FindActiveGeneratedBlock(ctx context.Context, progressRecordBID string, position int, blockType mdflow.GeneratedBlockType) (*mdflow.LearnGeneratedBlock, error) {
	var b mdflow.LearnGeneratedBlock
	err := s.db.QueryRowContext(ctx,
		`SELECT id, generated_block_bid, progress_record_bid, user_bid, shifu_bid, outline_item_bid,
		        type, role, position, block_content_conf, generated_content, status, liked, deleted, created_at, updated_at
		 FROM learn_generated_blocks
		 WHERE progress_record_bid = $1 AND position = $2 AND type = $3 AND status = 1 AND deleted = false
		 ORDER BY id DESC LIMIT 1`,
		progressRecordBID, position, blockType,
	).Scan(&b.ID, &b.GeneratedBlockBID, &b.ProgressRecordBID, &b.UserBID, &b.ShifuBID, &b.OutlineItemBID,
		&b.Type, &b.Role, &b.Position, &b.BlockContentConf, &b.GeneratedContent, &b.Status, &b.Liked, &b.Deleted,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: find active generated block: %w", err)
	}
	return &b, nil
}

// FindGeneratedBlockByBID implements Store.
func (s *PostgresStore) FindGeneratedBlockByBID(ctx context.Context, generatedBlockBID string) (*mdflow.LearnGeneratedBlock, error) {
	var b mdflow.LearnGeneratedBlock
	err := s.db.QueryRowContext(ctx,
		`SELECT id, generated_block_bid, progress_record_bid, user_bid, shifu_bid, outline_item_bid,
		        type, role, position, block_content_conf, generated_content, status, liked, deleted, created_at, updated_at
		 FROM learn_generated_blocks
		 WHERE generated_block_bid = $1`,
		generatedBlockBID,
	).Scan(&b.ID, &b.GeneratedBlockBID, &b.ProgressRecordBID, &b.UserBID, &b.ShifuBID, &b.OutlineItemBID,
		&b.Type, &b.Role, &b.Position, &b.BlockContentConf, &b.GeneratedContent, &b.Status, &b.Liked, &b.Deleted,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: find generated block by bid: %w", err)
	}
	return &b, nil
}

// SetGeneratedBlockLiked implements Store.
func (s *PostgresStore) SetGeneratedBlockLiked(ctx context.Context, generatedBlockBID string, liked int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learn_generated_blocks SET liked = $1, updated_at = now() WHERE generated_block_bid = $2`,
		liked, generatedBlockBID,
	)
	if err != nil {
		return fmt.Errorf("outline: set generated block liked: %w", err)
	}
	return nil
}

// ListGeneratedBlocks implements Store.
func (s *PostgresStore) ListGeneratedBlocks(ctx context.Context, progressRecordBID string) ([]*mdflow.LearnGeneratedBlock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_block_bid, progress_record_bid, user_bid, shifu_bid, outline_item_bid,
		        type, role, position, block_content_conf, generated_content, status, liked, deleted, created_at, updated_at
		 FROM learn_generated_blocks
		 WHERE progress_record_bid = $1 AND deleted = false
		 ORDER BY position ASC, id ASC`,
		progressRecordBID,
	)
	if err != nil {
		return nil, fmt.Errorf("outline: list generated blocks: %w", err)
	}
	defer rows.Close()

	var out []*mdflow.LearnGeneratedBlock
	for rows.Next() {
		var b mdflow.LearnGeneratedBlock
		if err := rows.Scan(&b.ID, &b.GeneratedBlockBID, &b.ProgressRecordBID, &b.UserBID, &b.ShifuBID, &b.OutlineItemBID,
			&b.Type, &b.Role, &b.Position, &b.BlockContentConf, &b.GeneratedContent, &b.Status, &b.Liked, &b.Deleted,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("outline: scan generated block: %w", err)
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outline: list generated blocks: %w", err)
	}
	return out, nil
}

// MarkGeneratedBlocksObsolete implements Store.
func (s *PostgresStore) MarkGeneratedBlocksObsolete(ctx context.Context, progressRecordBID string, fromPosition int, anchorID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learn_generated_blocks SET status = 0, updated_at = now()
		 WHERE progress_record_bid = $1 AND position >= $2 AND id >= $3 AND status = 1`,
		progressRecordBID, fromPosition, anchorID,
	)
	if err != nil {
		return fmt.Errorf("outline: mark generated blocks obsolete: %w", err)
	}
	return nil
}
