package outline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// SQLiteStore implements Store against an embedded SQLite database (the
// teacher's `internal/memory/backend/sqlitevec` pure-Go driver idiom). It
// backs the playground preview endpoint and package tests that want a real
// database without standing up Postgres: authoring content (Shifus, outline
// items, struct trees) is owned by an external system in production, so
// here it is loaded once via Seed rather than written by a migration tool.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) a SQLite database at path and runs the
// schema migration. path may be ":memory:" for an ephemeral store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("outline: open sqlite store: %w", err)
	}
	// modernc.org/sqlite serializes writers at the connection-pool level;
	// a single connection avoids SQLITE_BUSY on concurrent writers in-process.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dev_shifus (
			shifu_bid TEXT NOT NULL,
			variant   TEXT NOT NULL,
			data      TEXT NOT NULL,
			PRIMARY KEY (shifu_bid, variant)
		)`,
		`CREATE TABLE IF NOT EXISTS dev_outline_items (
			outline_item_bid TEXT NOT NULL,
			variant          TEXT NOT NULL,
			shifu_bid        TEXT NOT NULL,
			position         TEXT NOT NULL,
			data             TEXT NOT NULL,
			PRIMARY KEY (outline_item_bid, variant)
		)`,
		`CREATE TABLE IF NOT EXISTS dev_struct_trees (
			shifu_bid TEXT NOT NULL,
			variant   TEXT NOT NULL,
			tree      TEXT NOT NULL,
			PRIMARY KEY (shifu_bid, variant)
		)`,
		`CREATE TABLE IF NOT EXISTS learn_progress_records (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			progress_record_bid TEXT NOT NULL,
			user_bid            TEXT NOT NULL,
			shifu_bid           TEXT NOT NULL,
			outline_item_bid    TEXT NOT NULL,
			status              TEXT NOT NULL,
			block_position      INTEGER NOT NULL DEFAULT 0,
			deleted             INTEGER NOT NULL DEFAULT 0,
			created_at          TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_user_outline
			ON learn_progress_records(user_bid, outline_item_bid)`,
		`CREATE TABLE IF NOT EXISTS learn_generated_blocks (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			generated_block_bid  TEXT NOT NULL,
			progress_record_bid  TEXT NOT NULL,
			user_bid             TEXT NOT NULL,
			shifu_bid            TEXT NOT NULL,
			outline_item_bid     TEXT NOT NULL,
			type                 TEXT NOT NULL,
			role                 TEXT NOT NULL,
			position             INTEGER NOT NULL,
			block_content_conf   TEXT NOT NULL DEFAULT '',
			generated_content    TEXT NOT NULL DEFAULT '',
			status               INTEGER NOT NULL DEFAULT 1,
			liked                INTEGER NOT NULL DEFAULT 0,
			deleted              INTEGER NOT NULL DEFAULT 0,
			created_at           TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_generated_blocks_progress
			ON learn_generated_blocks(progress_record_bid, position)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("outline: migrate sqlite schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SeedContent loads a Shifu, its outline items, and the corresponding
// StructTree for one variant, overwriting any existing rows. Intended for
// test fixtures and the playground's demo course, not production content.
func (s *SQLiteStore) SeedContent(ctx context.Context, previewMode bool, shifu *mdflow.Shifu, items []*mdflow.OutlineItem, tree *mdflow.StructTree) error {
	variant := variantOf(previewMode)

	shifuJSON, err := json.Marshal(shifu)
	if err != nil {
		return fmt.Errorf("outline: encode shifu fixture: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO dev_shifus (shifu_bid, variant, data) VALUES (?, ?, ?)
		 ON CONFLICT(shifu_bid, variant) DO UPDATE SET data = excluded.data`,
		shifu.ShifuBID, variant, shifuJSON,
	); err != nil {
		return fmt.Errorf("outline: seed shifu: %w", err)
	}

	for _, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("outline: encode outline item fixture: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO dev_outline_items (outline_item_bid, variant, shifu_bid, position, data) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(outline_item_bid, variant) DO UPDATE SET position = excluded.position, data = excluded.data`,
			item.OutlineItemBID, variant, item.ShifuBID, item.Position, itemJSON,
		); err != nil {
			return fmt.Errorf("outline: seed outline item: %w", err)
		}
	}

	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("outline: encode struct tree fixture: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO dev_struct_trees (shifu_bid, variant, tree) VALUES (?, ?, ?)
		 ON CONFLICT(shifu_bid, variant) DO UPDATE SET tree = excluded.tree`,
		shifu.ShifuBID, variant, treeJSON,
	); err != nil {
		return fmt.Errorf("outline: seed struct tree: %w", err)
	}
	return nil
}

// GetStruct implements Store.
func (s *SQLiteStore) GetStruct(ctx context.Context, shifuBID string, previewMode bool) (*mdflow.StructTree, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT tree FROM dev_struct_trees WHERE shifu_bid = ? AND variant = ?`,
		shifuBID, variantOf(previewMode),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: get struct: %w", err)
	}
	var tree mdflow.StructTree
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return nil, fmt.Errorf("outline: decode struct tree: %w", err)
	}
	return &tree, nil
}

// GetOutlineWithMdflow implements Store.
func (s *SQLiteStore) GetOutlineWithMdflow(ctx context.Context, outlineItemBID string, previewMode bool) (*mdflow.OutlineItem, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM dev_outline_items WHERE outline_item_bid = ? AND variant = ?`,
		outlineItemBID, variantOf(previewMode),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: get outline item: %w", err)
	}
	var item mdflow.OutlineItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("outline: decode outline item: %w", err)
	}
	return &item, nil
}

// GetShifu implements Store.
func (s *SQLiteStore) GetShifu(ctx context.Context, shifuBID string, previewMode bool) (*mdflow.Shifu, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM dev_shifus WHERE shifu_bid = ? AND variant = ?`,
		shifuBID, variantOf(previewMode),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: get shifu: %w", err)
	}
	var shifu mdflow.Shifu
	if err := json.Unmarshal([]byte(raw), &shifu); err != nil {
		return nil, fmt.Errorf("outline: decode shifu: %w", err)
	}
	return &shifu, nil
}

// sqliteTimeLayout matches the format datetime('now') writes: SQLite has no
// native timestamp type, so timestamps round-trip as plain TEXT and must be
// parsed explicitly rather than relying on database/sql's generic
// string-to-time.Time conversion (which expects RFC3339).
const sqliteTimeLayout = "2006-01-02 15:04:05"

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func scanProgressSQLite(row interface {
	Scan(dest ...any) error
}) (*mdflow.LearnProgressRecord, error) {
	var rec mdflow.LearnProgressRecord
	var deleted int
	var createdAt, updatedAt string
	if err := row.Scan(&rec.ID, &rec.ProgressRecordBID, &rec.UserBID, &rec.ShifuBID, &rec.OutlineItemBID,
		&rec.Status, &rec.BlockPosition, &deleted, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Deleted = deleted != 0
	rec.CreatedAt = parseSQLiteTime(createdAt)
	rec.UpdatedAt = parseSQLiteTime(updatedAt)
	return &rec, nil
}

// FindActiveProgress implements Store.
func (s *SQLiteStore) FindActiveProgress(ctx context.Context, userBID, outlineItemBID string) (*mdflow.LearnProgressRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, progress_record_bid, user_bid, shifu_bid, outline_item_bid, status, block_position, deleted, created_at, updated_at
		 FROM learn_progress_records
		 WHERE user_bid = ? AND outline_item_bid = ? AND status != ? AND deleted = 0
		 ORDER BY id DESC LIMIT 1`,
		userBID, outlineItemBID, mdflow.StatusReset,
	)
	rec, err := scanProgressSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveProgress
	}
	if err != nil {
		return nil, fmt.Errorf("outline: find active progress: %w", err)
	}
	return rec, nil
}

// FindProgressByOutlines implements Store.
func (s *SQLiteStore) FindProgressByOutlines(ctx context.Context, userBID string, outlineItemBIDs []string) (map[string]*mdflow.LearnProgressRecord, error) {
	result := make(map[string]*mdflow.LearnProgressRecord, len(outlineItemBIDs))
	if len(outlineItemBIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(outlineItemBIDs))
	args := make([]any, 0, len(outlineItemBIDs)+2)
	args = append(args, userBID, mdflow.StatusReset)
	for i, bid := range outlineItemBIDs {
		placeholders[i] = "?"
		args = append(args, bid)
	}

	// SQLite has no DISTINCT ON; the highest id per outline item is picked
	// by iterating rows ordered oldest-first and overwriting the map entry.
	query := fmt.Sprintf(
		`SELECT id, progress_record_bid, user_bid, shifu_bid, outline_item_bid, status, block_position, deleted, created_at, updated_at
		 FROM learn_progress_records
		 WHERE user_bid = ? AND status != ? AND deleted = 0 AND outline_item_bid IN (%s)
		 ORDER BY outline_item_bid, id ASC`,
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("outline: find progress by outlines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanProgressSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("outline: scan progress row: %w", err)
		}
		result[rec.OutlineItemBID] = rec
	}
	return result, rows.Err()
}

// EnsureProgressChain implements Store.
func (s *SQLiteStore) EnsureProgressChain(ctx context.Context, userBID, shifuBID, outlineItemBID string) error {
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

func (s *SQLiteStore) ancestorChain(ctx context.Context, shifuBID, outlineItemBID string) ([]string, error) {
	var position string
	err := s.db.QueryRowContext(ctx,
		`SELECT position FROM dev_outline_items WHERE outline_item_bid = ? LIMIT 1`, outlineItemBID,
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

	placeholders := make([]string, len(prefixes))
	args := make([]any, 0, len(prefixes)+1)
	args = append(args, shifuBID)
	for i, p := range prefixes {
		placeholders[i] = "?"
		args = append(args, p)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT outline_item_bid FROM dev_outline_items WHERE shifu_bid = ? AND position IN (%s) ORDER BY position`,
			strings.Join(placeholders, ",")),
		args...,
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
func (s *SQLiteStore) UpsertProgress(ctx context.Context, userBID, shifuBID, outlineItemBID string, status mdflow.ProgressStatus, resetPosition bool) error {
	rec, err := s.FindActiveProgress(ctx, userBID, outlineItemBID)
	if errors.Is(err, ErrNoActiveProgress) {
		return s.insertProgress(ctx, userBID, shifuBID, outlineItemBID, status, 0)
	}
	if err != nil {
		return err
	}

	if resetPosition {
		_, err = s.db.ExecContext(ctx,
			`UPDATE learn_progress_records SET status = ?, block_position = 0, updated_at = datetime('now') WHERE id = ?`,
			status, rec.ID,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE learn_progress_records SET status = ?, updated_at = datetime('now') WHERE id = ?`,
			status, rec.ID,
		)
	}
	if err != nil {
		return fmt.Errorf("outline: upsert progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insertProgress(ctx context.Context, userBID, shifuBID, outlineItemBID string, status mdflow.ProgressStatus, blockPosition int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learn_progress_records (progress_record_bid, user_bid, shifu_bid, outline_item_bid, status, block_position, deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, datetime('now'), datetime('now'))`,
		mdflow.NewBID(), userBID, shifuBID, outlineItemBID, status, blockPosition,
	)
	if err != nil {
		return fmt.Errorf("outline: insert progress: %w", err)
	}
	return nil
}

// SetBlockPosition implements Store.
func (s *SQLiteStore) SetBlockPosition(ctx context.Context, progressRecordBID string, position int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learn_progress_records SET block_position = ?, updated_at = datetime('now') WHERE progress_record_bid = ?`,
		position, progressRecordBID,
	)
	if err != nil {
		return fmt.Errorf("outline: set block position: %w", err)
	}
	return nil
}

// AppendGeneratedBlock implements Store.
func (s *SQLiteStore) AppendGeneratedBlock(ctx context.Context, block *mdflow.LearnGeneratedBlock) (string, error) {
	if block.GeneratedBlockBID == "" {
		block.GeneratedBlockBID = mdflow.NewBID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learn_generated_blocks
		   (generated_block_bid, progress_record_bid, user_bid, shifu_bid, outline_item_bid,
		    type, role, position, block_content_conf, generated_content, status, liked, deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, 0, datetime('now'), datetime('now'))`,
		block.GeneratedBlockBID, block.ProgressRecordBID, block.UserBID, block.ShifuBID, block.OutlineItemBID,
		block.Type, block.Role, block.Position, block.BlockContentConf, block.GeneratedContent,
	)
	if err != nil {
		return "", fmt.Errorf("outline: append generated block: %w", err)
	}
	return block.GeneratedBlockBID, nil
}

// UpdateGeneratedBlock implements Store.
func (s *SQLiteStore) UpdateGeneratedBlock(ctx context.Context, generatedBlockBID string, role mdflow.GeneratedBlockRole, generatedContent string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learn_generated_blocks SET role = ?, generated_content = ?, updated_at = datetime('now') WHERE generated_block_bid = ?`,
		role, generatedContent, generatedBlockBID,
	)
	if err != nil {
		return fmt.Errorf("outline: update generated block: %w", err)
	}
	return nil
}

func scanGeneratedBlockSQLite(row interface {
	Scan(dest ...any) error
}) (*mdflow.LearnGeneratedBlock, error) {
	var b mdflow.LearnGeneratedBlock
	var status, liked, deleted int
	var createdAt, updatedAt string
	if err := row.Scan(&b.ID, &b.GeneratedBlockBID, &b.ProgressRecordBID, &b.UserBID, &b.ShifuBID, &b.OutlineItemBID,
		&b.Type, &b.Role, &b.Position, &b.BlockContentConf, &b.GeneratedContent, &status, &liked, &deleted,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.Status, b.Liked, b.Deleted = status, liked, deleted != 0
	b.CreatedAt = parseSQLiteTime(createdAt)
	b.UpdatedAt = parseSQLiteTime(updatedAt)
	return &b, nil
}

// FindActiveGeneratedBlock implements Store.
func (s *SQLiteStore) FindActiveGeneratedBlock(ctx context.Context, progressRecordBID string, position int, blockType mdflow.GeneratedBlockType) (*mdflow.LearnGeneratedBlock, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, generated_block_bid, progress_record_bid, user_bid, shifu_bid, outline_item_bid,
		        type, role, position, block_content_conf, generated_content, status, liked, deleted, created_at, updated_at
		 FROM learn_generated_blocks
		 WHERE progress_record_bid = ? AND position = ? AND type = ? AND status = 1 AND deleted = 0
		 ORDER BY id DESC LIMIT 1`,
		progressRecordBID, position, blockType,
	)
	b, err := scanGeneratedBlockSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: find active generated block: %w", err)
	}
	return b, nil
}

// FindGeneratedBlockByBID implements Store.
func (s *SQLiteStore) FindGeneratedBlockByBID(ctx context.Context, generatedBlockBID string) (*mdflow.LearnGeneratedBlock, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, generated_block_bid, progress_record_bid, user_bid, shifu_bid, outline_item_bid,
		        type, role, position, block_content_conf, generated_content, status, liked, deleted, created_at, updated_at
		 FROM learn_generated_blocks
		 WHERE generated_block_bid = ?`,
		generatedBlockBID,
	)
	b, err := scanGeneratedBlockSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outline: find generated block by bid: %w", err)
	}
	return b, nil
}

// SetGeneratedBlockLiked implements Store.
func (s *SQLiteStore) SetGeneratedBlockLiked(ctx context.Context, generatedBlockBID string, liked int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learn_generated_blocks SET liked = ?, updated_at = datetime('now') WHERE generated_block_bid = ?`,
		liked, generatedBlockBID,
	)
	if err != nil {
		return fmt.Errorf("outline: set generated block liked: %w", err)
	}
	return nil
}

// ListGeneratedBlocks implements Store.
func (s *SQLiteStore) ListGeneratedBlocks(ctx context.Context, progressRecordBID string) ([]*mdflow.LearnGeneratedBlock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_block_bid, progress_record_bid, user_bid, shifu_bid, outline_item_bid,
		        type, role, position, block_content_conf, generated_content, status, liked, deleted, created_at, updated_at
		 FROM learn_generated_blocks
		 WHERE progress_record_bid = ? AND deleted = 0
		 ORDER BY position ASC, id ASC`,
		progressRecordBID,
	)
	if err != nil {
		return nil, fmt.Errorf("outline: list generated blocks: %w", err)
	}
	defer rows.Close()

	var out []*mdflow.LearnGeneratedBlock
	for rows.Next() {
		b, err := scanGeneratedBlockSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("outline: scan generated block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkGeneratedBlocksObsolete implements Store.
func (s *SQLiteStore) MarkGeneratedBlocksObsolete(ctx context.Context, progressRecordBID string, fromPosition int, anchorID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learn_generated_blocks SET status = 0, updated_at = datetime('now')
		 WHERE progress_record_bid = ? AND position >= ? AND id >= ? AND status = 1`,
		progressRecordBID, fromPosition, anchorID,
	)
	if err != nil {
		return fmt.Errorf("outline: mark generated blocks obsolete: %w", err)
	}
	return nil
}
