package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KostasCherv/lifi-fee-collector/internal/apperr"
	"github.com/KostasCherv/lifi-fee-collector/internal/domain/model"
	"github.com/google/uuid"
)

// ScanCursorRepo is the Chain Registry half of store.ChainRegistry
// covering ScanCursor rows, grounded on the reference project's
// internal/store/postgres/indexer_config_repo.go watermark
// get/upsert shape (GREATEST-guarded monotone advance, here delegated
// to the caller since the supervisor plans each window forward from the
// cursor via planner.Plan and the processor commits only that window's
// upper bound).
type ScanCursorRepo struct {
	db *DB
}

func NewScanCursorRepo(db *DB) *ScanCursorRepo {
	return &ScanCursorRepo{db: db}
}

func (r *ScanCursorRepo) UpsertScanCursor(ctx context.Context, c *model.ScanCursor) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_cursors (
			id, chain_id, last_processed_block, is_active, last_run_at,
			error_count, last_error, worker_status, last_worker_start, last_worker_error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (chain_id) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			is_active = EXCLUDED.is_active,
			last_run_at = EXCLUDED.last_run_at,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			worker_status = EXCLUDED.worker_status,
			last_worker_start = EXCLUDED.last_worker_start,
			last_worker_error = EXCLUDED.last_worker_error,
			updated_at = now()
	`, c.ID, c.ChainID, c.LastProcessedBlock, c.IsActive, c.LastRunAt,
		c.ErrorCount, c.LastError, string(c.WorkerStatus), c.LastWorkerStart, c.LastWorkerError)
	if err != nil {
		return apperr.Store("upsert scan cursor", err)
	}
	return nil
}

func (r *ScanCursorRepo) GetScanCursor(ctx context.Context, chainID int64) (*model.ScanCursor, error) {
	var (
		c               model.ScanCursor
		workerStatus    string
		lastRunAt       sql.NullTime
		lastError       sql.NullString
		lastWorkerStart sql.NullTime
		lastWorkerError sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, chain_id, last_processed_block, is_active, last_run_at,
			error_count, last_error, worker_status, last_worker_start, last_worker_error,
			created_at, updated_at
		FROM scan_cursors WHERE chain_id = $1
	`, chainID).Scan(
		&c.ID, &c.ChainID, &c.LastProcessedBlock, &c.IsActive, &lastRunAt,
		&c.ErrorCount, &lastError, &workerStatus, &lastWorkerStart, &lastWorkerError,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(fmt.Sprintf("scan cursor for chain %d not found", chainID))
	}
	if err != nil {
		return nil, apperr.Store("get scan cursor", err)
	}
	c.WorkerStatus = model.WorkerStatus(workerStatus)
	if lastRunAt.Valid {
		c.LastRunAt = &lastRunAt.Time
	}
	if lastError.Valid {
		c.LastError = &lastError.String
	}
	if lastWorkerStart.Valid {
		c.LastWorkerStart = &lastWorkerStart.Time
	}
	if lastWorkerError.Valid {
		c.LastWorkerError = &lastWorkerError.String
	}
	return &c, nil
}

func (r *ScanCursorRepo) DeleteScanCursor(ctx context.Context, chainID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM scan_cursors WHERE chain_id = $1`, chainID)
	if err != nil {
		return apperr.Store("delete scan cursor", err)
	}
	return nil
}

func (r *ScanCursorRepo) ListScanCursors(ctx context.Context) ([]*model.ScanCursor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chain_id FROM scan_cursors ORDER BY chain_id
	`)
	if err != nil {
		return nil, apperr.Store("list scan cursors", err)
	}
	defer rows.Close()

	var chainIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Store("scan chain id", err)
		}
		chainIDs = append(chainIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list scan cursors", err)
	}

	out := make([]*model.ScanCursor, 0, len(chainIDs))
	for _, id := range chainIDs {
		c, err := r.GetScanCursor(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
