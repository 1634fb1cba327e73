package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KostasCherv/lifi-fee-collector/internal/apperr"
	"github.com/KostasCherv/lifi-fee-collector/internal/domain/model"
	"github.com/google/uuid"
)

// ChainConfigRepo is the Chain Registry half of store.ChainRegistry
// covering ChainConfig rows, grounded on the reference project's
// internal/store/postgres/cursor_repo.go Get/Upsert shape.
type ChainConfigRepo struct {
	db *DB
}

func NewChainConfigRepo(db *DB) *ChainConfigRepo {
	return &ChainConfigRepo{db: db}
}

func (r *ChainConfigRepo) UpsertChainConfig(ctx context.Context, cfg *model.ChainConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chain_configs (
			id, chain_id, name, rpc_url, contract_address, starting_block,
			scan_interval_ms, max_block_range, retry_attempts, is_enabled,
			worker_status, last_worker_start, last_worker_error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (chain_id) DO UPDATE SET
			name = EXCLUDED.name,
			rpc_url = EXCLUDED.rpc_url,
			contract_address = EXCLUDED.contract_address,
			starting_block = EXCLUDED.starting_block,
			scan_interval_ms = EXCLUDED.scan_interval_ms,
			max_block_range = EXCLUDED.max_block_range,
			retry_attempts = EXCLUDED.retry_attempts,
			is_enabled = EXCLUDED.is_enabled,
			worker_status = EXCLUDED.worker_status,
			last_worker_start = EXCLUDED.last_worker_start,
			last_worker_error = EXCLUDED.last_worker_error,
			updated_at = now()
	`, cfg.ID, cfg.ChainID, cfg.Name, cfg.RPCURL, cfg.ContractAddress, cfg.StartingBlock,
		cfg.ScanInterval.Milliseconds(), cfg.MaxBlockRange, cfg.RetryAttempts, cfg.IsEnabled,
		string(cfg.WorkerStatus), cfg.LastWorkerStart, cfg.LastWorkerError)
	if err != nil {
		return apperr.Store("upsert chain config", err)
	}
	return nil
}

func (r *ChainConfigRepo) GetChainConfig(ctx context.Context, chainID int64) (*model.ChainConfig, error) {
	cfg, err := r.scanChainConfig(r.db.QueryRowContext(ctx, `
		SELECT id, chain_id, name, rpc_url, contract_address, starting_block,
			scan_interval_ms, max_block_range, retry_attempts, is_enabled,
			worker_status, last_worker_start, last_worker_error, created_at, updated_at
		FROM chain_configs WHERE chain_id = $1
	`, chainID))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(fmt.Sprintf("chain config %d not found", chainID))
	}
	if err != nil {
		return nil, apperr.Store("get chain config", err)
	}
	return cfg, nil
}

func (r *ChainConfigRepo) DeleteChainConfig(ctx context.Context, chainID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chain_configs WHERE chain_id = $1`, chainID)
	if err != nil {
		return apperr.Store("delete chain config", err)
	}
	return nil
}

func (r *ChainConfigRepo) ListChainConfigs(ctx context.Context) ([]*model.ChainConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chain_id, name, rpc_url, contract_address, starting_block,
			scan_interval_ms, max_block_range, retry_attempts, is_enabled,
			worker_status, last_worker_start, last_worker_error, created_at, updated_at
		FROM chain_configs ORDER BY chain_id
	`)
	if err != nil {
		return nil, apperr.Store("list chain configs", err)
	}
	defer rows.Close()

	var out []*model.ChainConfig
	for rows.Next() {
		cfg, err := r.scanChainConfig(rows)
		if err != nil {
			return nil, apperr.Store("scan chain config row", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ChainConfigRepo) scanChainConfig(row rowScanner) (*model.ChainConfig, error) {
	var (
		cfg              model.ChainConfig
		scanIntervalMS   int64
		workerStatus     string
		lastWorkerStart  sql.NullTime
		lastWorkerError  sql.NullString
	)
	if err := row.Scan(
		&cfg.ID, &cfg.ChainID, &cfg.Name, &cfg.RPCURL, &cfg.ContractAddress, &cfg.StartingBlock,
		&scanIntervalMS, &cfg.MaxBlockRange, &cfg.RetryAttempts, &cfg.IsEnabled,
		&workerStatus, &lastWorkerStart, &lastWorkerError, &cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	cfg.ScanInterval = msToDuration(scanIntervalMS)
	cfg.WorkerStatus = model.WorkerStatus(workerStatus)
	if lastWorkerStart.Valid {
		cfg.LastWorkerStart = &lastWorkerStart.Time
	}
	if lastWorkerError.Valid {
		cfg.LastWorkerError = &lastWorkerError.String
	}
	return &cfg, nil
}
