package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/KostasCherv/lifi-fee-collector/internal/apperr"
	"github.com/KostasCherv/lifi-fee-collector/internal/domain/model"
	"github.com/KostasCherv/lifi-fee-collector/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FeeEventRepo is the Event Store, grounded on the reference project's
// internal/store/postgres/transfer_repo.go insert-with-ON-CONFLICT-DO-NOTHING
// shape, generalized to a bulk findExistingKeys query (spec.md §6) via
// pq.Array + unnest instead of the reference's single-row upserts.
type FeeEventRepo struct {
	db *DB
}

func NewFeeEventRepo(db *DB) *FeeEventRepo {
	return &FeeEventRepo{db: db}
}

// FindExistingKeys reports which of keys are already present for
// chainID, via one bulk query using parallel-array unnest rather than
// one round trip per key.
func (r *FeeEventRepo) FindExistingKeys(ctx context.Context, chainID int64, keys []model.NaturalKey) (map[model.NaturalKey]bool, error) {
	result := make(map[model.NaturalKey]bool, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	txHashes := make([]string, len(keys))
	logIndexes := make([]int64, len(keys))
	for i, k := range keys {
		txHashes[i] = k.TransactionHash
		logIndexes[i] = k.LogIndex
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT fe.transaction_hash, fe.log_index
		FROM fee_events fe
		JOIN (
			SELECT unnest($2::text[]) AS transaction_hash, unnest($3::bigint[]) AS log_index
		) k ON fe.transaction_hash = k.transaction_hash AND fe.log_index = k.log_index
		WHERE fe.chain_id = $1
	`, chainID, pq.Array(txHashes), pq.Array(logIndexes))
	if err != nil {
		return nil, apperr.Store("find existing keys", err)
	}
	defer rows.Close()

	for rows.Next() {
		var txHash string
		var logIndex int64
		if err := rows.Scan(&txHash, &logIndex); err != nil {
			return nil, apperr.Store("scan existing key", err)
		}
		result[model.NaturalKey{ChainID: chainID, TransactionHash: txHash, LogIndex: logIndex}] = true
	}
	return result, rows.Err()
}

// InsertMany bulk-inserts events in a single transaction; a per-row
// unique-key collision is caught and treated as already-present
// rather than failing the whole batch, per spec.md §4.3 step 7.
func (r *FeeEventRepo) InsertMany(ctx context.Context, events []*model.FeeEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store("begin insert transaction", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fee_events (
				id, chain_id, block_number, block_hash, transaction_hash, log_index,
				token, integrator, integrator_fee, lifi_fee, "timestamp"
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (chain_id, transaction_hash, log_index) DO NOTHING
		`, e.ID, e.ChainID, e.BlockNumber, e.BlockHash, e.TransactionHash, e.LogIndex,
			e.Token, e.Integrator, e.IntegratorFee, e.LifiFee, e.Timestamp)
		if err != nil {
			return apperr.Store(fmt.Sprintf("insert fee event %s/%d", e.TransactionHash, e.LogIndex), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Store("commit insert transaction", err)
	}
	return nil
}

func (r *FeeEventRepo) CountByFilter(ctx context.Context, filter store.Filter) (int64, error) {
	where, args := buildFilterClause(filter)
	var count int64
	query := "SELECT count(*) FROM fee_events" + where
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperr.Store("count fee events", err)
	}
	return count, nil
}

func (r *FeeEventRepo) FindByFilter(ctx context.Context, filter store.Filter, sortDesc bool, skip, limit int) ([]*model.FeeEvent, error) {
	where, args := buildFilterClause(filter)
	order := "ASC"
	if sortDesc {
		order = "DESC"
	}
	args = append(args, limit, skip)
	query := fmt.Sprintf(`
		SELECT id, chain_id, block_number, block_hash, transaction_hash, log_index,
			token, integrator, integrator_fee, lifi_fee, "timestamp", created_at, updated_at
		FROM fee_events%s
		ORDER BY "timestamp" %s
		LIMIT $%d OFFSET $%d
	`, where, order, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("find fee events", err)
	}
	defer rows.Close()

	var out []*model.FeeEvent
	for rows.Next() {
		var e model.FeeEvent
		if err := rows.Scan(
			&e.ID, &e.ChainID, &e.BlockNumber, &e.BlockHash, &e.TransactionHash, &e.LogIndex,
			&e.Token, &e.Integrator, &e.IntegratorFee, &e.LifiFee, &e.Timestamp, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, apperr.Store("scan fee event", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// buildFilterClause renders store.Filter into a WHERE clause and its
// positional args, starting at $1. Used by both CountByFilter and
// FindByFilter so the predicate stays identical between the two.
func buildFilterClause(filter store.Filter) (string, []any) {
	var clauses []string
	var args []any

	if filter.ChainID != nil {
		args = append(args, *filter.ChainID)
		clauses = append(clauses, fmt.Sprintf("chain_id = $%d", len(args)))
	}
	if filter.Integrator != nil {
		args = append(args, *filter.Integrator)
		clauses = append(clauses, fmt.Sprintf("integrator = $%d", len(args)))
	}
	if filter.FromTime != nil {
		args = append(args, *filter.FromTime)
		clauses = append(clauses, fmt.Sprintf(`"timestamp" >= $%d`, len(args)))
	}
	if filter.ToTime != nil {
		args = append(args, *filter.ToTime)
		clauses = append(clauses, fmt.Sprintf(`"timestamp" <= $%d`, len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
