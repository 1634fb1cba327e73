// Package store defines the Chain Registry and Event Store boundary
// interfaces, grounded on the reference project's repository
// interfaces in internal/store (referenced from pipeline.Repos) and
// implemented over Postgres in internal/store/postgres.
package store

import (
	"context"
	"time"

	"github.com/KostasCherv/lifi-fee-collector/internal/domain/model"
)

// Filter describes the read-path query shape named in spec.md §6 so
// the boundary contract is precise, even though the read API itself
// (pagination, HTTP framing) is out of this module's scope.
type Filter struct {
	ChainID    *int64
	Integrator *string
	FromTime   *time.Time
	ToTime     *time.Time
}

// ChainRegistry is the authoritative store of chain configurations and
// per-chain scan cursors.
type ChainRegistry interface {
	UpsertChainConfig(ctx context.Context, cfg *model.ChainConfig) error
	GetChainConfig(ctx context.Context, chainID int64) (*model.ChainConfig, error)
	DeleteChainConfig(ctx context.Context, chainID int64) error
	ListChainConfigs(ctx context.Context) ([]*model.ChainConfig, error)

	UpsertScanCursor(ctx context.Context, cursor *model.ScanCursor) error
	GetScanCursor(ctx context.Context, chainID int64) (*model.ScanCursor, error)
	DeleteScanCursor(ctx context.Context, chainID int64) error
	ListScanCursors(ctx context.Context) ([]*model.ScanCursor, error)
}

// EventStore is the append-only collection of canonical FeeEvent
// records.
type EventStore interface {
	// FindExistingKeys returns the subset of keys already present for
	// chainID, used by the processor to filter duplicate candidates in
	// a single bulk query per spec.md §4.3 step 5.
	FindExistingKeys(ctx context.Context, chainID int64, keys []model.NaturalKey) (map[model.NaturalKey]bool, error)

	// InsertMany bulk-inserts events; a per-row unique-key collision is
	// treated as already-present and does not fail the call, per
	// spec.md §4.3 step 7.
	InsertMany(ctx context.Context, events []*model.FeeEvent) error

	CountByFilter(ctx context.Context, filter Filter) (int64, error)
	FindByFilter(ctx context.Context, filter Filter, sortDesc bool, skip, limit int) ([]*model.FeeEvent, error)
}
