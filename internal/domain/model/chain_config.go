package model

import (
	"time"

	"github.com/google/uuid"
)

// WorkerStatus mirrors the operator-visible lifecycle state of a chain's worker.
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusRunning  WorkerStatus = "running"
	WorkerStatusStopped  WorkerStatus = "stopped"
	WorkerStatusError    WorkerStatus = "error"
)

func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusStarting, WorkerStatusRunning, WorkerStatusStopped, WorkerStatusError:
		return true
	default:
		return false
	}
}

// Defaults for ChainConfig fields left unset by the caller.
const (
	DefaultStartingBlock int64 = 70_000_000
	DefaultScanInterval        = 30_000 * time.Millisecond
	DefaultMaxBlockRange int64 = 1_000
	DefaultRetryAttempts int   = 3

	MinScanIntervalMS = 5_000
	MaxScanIntervalMS = 300_000
	MinMaxBlockRange  = 100
	MaxMaxBlockRange  = 10_000
	MinRetryAttempts  = 1
	MaxRetryAttempts  = 10
	MaxNameLength     = 50
)

// ChainConfig is the authoritative, persisted configuration for one chain.
// ChainID is the external, operator-facing identifier; ID is the store's
// surrogate key, matching the reference project's convention of a
// uuid.UUID id alongside a business key.
type ChainConfig struct {
	ID              uuid.UUID    `db:"id"`
	ChainID         int64        `db:"chain_id"`
	Name            string       `db:"name"`
	RPCURL          string       `db:"rpc_url"`
	ContractAddress string       `db:"contract_address"`
	StartingBlock   int64        `db:"starting_block"`
	ScanInterval    time.Duration `db:"scan_interval_ms"`
	MaxBlockRange   int64        `db:"max_block_range"`
	RetryAttempts   int          `db:"retry_attempts"`
	IsEnabled       bool         `db:"is_enabled"`
	WorkerStatus    WorkerStatus `db:"worker_status"`
	LastWorkerStart *time.Time   `db:"last_worker_start"`
	LastWorkerError *string      `db:"last_worker_error"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

// ApplyDefaults fills zero-valued optional fields with spec.md §3 defaults.
func (c *ChainConfig) ApplyDefaults() {
	if c.StartingBlock == 0 {
		c.StartingBlock = DefaultStartingBlock
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = DefaultMaxBlockRange
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
}
