package model

import (
	"time"

	"github.com/google/uuid"
)

// ScanCursor is the per-chain progress marker. lastProcessedBlock is
// monotonically non-decreasing across successful window commits
// (spec.md §3, §8 "Monotone cursor").
type ScanCursor struct {
	ID                 uuid.UUID    `db:"id"`
	ChainID            int64        `db:"chain_id"`
	LastProcessedBlock int64        `db:"last_processed_block"`
	IsActive           bool         `db:"is_active"`
	LastRunAt          *time.Time   `db:"last_run_at"`
	ErrorCount         int          `db:"error_count"`
	LastError          *string      `db:"last_error"`
	WorkerStatus       WorkerStatus `db:"worker_status"`
	LastWorkerStart    *time.Time   `db:"last_worker_start"`
	LastWorkerError    *string      `db:"last_worker_error"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

// NewCursor builds the initial cursor for a freshly added chain. The
// first window must begin at startingBlock (spec.md §4.3), so the
// cursor is seeded one block behind it (resolved Open Question, see
// DESIGN.md).
func NewCursor(chainID, startingBlock int64) *ScanCursor {
	return &ScanCursor{
		ChainID:            chainID,
		LastProcessedBlock: startingBlock - 1,
		IsActive:           true,
		WorkerStatus:       WorkerStatusStarting,
	}
}
