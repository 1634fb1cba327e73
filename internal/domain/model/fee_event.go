package model

import (
	"time"

	"github.com/google/uuid"
)

// FeeEvent is one decoded FeesCollected log. The natural key is the
// triple (ChainID, TransactionHash, LogIndex); ID is a surrogate key
// for the store, matching the reference project's id-plus-business-key
// convention.
type FeeEvent struct {
	ID              uuid.UUID `db:"id"`
	ChainID         int64     `db:"chain_id"`
	BlockNumber     int64     `db:"block_number"`
	BlockHash       string    `db:"block_hash"`
	TransactionHash string    `db:"transaction_hash"`
	LogIndex        int64     `db:"log_index"`
	Token           string    `db:"token"`
	Integrator      string    `db:"integrator"`
	IntegratorFee   string    `db:"integrator_fee"` // NUMERIC(78,0) as string
	LifiFee         string    `db:"lifi_fee"`        // NUMERIC(78,0) as string
	Timestamp       time.Time `db:"timestamp"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// NaturalKey is the natural key of the event as defined in spec.md §3/§8.
type NaturalKey struct {
	ChainID         int64
	TransactionHash string
	LogIndex        int64
}

func (e *FeeEvent) Key() NaturalKey {
	return NaturalKey{ChainID: e.ChainID, TransactionHash: e.TransactionHash, LogIndex: e.LogIndex}
}
