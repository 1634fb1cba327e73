// Package processor implements the Event Processor: it composes the
// Chain Client Pool, the Block-Range Planner's output window, and the
// Event Store to load, decode, dedup, and persist one window's worth
// of FeesCollected logs per tick. Grounded on the reference project's
// internal/pipeline/pipeline.go composition of adapter+store, with
// block-timestamp lookups batched through the pool's GetBlocksByNumber-
// backed BlockTimestamps rather than fanned out per block.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/KostasCherv/lifi-fee-collector/internal/apperr"
	"github.com/KostasCherv/lifi-fee-collector/internal/chain"
	"github.com/KostasCherv/lifi-fee-collector/internal/chain/rpc"
	"github.com/KostasCherv/lifi-fee-collector/internal/domain/model"
	"github.com/KostasCherv/lifi-fee-collector/internal/metrics"
	"github.com/KostasCherv/lifi-fee-collector/internal/store"
)

// DecodeErrorThreshold implements spec.md §7's DecodeError edge case:
// individual undecodable logs are skipped with a warning, but if their
// share of a window exceeds this fraction the tick fails instead of
// silently dropping data.
var DecodeErrorThreshold = 0.5

// TimestampBatchSize and TimestampBatchPause implement spec.md §4.3
// step 4's "ordered parallel batches of size 5 with a 200ms pause
// between batches". They are variables, not consts, so tests can
// shrink the pause.
var (
	TimestampBatchSize  = 5
	TimestampBatchPause = 200 * time.Millisecond
)

// Result reports what one processWindow call accomplished.
type Result struct {
	Processed int
}

type Processor struct {
	pool     *chain.Pool
	registry store.ChainRegistry
	events   store.EventStore
}

func New(pool *chain.Pool, registry store.ChainRegistry, events store.EventStore) *Processor {
	return &Processor{pool: pool, registry: registry, events: events}
}

// ProcessWindow implements spec.md §4.3's eight-step operation. The
// cursor is only advanced to `to` if steps 1-7 complete without an
// unrecovered error; a failure anywhere before the final commit leaves
// lastProcessedBlock unchanged and records the failure on the cursor
// instead, matching the "commit discipline" note.
func (p *Processor) ProcessWindow(ctx context.Context, chainID, from, to int64) (Result, error) {
	label := strconv.FormatInt(chainID, 10)
	start := time.Now()
	defer func() {
		metrics.TickDurationSeconds.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	result, err := p.processWindow(ctx, chainID, from, to)
	if err != nil {
		metrics.TickErrorsTotal.WithLabelValues(label).Inc()
		p.recordFailure(ctx, chainID, err)
		return result, err
	}

	metrics.WindowsCommittedTotal.WithLabelValues(label).Inc()
	return result, nil
}

func (p *Processor) processWindow(ctx context.Context, chainID, from, to int64) (Result, error) {
	label := strconv.FormatInt(chainID, 10)

	logs, err := p.pool.QueryLogs(ctx, chainID, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("query logs: %w", err)
	}

	if len(logs) == 0 {
		if err := p.commitCursor(ctx, chainID, to); err != nil {
			return Result{}, fmt.Errorf("commit empty window: %w", err)
		}
		return Result{Processed: 0}, nil
	}

	candidates, blockNumbers, err := p.decodeCandidates(chainID, logs, label)
	if err != nil {
		return Result{}, err
	}

	timestamps := p.fetchBlockTimestamps(ctx, chainID, blockNumbers)
	for _, c := range candidates {
		if ts, ok := timestamps[c.BlockNumber]; ok {
			c.Timestamp = ts
		} else {
			c.Timestamp = time.Now().UTC()
		}
	}

	keys := make([]model.NaturalKey, len(candidates))
	for i, c := range candidates {
		keys[i] = c.Key()
	}
	existing, err := p.events.FindExistingKeys(ctx, chainID, keys)
	if err != nil {
		return Result{}, fmt.Errorf("find existing keys: %w", err)
	}

	survivors := make([]*model.FeeEvent, 0, len(candidates))
	for _, c := range candidates {
		if !existing[c.Key()] {
			survivors = append(survivors, c)
		} else {
			metrics.EventsDuplicateTotal.WithLabelValues(label).Inc()
		}
	}

	if len(survivors) > 0 {
		if err := p.events.InsertMany(ctx, survivors); err != nil {
			return Result{}, fmt.Errorf("insert events: %w", err)
		}
		metrics.EventsIngestedTotal.WithLabelValues(label).Add(float64(len(survivors)))
	}

	if err := p.commitCursor(ctx, chainID, to); err != nil {
		return Result{}, fmt.Errorf("commit window: %w", err)
	}

	return Result{Processed: len(survivors)}, nil
}

// decodeCandidates decodes every log into a FeeEvent candidate and
// collects the distinct block numbers needing a timestamp lookup. Per
// spec.md §7, a log that fails to decode is skipped with a warning
// rather than failing the window; only if the decode-error share of
// the window exceeds DecodeErrorThreshold does this return an error.
func (p *Processor) decodeCandidates(chainID int64, logs []*rpc.Log, label string) ([]*model.FeeEvent, []int64, error) {
	candidates := make([]*model.FeeEvent, 0, len(logs))
	seenBlocks := make(map[int64]bool)
	var blockNumbers []int64
	var decodeErrors int

	for _, log := range logs {
		decoded, err := p.pool.Decode(log)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues(label).Inc()
			decodeErrors++
			slog.Warn("skipping log that failed to decode as FeesCollected",
				"chain_id", chainID, "tx_hash", log.TxHash, "log_index", log.LogIndex, "error", err)
			continue
		}

		blockNumber, err := rpc.ParseHexInt64(log.BlockNumber)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues(label).Inc()
			decodeErrors++
			slog.Warn("skipping log with unparseable block number",
				"chain_id", chainID, "tx_hash", log.TxHash, "log_index", log.LogIndex, "error", err)
			continue
		}
		logIndex, err := rpc.ParseHexInt64(log.LogIndex)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues(label).Inc()
			decodeErrors++
			slog.Warn("skipping log with unparseable log index",
				"chain_id", chainID, "tx_hash", log.TxHash, "error", err)
			continue
		}

		candidates = append(candidates, &model.FeeEvent{
			ChainID:         chainID,
			BlockNumber:     blockNumber,
			BlockHash:       log.BlockHash,
			TransactionHash: log.TxHash,
			LogIndex:        logIndex,
			Token:           decoded.Token,
			Integrator:      decoded.Integrator,
			IntegratorFee:   decoded.IntegratorFee,
			LifiFee:         decoded.LifiFee,
		})

		if !seenBlocks[blockNumber] {
			seenBlocks[blockNumber] = true
			blockNumbers = append(blockNumbers, blockNumber)
		}
	}

	if decodeErrors > 0 && float64(decodeErrors)/float64(len(logs)) > DecodeErrorThreshold {
		return nil, nil, apperr.Decode(
			fmt.Sprintf("decode error rate %d/%d exceeds sanity threshold", decodeErrors, len(logs)), nil)
	}

	return candidates, blockNumbers, nil
}

// fetchBlockTimestamps fetches each unique block's timestamp in
// ordered batches of TimestampBatchSize, one JSON-RPC batch round trip
// per batch via the pool's GetBlocksByNumber-backed BlockTimestamps,
// pausing TimestampBatchPause between batches; a per-block or
// whole-batch failure falls back to "now" rather than failing the
// whole window, per spec.md §4.3 step 4.
func (p *Processor) fetchBlockTimestamps(ctx context.Context, chainID int64, blockNumbers []int64) map[int64]time.Time {
	result := make(map[int64]time.Time, len(blockNumbers))
	now := time.Now().UTC()

	for start := 0; start < len(blockNumbers); start += TimestampBatchSize {
		end := start + TimestampBatchSize
		if end > len(blockNumbers) {
			end = len(blockNumbers)
		}
		batch := blockNumbers[start:end]

		timestamps, err := p.pool.BlockTimestamps(ctx, chainID, batch)
		for _, blockNumber := range batch {
			if err != nil {
				result[blockNumber] = now
				continue
			}
			if unixSeconds, ok := timestamps[blockNumber]; ok {
				result[blockNumber] = time.Unix(unixSeconds, 0).UTC()
			} else {
				result[blockNumber] = now
			}
		}

		if end < len(blockNumbers) {
			select {
			case <-time.After(TimestampBatchPause):
			case <-ctx.Done():
				return result
			}
		}
	}

	return result
}

func (p *Processor) commitCursor(ctx context.Context, chainID, to int64) error {
	cursor, err := p.registry.GetScanCursor(ctx, chainID)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	now := time.Now().UTC()
	cursor.LastProcessedBlock = to
	cursor.LastRunAt = &now
	cursor.ErrorCount = 0
	cursor.LastError = nil

	return p.registry.UpsertScanCursor(ctx, cursor)
}

// recordFailure increments the cursor's errorCount and records the
// failure message without advancing lastProcessedBlock, matching the
// "commit discipline" note in spec.md §4.3.
func (p *Processor) recordFailure(ctx context.Context, chainID int64, processErr error) {
	cursor, err := p.registry.GetScanCursor(ctx, chainID)
	if err != nil {
		return
	}

	now := time.Now().UTC()
	cursor.ErrorCount++
	msg := processErr.Error()
	cursor.LastError = &msg
	cursor.LastRunAt = &now

	_ = p.registry.UpsertScanCursor(ctx, cursor)
}
