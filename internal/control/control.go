// Package control implements the Control Plane: the boundary the API
// layer calls into (spec.md §4.5) for add/start/stop/update/delete/
// status. It validates input, probes RPC reachability through the
// Chain Client Pool, mutates the Chain Registry, and instructs the
// Worker Supervisor. Grounded on spec.md §4.5's operation table
// directly; the validate-then-probe-then-mutate sequencing follows the
// reference project's inline validate-in-handler convention
// (internal/admin/server.go), and every returned error is an
// internal/apperr discriminated Kind rather than a bare error.
package control

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/KostasCherv/lifi-fee-collector/internal/apperr"
	"github.com/KostasCherv/lifi-fee-collector/internal/chain"
	"github.com/KostasCherv/lifi-fee-collector/internal/domain/model"
	"github.com/KostasCherv/lifi-fee-collector/internal/store"
	"github.com/KostasCherv/lifi-fee-collector/internal/supervisor"
)

// Invalidator is the cache-invalidation hook every mutating operation
// calls after a successful commit. Modeled as an interface (rather
// than importing internal/cache directly) so tests can substitute a
// no-op without a Redis dependency.
type Invalidator interface {
	Invalidate(ctx context.Context, chainID int64) error
}

// Plane is the Control Plane. It owns no state of its own beyond its
// collaborators: everything durable lives in the Chain Registry.
type Plane struct {
	registry    store.ChainRegistry
	pool        *chain.Pool
	supervisor  *supervisor.Supervisor
	invalidator Invalidator
}

func New(registry store.ChainRegistry, pool *chain.Pool, sup *supervisor.Supervisor, invalidator Invalidator) *Plane {
	return &Plane{registry: registry, pool: pool, supervisor: sup, invalidator: invalidator}
}

// AddInput is the payload for Add; every field is required except
// those spec.md §4.5 lets default.
type AddInput struct {
	ChainID         int64
	Name            string
	RPCURL          string
	ContractAddress string
	StartingBlock   int64
	ScanIntervalMS  int64
	MaxBlockRange   int64
	RetryAttempts   int
}

// UpdateInput is Update's patch; nil fields are left unchanged.
type UpdateInput struct {
	Name            *string
	RPCURL          *string
	ContractAddress *string
	ScanIntervalMS  *int64
	MaxBlockRange   *int64
	RetryAttempts   *int
}

// Status is the snapshot Status() returns: ChainConfig joined with its
// ScanCursor, per spec.md §4.5.
type Status struct {
	Config *model.ChainConfig
	Cursor *model.ScanCursor
}

// Add implements spec.md §4.5's add(cfg): validate, probe, persist
// ChainConfig+ScanCursor, then Supervisor.start. If start fails the
// config is kept with workerStatus=error rather than rolled back.
func (p *Plane) Add(ctx context.Context, in AddInput) (*model.ChainConfig, error) {
	if err := validateChainID(in.ChainID); err != nil {
		return nil, err
	}
	if _, err := p.registry.GetChainConfig(ctx, in.ChainID); err == nil {
		return nil, apperr.Conflict(fmt.Sprintf("chain %d already exists", in.ChainID))
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, apperr.Internal("check existing chain config", err)
	}

	cfg := &model.ChainConfig{
		ChainID:         in.ChainID,
		Name:            in.Name,
		RPCURL:          in.RPCURL,
		ContractAddress: in.ContractAddress,
		StartingBlock:   in.StartingBlock,
		ScanInterval:    time.Duration(in.ScanIntervalMS) * time.Millisecond,
		MaxBlockRange:   in.MaxBlockRange,
		RetryAttempts:   in.RetryAttempts,
	}
	cfg.ApplyDefaults()

	if err := validateChainConfig(cfg); err != nil {
		return nil, err
	}
	if err := p.pool.Probe(ctx, cfg.RPCURL); err != nil {
		return nil, err
	}

	cfg.IsEnabled = true
	cfg.WorkerStatus = model.WorkerStatusStarting

	if err := p.registry.UpsertChainConfig(ctx, cfg); err != nil {
		return nil, apperr.Store("persist chain config", err)
	}
	if err := p.registry.UpsertScanCursor(ctx, model.NewCursor(cfg.ChainID, cfg.StartingBlock)); err != nil {
		return nil, apperr.Store("persist scan cursor", err)
	}

	if err := p.supervisor.Start(ctx, cfg); err != nil {
		cfg.WorkerStatus = model.WorkerStatusError
		msg := err.Error()
		cfg.LastWorkerError = &msg
		_ = p.registry.UpsertChainConfig(ctx, cfg)
	}

	p.invalidate(ctx, cfg.ChainID)
	return cfg, nil
}

// Start implements spec.md §4.5's start(chainId).
func (p *Plane) Start(ctx context.Context, chainID int64) error {
	cfg, err := p.registry.GetChainConfig(ctx, chainID)
	if err != nil {
		return err
	}

	cfg.IsEnabled = true
	if err := p.registry.UpsertChainConfig(ctx, cfg); err != nil {
		return apperr.Store("persist chain config", err)
	}
	if err := p.supervisor.Start(ctx, cfg); err != nil {
		return err
	}

	p.invalidate(ctx, chainID)
	return nil
}

// Stop implements spec.md §4.5's stop(chainId).
func (p *Plane) Stop(ctx context.Context, chainID int64) error {
	cfg, err := p.registry.GetChainConfig(ctx, chainID)
	if err != nil {
		return err
	}

	if err := p.supervisor.Stop(ctx, chainID); err != nil {
		return err
	}

	cfg.IsEnabled = false
	if err := p.registry.UpsertChainConfig(ctx, cfg); err != nil {
		return apperr.Store("persist chain config", err)
	}

	cursor, err := p.registry.GetScanCursor(ctx, chainID)
	if err == nil {
		cursor.IsActive = false
		if err := p.registry.UpsertScanCursor(ctx, cursor); err != nil {
			return apperr.Store("persist scan cursor", err)
		}
	}

	p.invalidate(ctx, chainID)
	return nil
}

// Update implements spec.md §4.5's update(chainId, patch): merges the
// patch, re-probes if rpcUrl changed, re-ensures the pool handle if
// rpcUrl or contractAddress changed, and re-schedules the ticker if
// scanInterval changed on a running chain.
func (p *Plane) Update(ctx context.Context, chainID int64, patch UpdateInput) (*model.ChainConfig, error) {
	cfg, err := p.registry.GetChainConfig(ctx, chainID)
	if err != nil {
		return nil, err
	}

	rpcChanged := patch.RPCURL != nil && *patch.RPCURL != cfg.RPCURL
	contractChanged := patch.ContractAddress != nil && *patch.ContractAddress != cfg.ContractAddress
	intervalChanged := false

	if patch.Name != nil {
		cfg.Name = *patch.Name
	}
	if patch.RPCURL != nil {
		cfg.RPCURL = *patch.RPCURL
	}
	if patch.ContractAddress != nil {
		cfg.ContractAddress = *patch.ContractAddress
	}
	if patch.MaxBlockRange != nil {
		cfg.MaxBlockRange = *patch.MaxBlockRange
	}
	if patch.RetryAttempts != nil {
		cfg.RetryAttempts = *patch.RetryAttempts
	}
	if patch.ScanIntervalMS != nil {
		newInterval := time.Duration(*patch.ScanIntervalMS) * time.Millisecond
		intervalChanged = newInterval != cfg.ScanInterval
		cfg.ScanInterval = newInterval
	}

	if err := validateChainConfig(cfg); err != nil {
		return nil, err
	}

	if rpcChanged {
		if err := p.pool.Probe(ctx, cfg.RPCURL); err != nil {
			return nil, err
		}
	}

	if err := p.registry.UpsertChainConfig(ctx, cfg); err != nil {
		return nil, apperr.Store("persist chain config", err)
	}

	if rpcChanged || contractChanged {
		if err := p.pool.Ensure(ctx, cfg.ChainID, cfg.RPCURL, cfg.ContractAddress, cfg.RetryAttempts); err != nil {
			return nil, err
		}
	}
	if intervalChanged && p.supervisor.IsRunning(cfg.ChainID) {
		if err := p.supervisor.UpdateInterval(cfg.ChainID, cfg.ScanInterval); err != nil {
			return nil, err
		}
	}

	p.invalidate(ctx, chainID)
	return cfg, nil
}

// Delete implements spec.md §4.5's delete(chainId): stops the worker
// if running, removes ChainConfig and ScanCursor, and retains
// FeeEvent records for historical queries (the Event Store is never
// touched here).
func (p *Plane) Delete(ctx context.Context, chainID int64) error {
	cfg, err := p.registry.GetChainConfig(ctx, chainID)
	if err != nil {
		return err
	}

	if p.supervisor.IsRunning(chainID) {
		if err := p.supervisor.Stop(ctx, chainID); err != nil {
			return err
		}
	}

	if err := p.registry.DeleteScanCursor(ctx, chainID); err != nil {
		return apperr.Store("delete scan cursor", err)
	}
	if err := p.registry.DeleteChainConfig(ctx, cfg.ChainID); err != nil {
		return apperr.Store("delete chain config", err)
	}

	p.invalidate(ctx, chainID)
	return nil
}

// Status implements spec.md §4.5's status(chainId): a snapshot joining
// ChainConfig with ScanCursor.
func (p *Plane) Status(ctx context.Context, chainID int64) (*Status, error) {
	cfg, err := p.registry.GetChainConfig(ctx, chainID)
	if err != nil {
		return nil, err
	}
	cursor, err := p.registry.GetScanCursor(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return &Status{Config: cfg, Cursor: cursor}, nil
}

// StatusAll implements spec.md §4.5's status() (no argument): a
// snapshot of every configured chain.
func (p *Plane) StatusAll(ctx context.Context) ([]*Status, error) {
	configs, err := p.registry.ListChainConfigs(ctx)
	if err != nil {
		return nil, apperr.Store("list chain configs", err)
	}

	statuses := make([]*Status, 0, len(configs))
	for _, cfg := range configs {
		cursor, err := p.registry.GetScanCursor(ctx, cfg.ChainID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, &Status{Config: cfg, Cursor: cursor})
	}
	return statuses, nil
}

func (p *Plane) invalidate(ctx context.Context, chainID int64) {
	if p.invalidator == nil {
		return
	}
	_ = p.invalidator.Invalidate(ctx, chainID)
}

func validateChainID(chainID int64) error {
	if chainID <= 0 {
		return apperr.Validation("chainId must be a positive integer")
	}
	return nil
}

// validateChainConfig enforces spec.md §4.5's validation schema and, on
// success, normalizes cfg.ContractAddress to lowercase in place so both
// Add and Update persist the normalized form, per spec.md §3's
// ChainConfig invariant.
func validateChainConfig(cfg *model.ChainConfig) error {
	if err := validateChainID(cfg.ChainID); err != nil {
		return err
	}
	if len(cfg.Name) == 0 || len(cfg.Name) > model.MaxNameLength {
		return apperr.Validationf("name must be 1..%d characters", model.MaxNameLength)
	}
	if !isAbsoluteURL(cfg.RPCURL) {
		return apperr.Validation("rpcUrl must be an absolute URL")
	}
	normalized, err := model.NormalizeAddress(cfg.ContractAddress)
	if err != nil {
		return apperr.Validation("contractAddress must match ^0x[a-fA-F0-9]{40}$")
	}
	cfg.ContractAddress = normalized
	if cfg.StartingBlock <= 0 {
		return apperr.Validation("startingBlock must be a positive integer")
	}
	intervalMS := cfg.ScanInterval.Milliseconds()
	if intervalMS < model.MinScanIntervalMS || intervalMS > model.MaxScanIntervalMS {
		return apperr.Validationf("scanInterval must be %d..%d ms", model.MinScanIntervalMS, model.MaxScanIntervalMS)
	}
	if cfg.MaxBlockRange < model.MinMaxBlockRange || cfg.MaxBlockRange > model.MaxMaxBlockRange {
		return apperr.Validationf("maxBlockRange must be %d..%d", model.MinMaxBlockRange, model.MaxMaxBlockRange)
	}
	if cfg.RetryAttempts < model.MinRetryAttempts || cfg.RetryAttempts > model.MaxRetryAttempts {
		return apperr.Validationf("retryAttempts must be %d..%d", model.MinRetryAttempts, model.MaxRetryAttempts)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && strings.TrimSpace(u.Host) != ""
}
