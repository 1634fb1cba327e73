package supervisor

import (
	"context"
	"sync"

	"github.com/KostasCherv/lifi-fee-collector/internal/apperr"
	"github.com/KostasCherv/lifi-fee-collector/internal/domain/model"
	"github.com/KostasCherv/lifi-fee-collector/internal/store"
)

// fakeRegistry mirrors internal/processor's hand-written in-memory
// fake; duplicated rather than exported since it is test-only scaffolding.
type fakeRegistry struct {
	mu      sync.Mutex
	cursors map[int64]*model.ScanCursor
	configs map[int64]*model.ChainConfig
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		cursors: make(map[int64]*model.ScanCursor),
		configs: make(map[int64]*model.ChainConfig),
	}
}

func (f *fakeRegistry) UpsertChainConfig(ctx context.Context, cfg *model.ChainConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *cfg
	f.configs[cfg.ChainID] = &copied
	return nil
}

func (f *fakeRegistry) GetChainConfig(ctx context.Context, chainID int64) (*model.ChainConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[chainID]
	if !ok {
		return nil, apperr.NotFound("chain config not found")
	}
	copied := *cfg
	return &copied, nil
}

func (f *fakeRegistry) DeleteChainConfig(ctx context.Context, chainID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.configs, chainID)
	return nil
}

func (f *fakeRegistry) ListChainConfigs(ctx context.Context) ([]*model.ChainConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.ChainConfig, 0, len(f.configs))
	for _, c := range f.configs {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRegistry) UpsertScanCursor(ctx context.Context, cursor *model.ScanCursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *cursor
	f.cursors[cursor.ChainID] = &copied
	return nil
}

func (f *fakeRegistry) GetScanCursor(ctx context.Context, chainID int64) (*model.ScanCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cursors[chainID]
	if !ok {
		return nil, apperr.NotFound("scan cursor not found")
	}
	copied := *c
	return &copied, nil
}

func (f *fakeRegistry) DeleteScanCursor(ctx context.Context, chainID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cursors, chainID)
	return nil
}

func (f *fakeRegistry) ListScanCursors(ctx context.Context) ([]*model.ScanCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.ScanCursor, 0, len(f.cursors))
	for _, c := range f.cursors {
		out = append(out, c)
	}
	return out, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events map[model.NaturalKey]*model.FeeEvent
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[model.NaturalKey]*model.FeeEvent)}
}

func (f *fakeEventStore) FindExistingKeys(ctx context.Context, chainID int64, keys []model.NaturalKey) (map[model.NaturalKey]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[model.NaturalKey]bool, len(keys))
	for _, k := range keys {
		if _, ok := f.events[k]; ok {
			out[k] = true
		}
	}
	return out, nil
}

func (f *fakeEventStore) InsertMany(ctx context.Context, events []*model.FeeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range events {
		f.events[e.Key()] = e
	}
	return nil
}

func (f *fakeEventStore) CountByFilter(ctx context.Context, filter store.Filter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.events)), nil
}

func (f *fakeEventStore) FindByFilter(ctx context.Context, filter store.Filter, sortDesc bool, skip, limit int) ([]*model.FeeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.FeeEvent, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e)
	}
	return out, nil
}
