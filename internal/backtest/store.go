// Package backtest maintains the latest backtest metadata per preset. The
// store is a read-mostly snapshot refreshed from a provider; strategy
// selection reads it on every evaluation.
package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sniperd/internal/logger"
	"sniperd/internal/types"
)

// Provider fetches a fresh metadata set from wherever backtests run.
type Provider interface {
	Fetch(ctx context.Context) ([]types.BacktestMeta, error)
}

// MetaStore holds the last successfully fetched metadata set. A failed
// refresh keeps the previous snapshot so selection degrades to stale data
// instead of no data.
type MetaStore struct {
	provider Provider

	mu          sync.RWMutex
	metas       map[string]types.BacktestMeta
	refreshedAt time.Time
}

func NewMetaStore(provider Provider) *MetaStore {
	return &MetaStore{
		provider: provider,
		metas:    make(map[string]types.BacktestMeta),
	}
}

// Refresh replaces the snapshot with the provider's latest set.
func (s *MetaStore) Refresh(ctx context.Context) error {
	if s.provider == nil {
		return fmt.Errorf("meta store has no provider")
	}
	metas, err := s.provider.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("refreshing backtest metadata failed: %w", err)
	}
	next := make(map[string]types.BacktestMeta, len(metas))
	for _, m := range metas {
		if m.PresetID == "" {
			continue
		}
		next[m.PresetID] = m
	}

	s.mu.Lock()
	s.metas = next
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	logger.Infof("MetaStore: refreshed %d backtest entries", len(next))
	return nil
}

// Seed installs metadata directly, used at startup and in tests.
func (s *MetaStore) Seed(metas []types.BacktestMeta) {
	next := make(map[string]types.BacktestMeta, len(metas))
	for _, m := range metas {
		if m.PresetID == "" {
			continue
		}
		next[m.PresetID] = m
	}
	s.mu.Lock()
	s.metas = next
	s.refreshedAt = time.Now()
	s.mu.Unlock()
}

// Get returns the metadata for a preset. The second return is false when
// the preset has never been backtested.
func (s *MetaStore) Get(presetID string) (types.BacktestMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metas[presetID]
	return m, ok
}

// All returns a copy of the current snapshot.
func (s *MetaStore) All() []types.BacktestMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.BacktestMeta, 0, len(s.metas))
	for _, m := range s.metas {
		out = append(out, m)
	}
	return out
}

// RefreshedAt reports when the snapshot was last replaced.
func (s *MetaStore) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}
