package backtest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"sniperd/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	metas []types.BacktestMeta
	err   error
}

func (p *stubProvider) Fetch(context.Context) ([]types.BacktestMeta, error) {
	return p.metas, p.err
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	provider := &stubProvider{metas: []types.BacktestMeta{
		{PresetID: "a", Trades: 40, Backtested: true},
		{PresetID: "b", Trades: 60, Backtested: true},
	}}
	store := NewMetaStore(provider)

	require.NoError(t, store.Refresh(context.Background()))

	m, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, 40, m.Trades)
	assert.Len(t, store.All(), 2)

	provider.metas = []types.BacktestMeta{{PresetID: "b", Trades: 61, Backtested: true}}
	require.NoError(t, store.Refresh(context.Background()))

	_, ok = store.Get("a")
	assert.False(t, ok)
	m, _ = store.Get("b")
	assert.Equal(t, 61, m.Trades)
}

func TestRefreshFailureKeepsOldSnapshot(t *testing.T) {
	provider := &stubProvider{metas: []types.BacktestMeta{{PresetID: "a", Backtested: true}}}
	store := NewMetaStore(provider)
	require.NoError(t, store.Refresh(context.Background()))

	provider.err = fmt.Errorf("lab unreachable")
	assert.Error(t, store.Refresh(context.Background()))

	_, ok := store.Get("a")
	assert.True(t, ok)
}

func TestHTTPProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/results", r.URL.Path)
		fmt.Fprint(w, `{"results":[
			{"preset_id":"x","win_rate_pct":72,"win_rate_lower95_pct":64.5,"trades":50,"net_pnl_pct":14.2,"profit_factor":1.8,"stage":"live","promotion_eligible":true},
			{"preset_id":"y","win_rate_pct":80,"wins":8,"trades":10,"net_pnl_pct":5,"stage":"paper"}
		]}`)
	}))
	defer srv.Close()

	metas, err := NewHTTPProvider(srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 2)

	assert.Equal(t, "x", metas[0].PresetID)
	assert.Equal(t, 64.5, metas[0].WinRateLower95Pct)
	assert.Equal(t, types.StageLive, metas[0].Stage)
	assert.True(t, metas[0].Backtested)

	// Lower bound recomputed from wins/trades when absent: 8/10 at 95%
	// confidence is well under the 80% point estimate.
	assert.Equal(t, "y", metas[1].PresetID)
	assert.Greater(t, metas[1].WinRateLower95Pct, 40.0)
	assert.Less(t, metas[1].WinRateLower95Pct, 80.0)
	assert.Equal(t, types.StagePaper, metas[1].Stage)
}

func TestHTTPProviderRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL).Fetch(context.Background())
	assert.Error(t, err)
}
