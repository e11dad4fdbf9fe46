package backtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"sniperd/internal/types"
	"sniperd/internal/wrgate"

	"github.com/tidwall/gjson"
)

const defaultFetchTimeout = 15 * time.Second

// HTTPProvider pulls backtest results from the lab service as JSON.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultFetchTimeout},
	}
}

// Fetch downloads and parses the full result set. Entries missing the
// win-rate lower bound get it recomputed from wins and trades, so older
// lab versions that only report point estimates remain usable.
func (p *HTTPProvider) Fetch(ctx context.Context) ([]types.BacktestMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v1/results", nil)
	if err != nil {
		return nil, fmt.Errorf("building results request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching backtest results failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backtest results request returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading results body failed: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("backtest results payload is not valid JSON")
	}

	results := gjson.GetBytes(body, "results")
	metas := make([]types.BacktestMeta, 0, int(results.Get("#").Int()))
	results.ForEach(func(_, r gjson.Result) bool {
		metas = append(metas, parseResult(r))
		return true
	})
	return metas, nil
}

func parseResult(r gjson.Result) types.BacktestMeta {
	m := types.BacktestMeta{
		PresetID:          r.Get("preset_id").String(),
		WinRatePct:        r.Get("win_rate_pct").Float(),
		WinRateLower95Pct: r.Get("win_rate_lower95_pct").Float(),
		Trades:            int(r.Get("trades").Int()),
		NetPnlPct:         r.Get("net_pnl_pct").Float(),
		ProfitFactor:      r.Get("profit_factor").Float(),
		Stage:             parseStage(r.Get("stage").String()),
		PromotionEligible: r.Get("promotion_eligible").Bool(),
		Underperformer:    r.Get("underperformer").Bool(),
		Backtested:        true,
		RefreshedAt:       time.Now(),
	}
	if !r.Get("win_rate_lower95_pct").Exists() && r.Get("wins").Exists() {
		m.WinRateLower95Pct = wrgate.WilsonLower95(int(r.Get("wins").Int()), m.Trades)
	}
	return m
}

func parseStage(raw string) types.BacktestStage {
	switch types.BacktestStage(raw) {
	case types.StageCandidate, types.StagePaper, types.StageLive, types.StageRetired:
		return types.BacktestStage(raw)
	}
	return types.StageCandidate
}
