// Package jupiter is the quote/swap gateway against the aggregator API.
// Realized trade values always come from the swap output amount, never
// from the monitored mark price.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"sniperd/internal/logger"
	"sniperd/internal/pkg/circuit"
	"sniperd/internal/signer"

	"github.com/tidwall/gjson"
)

// WrappedSolMint is the mint positions are priced and settled in.
const WrappedSolMint = "So11111111111111111111111111111111111111112"

// ErrNoRoute means the aggregator found no path at the requested slippage.
// Callers retry at a higher tolerance before giving up.
var ErrNoRoute = errors.New("no swap route available")

// Quote is one priced route. OutAmount is authoritative for realized value.
type Quote struct {
	InputMint      string  `json:"input_mint"`
	OutputMint     string  `json:"output_mint"`
	InAmount       uint64  `json:"in_amount"`
	OutAmount      uint64  `json:"out_amount"`
	SlippageBps    int     `json:"slippage_bps"`
	PriceImpactPct float64 `json:"price_impact_pct"`

	raw []byte // full quote response, passed back on swap
}

// SwapResult is the outcome of one executed swap.
type SwapResult struct {
	Success bool
	TxHash  string
	Err     string
}

// Client talks to the aggregator HTTP API behind a circuit breaker, so a
// dead quote service degrades to "no route" instead of hanging every tick.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuit.Breaker
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: circuit.NewBreaker("jupiter", 5, 30*time.Second),
	}
}

// GetQuote prices a swap of amount base units at the given slippage
// tolerance. Returns ErrNoRoute when the aggregator has no path.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	var quote *Quote
	err := c.breaker.Execute(func() error {
		q, err := c.fetchQuote(ctx, inputMint, outputMint, amount, slippageBps)
		if err != nil {
			if errors.Is(err, ErrNoRoute) {
				// A missing route is a market condition, not a service fault.
				quote = nil
				return nil
			}
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			return nil, fmt.Errorf("quote service unavailable: %w", err)
		}
		return nil, err
	}
	if quote == nil {
		return nil, ErrNoRoute
	}
	return quote, nil
}

func (c *Client) fetchQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	url := fmt.Sprintf("%s/v6/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.baseURL, inputMint, outputMint, amount, slippageBps)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building quote request failed: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote response failed: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		msg := gjson.GetBytes(body, "error").String()
		logger.Debugf("Jupiter: no route %s -> %s at %d bps (%s)", inputMint, outputMint, slippageBps, msg)
		return nil, ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote request returned %d", resp.StatusCode)
	}

	out := gjson.GetBytes(body, "outAmount")
	if !out.Exists() || out.Uint() == 0 {
		return nil, ErrNoRoute
	}
	inAmount, _ := strconv.ParseUint(gjson.GetBytes(body, "inAmount").String(), 10, 64)
	q := &Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       inAmount,
		OutAmount:      out.Uint(),
		SlippageBps:    slippageBps,
		PriceImpactPct: gjson.GetBytes(body, "priceImpactPct").Float(),
		raw:            body,
	}
	return q, nil
}

// ExecuteSwap builds the swap transaction for the quote, has it signed,
// and submits it. Signing runs outside the breaker: a denied or timed-out
// approval is not a gateway fault.
func (c *Client) ExecuteSwap(ctx context.Context, quote *Quote, sgn signer.Signer, req signer.Request) (*SwapResult, error) {
	if quote == nil {
		return nil, fmt.Errorf("quote is required")
	}
	var txPayload []byte
	err := c.breaker.Execute(func() error {
		p, err := c.buildSwap(ctx, quote, sgn)
		if err != nil {
			return err
		}
		txPayload = p
		return nil
	})
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			return nil, fmt.Errorf("swap service unavailable: %w", err)
		}
		return nil, err
	}

	req.Payload = txPayload
	signature, err := sgn.Sign(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("signing swap failed: %w", err)
	}

	var result *SwapResult
	err = c.breaker.Execute(func() error {
		r, err := c.submit(ctx, txPayload, signature)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			return nil, fmt.Errorf("swap service unavailable: %w", err)
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) buildSwap(ctx context.Context, quote *Quote, sgn signer.Signer) ([]byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"quoteResponse": json.RawMessage(quote.raw),
		"userPublicKey": sgn.Address(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding swap request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v6/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building swap request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swap request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading swap response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap request returned %d: %s", resp.StatusCode, gjson.GetBytes(body, "error").String())
	}

	txPayload := []byte(gjson.GetBytes(body, "swapTransaction").String())
	if len(txPayload) == 0 {
		return nil, fmt.Errorf("swap response missing transaction")
	}
	return txPayload, nil
}

func (c *Client) submit(ctx context.Context, tx, signature []byte) (*SwapResult, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"transaction": string(tx),
		"signature":   signature,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding submit request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v6/swap/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building submit request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading submit response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("submit request returned %d: %s", resp.StatusCode, gjson.GetBytes(body, "error").String())
	}
	return &SwapResult{Success: true, TxHash: gjson.GetBytes(body, "txid").String()}, nil
}
