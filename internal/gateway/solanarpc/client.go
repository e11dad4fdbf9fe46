// Package solanarpc is a minimal JSON-RPC client for the bits of chain
// state the engine needs: live wallet balances for signer activation.
package solanarpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const lamportsPerSol = 1_000_000_000

// Client performs balance lookups against a Solana RPC node. Lookups are
// always live; signer activation must never trust a cached balance.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// BalanceSol returns the wallet's balance in SOL.
func (c *Client) BalanceSol(ctx context.Context, address string) (decimal.Decimal, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getBalance",
		"params":  []interface{}{address},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("encoding balance request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return decimal.Zero, fmt.Errorf("building balance request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading balance response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("balance request returned %d", resp.StatusCode)
	}
	if e := gjson.GetBytes(body, "error.message"); e.Exists() {
		return decimal.Zero, fmt.Errorf("rpc error: %s", e.String())
	}
	lamports := gjson.GetBytes(body, "result.value")
	if !lamports.Exists() {
		return decimal.Zero, fmt.Errorf("balance response missing result")
	}
	return decimal.NewFromInt(lamports.Int()).Div(decimal.NewFromInt(lamportsPerSol)), nil
}
