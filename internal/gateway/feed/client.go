// Package feed consumes the token graduation stream over a websocket.
// Incoming payloads are schema-validated before they reach the engine, so
// a malformed producer message is dropped at the edge instead of poisoning
// the open path.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sniperd/internal/logger"
	"sniperd/internal/types"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const itemSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["mint", "symbol", "asset_class", "observed_at"],
	"properties": {
		"mint":                {"type": "string", "minLength": 32},
		"symbol":              {"type": "string", "minLength": 1},
		"asset_class":         {"type": "string", "enum": ["memecoin", "synthetic"]},
		"liquidity_usd":       {"type": "number", "minimum": 0},
		"price_change_1h_pct": {"type": "number"},
		"volume_24h_usd":      {"type": "number", "minimum": 0},
		"buys":                {"type": "integer", "minimum": 0},
		"sells":               {"type": "integer", "minimum": 0},
		"score":               {"type": "number"},
		"price_sol":           {"type": "number", "minimum": 0},
		"age_minutes":         {"type": "number", "minimum": 0},
		"observed_at":         {"type": "string"}
	}
}`

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
	readTimeout  = 90 * time.Second
)

// Client maintains the websocket connection and fans validated items out
// on a buffered channel. Slow consumers drop items rather than stalling
// the read loop.
type Client struct {
	url    string
	items  chan types.FeedItem
	schema *jsonschema.Schema
}

func NewClient(url string) (*Client, error) {
	schema, err := jsonschema.CompileString("feed_item.json", itemSchema)
	if err != nil {
		return nil, fmt.Errorf("compiling feed schema failed: %w", err)
	}
	return &Client{
		url:    url,
		items:  make(chan types.FeedItem, 256),
		schema: schema,
	}, nil
}

// Items is the stream of validated graduation items.
func (c *Client) Items() <-chan types.FeedItem {
	return c.items
}

// Run connects and reconnects with exponential backoff until ctx ends.
// Feed unavailability is never fatal; the engine just sees no candidates.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.readLoop(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("Feed: connection lost (%v), reconnecting in %s", err, backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing feed failed: %w", err)
	}
	defer conn.Close()
	logger.Infof("Feed: connected to %s", c.url)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		item, ok := c.parse(raw)
		if !ok {
			continue
		}
		select {
		case c.items <- item:
		default:
			logger.Warnf("Feed: consumer behind, dropping item %s", item.Symbol)
		}
	}
}

func (c *Client) parse(raw []byte) (types.FeedItem, bool) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		logger.Warnf("Feed: dropping non-JSON message: %v", err)
		return types.FeedItem{}, false
	}
	if err := c.schema.Validate(generic); err != nil {
		logger.Warnf("Feed: dropping invalid item: %v", err)
		return types.FeedItem{}, false
	}
	var item types.FeedItem
	if err := json.Unmarshal(raw, &item); err != nil {
		logger.Warnf("Feed: dropping undecodable item: %v", err)
		return types.FeedItem{}, false
	}
	item.Mint = types.NormalizeMint(item.Mint)
	if item.ObservedAt.IsZero() {
		item.ObservedAt = time.Now()
	}
	return item, true
}
