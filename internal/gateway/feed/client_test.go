package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sniperd/internal/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, msg := range messages {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestRunDeliversValidItems(t *testing.T) {
	valid := `{
		"mint": "So11111111111111111111111111111111111111112",
		"symbol": "TEST",
		"asset_class": "memecoin",
		"liquidity_usd": 42000,
		"price_change_1h_pct": 8.5,
		"volume_24h_usd": 90000,
		"buys": 30,
		"sells": 20,
		"score": 71,
		"age_minutes": 45,
		"observed_at": "2026-03-01T12:00:00Z"
	}`
	invalid := `{"symbol": "NOPE"}`
	garbage := `not json at all`

	srv := wsServer(t, []string{garbage, invalid, valid})
	defer srv.Close()

	client, err := NewClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()

	select {
	case item := <-client.Items():
		assert.Equal(t, "TEST", item.Symbol)
		assert.Equal(t, types.ClassMemecoin, item.AssetClass)
		assert.Equal(t, 42000.0, item.LiquidityUSD)
	case <-time.After(3 * time.Second):
		t.Fatal("no item delivered")
	}

	// The invalid messages never surface.
	select {
	case item := <-client.Items():
		t.Fatalf("unexpected second item: %+v", item)
	case <-time.After(200 * time.Millisecond):
	}
}
