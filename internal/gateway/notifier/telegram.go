// Package notifier pushes trading events (opens, closes, breaker trips,
// near-trigger warnings) to a Telegram chat. Delivery is best effort and
// never blocks the engine.
package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sniperd/internal/logger"
	"sniperd/internal/types"

	"github.com/shopspring/decimal"
)

type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{BotToken: botToken, ChatID: chatID, Client: &http.Client{Timeout: 15 * time.Second}}
}

// Enabled reports whether the notifier is configured at all.
func (t *Telegram) Enabled() bool {
	return t != nil && t.BotToken != "" && t.ChatID != ""
}

// SendText sends one text message with up to 3 retries.
func (t *Telegram) SendText(text string) error {
	if !t.Enabled() {
		return fmt.Errorf("telegram notifier not configured")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	var lastErr error
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("POST", url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.Client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return lastErr
}

// notify sends in the background so callers on the trading path never wait
// on Telegram.
func (t *Telegram) notify(text string) {
	if !t.Enabled() {
		return
	}
	go func() {
		if err := t.SendText(text); err != nil {
			logger.Warnf("Notifier: send failed: %v", err)
		}
	}()
}

// PositionOpened announces a new position.
func (t *Telegram) PositionOpened(p *types.Position) {
	t.notify(fmt.Sprintf("🟢 *Opened* %s (%s)\nInvested: %s SOL\nEntry: %.10f\nPreset: %s",
		p.Symbol, p.AssetClass, p.SolInvested, p.EntryPrice, p.PresetID))
}

// PositionClosed announces a realized close.
func (t *Telegram) PositionClosed(p *types.Position) {
	icon := "🔴"
	if p.PnlSol.IsPositive() {
		icon = "🟢"
	}
	t.notify(fmt.Sprintf("%s *Closed* %s (%s)\nPnL: %.2f%% (%s SOL)\nTrigger: %s\nTx: `%s`",
		icon, p.Symbol, p.Status, p.PnlPercent, p.PnlSol, p.Status, p.ExitTx))
}

// NearTrigger warns that a position is 80% of the way to an exit.
func (t *Telegram) NearTrigger(p *types.Position, trigger types.ExitTrigger) {
	t.notify(fmt.Sprintf("⚠️ *Near trigger* %s: approaching %s at %.2f%% PnL",
		p.Symbol, trigger, p.PnlPercent))
}

// BreakerTripped announces a circuit breaker trip.
func (t *Telegram) BreakerTripped(scope, reason string, cooldownUntil time.Time) {
	t.notify(fmt.Sprintf("⛔ *Circuit breaker tripped* [%s]\n%s\nCooldown until %s",
		scope, reason, cooldownUntil.UTC().Format(time.RFC3339)))
}

// SessionSummary sends the end-of-session report.
func (t *Telegram) SessionSummary(wins, losses int, netPnl decimal.Decimal) {
	t.notify(fmt.Sprintf("📊 *Session summary*\nWins: %d  Losses: %d\nNet PnL: %s SOL",
		wins, losses, netPnl))
}
