package app

import (
	"context"
	"time"

	"sniperd/internal/gateway/notifier"
	"sniperd/internal/logger"
	"sniperd/internal/store/gormstore"

	"github.com/shopspring/decimal"
)

// StartupSummary is printed once when the app starts.
type StartupSummary struct {
	Env           string
	HTTPAddr      string
	Presets       int
	OpenPositions int
	SignerMode    string
}

func (s *StartupSummary) Print() {
	if s == nil {
		return
	}
	logger.Infof("sniperd starting (env=%s)", s.Env)
	logger.Infof("- http: %s", s.HTTPAddr)
	logger.Infof("- presets: %d", s.Presets)
	logger.Infof("- open positions restored: %d", s.OpenPositions)
	logger.Infof("- signer mode: %s", s.SignerMode)
}

// reportSession summarizes the closes realized since the app started and
// pushes the result to the notifier.
func reportSession(ctx context.Context, store *gormstore.GormStore, tg *notifier.Telegram, since time.Time) {
	closed, err := store.ClosedSince(ctx, since)
	if err != nil {
		logger.Warnf("App: session summary query failed: %v", err)
		return
	}
	if len(closed) == 0 {
		logger.Infof("App: no positions closed this session")
		return
	}
	wins, losses := 0, 0
	net := decimal.Zero
	for _, p := range closed {
		if p.PnlSol.IsPositive() {
			wins++
		} else {
			losses++
		}
		net = net.Add(p.PnlSol)
	}
	logger.Infof("App: session closed %d positions (%d wins, %d losses, net %s SOL)",
		len(closed), wins, losses, net)
	tg.SessionSummary(wins, losses, net)
}
