// Package livehttp exposes the engine's read models and operator actions
// over HTTP: positions, the strategy gate selection, risk state, and
// manual close / breaker reset overrides.
package livehttp

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sniperd/internal/agent"
	"sniperd/internal/executor"
	"sniperd/internal/market"
	"sniperd/internal/risk"
	"sniperd/internal/store/gormstore"
	"sniperd/internal/types"
	"sniperd/internal/wrgate"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ManualCloser executes a user-initiated close for one position.
type ManualCloser interface {
	ClosePosition(ctx context.Context, p *types.Position, trigger types.ExitTrigger) error
}

// KeySource supplies the delegated autonomous key at activation time.
type KeySource interface {
	DelegatedKey() (ed25519.PrivateKey, error)
}

// HistoryStore reads closed positions and the trade operation audit trail.
type HistoryStore interface {
	ListTradeOperations(ctx context.Context, positionID string) ([]gormstore.TradeOperation, error)
	ListPositions(ctx context.Context, limit int) ([]*types.Position, error)
	ClosedSince(ctx context.Context, cutoff time.Time) ([]*types.Position, error)
}

// Router wires the engine read models into gin handlers.
type Router struct {
	Book      *agent.Book
	Session   *wrgate.Session
	Breakers  *risk.BreakerRegistry
	Budget    *risk.Budget
	Signers   *risk.SignerSession
	Closer    ManualCloser
	Store     HistoryStore
	Reference *market.ReferencePrice
	Keys      KeySource
}

// Register mounts the API under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/positions", r.handlePositions)
	group.GET("/positions/:id", r.handlePositionByID)
	group.POST("/positions/:id/close", r.handleManualClose)
	group.GET("/positions/:id/operations", r.handlePositionOperations)
	group.GET("/wrgate", r.handleWrGate)
	group.POST("/wrgate/suggest", r.handleSuggest)
	group.GET("/risk", r.handleRisk)
	group.POST("/risk/breakers/:scope/reset", r.handleBreakerReset)
	group.GET("/budget", r.handleBudget)
	group.GET("/summary", r.handleSummary)
	group.GET("/signer", r.handleSigner)
	group.POST("/signer/interactive", r.handleSwitchInteractive)
	group.POST("/signer/autonomous", r.handleActivateAutonomous)
}

func (r *Router) handlePositions(c *gin.Context) {
	scope := c.DefaultQuery("scope", "open")
	if scope == "open" {
		c.JSON(http.StatusOK, gin.H{"positions": r.Book.Open()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	positions, err := r.Store.ListPositions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (r *Router) handlePositionByID(c *gin.Context) {
	id := c.Param("id")
	if p, ok := r.Book.Get(id); ok {
		c.JSON(http.StatusOK, p)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
}

func (r *Router) handleManualClose(c *gin.Context) {
	id := c.Param("id")
	p, ok := r.Book.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
		return
	}
	if p.CurrentStatus().IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "position already closed"})
		return
	}
	if err := r.Closer.ClosePosition(c.Request.Context(), p, types.TriggerManual); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, executor.ErrAlreadyClosing) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (r *Router) handlePositionOperations(c *gin.Context) {
	ops, err := r.Store.ListTradeOperations(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

func (r *Router) handleWrGate(c *gin.Context) {
	raw := c.DefaultQuery("class", string(types.ClassMemecoin))
	class, ok := types.ParseAssetClass(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown asset class: " + raw})
		return
	}
	c.JSON(http.StatusOK, r.Session.Evaluate(class))
}

// handleSuggest is the advisory dry-run: given a feed item, report which
// strategy would trade it. It never opens anything.
func (r *Router) handleSuggest(c *gin.Context) {
	var item types.FeedItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feed item: " + err.Error()})
		return
	}
	item.Mint = types.NormalizeMint(item.Mint)
	c.JSON(http.StatusOK, gin.H{"strategy_id": r.Session.SuggestStrategy(item)})
}

func (r *Router) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": r.Breakers.Snapshot()})
}

func (r *Router) handleBreakerReset(c *gin.Context) {
	scope := strings.TrimSpace(c.Param("scope"))
	if scope == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope is required"})
		return
	}
	r.Breakers.Reset(scope)
	c.JSON(http.StatusOK, gin.H{"breakers": r.Breakers.Snapshot()})
}

func (r *Router) handleBudget(c *gin.Context) {
	c.JSON(http.StatusOK, r.Budget.View())
}

// handleSummary aggregates the closes realized in the trailing window. USD
// figures appear only when a reference price is available.
func (r *Router) handleSummary(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
		return
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	closed, err := r.Store.ClosedSince(c.Request.Context(), cutoff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
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
	resp := gin.H{
		"window_hours": hours,
		"closed":       len(closed),
		"wins":         wins,
		"losses":       losses,
		"net_pnl_sol":  net,
	}
	if r.Reference != nil {
		if usd, ok := r.Reference.ToUSD(net); ok {
			resp["net_pnl_usd"] = usd
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleSigner(c *gin.Context) {
	c.JSON(http.StatusOK, r.Signers.State())
}

func (r *Router) handleSwitchInteractive(c *gin.Context) {
	r.Signers.SwitchToInteractive()
	c.JSON(http.StatusOK, r.Signers.State())
}

// handleActivateAutonomous enters autonomous mode. The operator supplies
// the expected wallet address and explicit limits on every activation; the
// delegated key comes from the configured keypair file.
func (r *Router) handleActivateAutonomous(c *gin.Context) {
	var req struct {
		ExpectedAddress   string  `json:"expected_address"`
		BudgetSol         float64 `json:"budget_sol"`
		PerTradeSol       float64 `json:"per_trade_sol"`
		MaxOpenPositions  int     `json:"max_open_positions"`
		MaxDailyVolumeSol float64 `json:"max_daily_volume_sol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid activation request: " + err.Error()})
		return
	}
	if r.Keys == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no delegated key configured"})
		return
	}
	key, err := r.Keys.DelegatedKey()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "loading delegated key failed: " + err.Error()})
		return
	}
	limits := risk.Limits{
		BudgetSol:         decimal.NewFromFloat(req.BudgetSol),
		PerTradeSol:       decimal.NewFromFloat(req.PerTradeSol),
		MaxOpenPositions:  req.MaxOpenPositions,
		MaxDailyVolumeSol: decimal.NewFromFloat(req.MaxDailyVolumeSol),
	}
	if err := r.Signers.ActivateAutonomous(c.Request.Context(), key, req.ExpectedAddress, limits); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, risk.ErrBalanceCheck) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.Signers.State())
}
