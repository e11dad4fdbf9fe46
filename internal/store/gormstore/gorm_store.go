// Package gormstore implements the persistent state store on Gorm + SQLite.
// Open positions, budget state, and breaker state survive process restarts;
// trade operations form an append-only audit log.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	storemodel "sniperd/internal/store/model"
	"sniperd/internal/types"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type positionModel = storemodel.PositionModel
type budgetStateModel = storemodel.BudgetStateModel
type breakerStateModel = storemodel.BreakerStateModel
type tradeOperationModel = storemodel.TradeOperationModel

// TradeOperation is one audit log entry.
type TradeOperation struct {
	PositionID string
	Operation  string // "open", "close", "close_retry"
	Success    bool
	TxHash     string
	Error      string
	Details    map[string]interface{}
	CreatedAt  time.Time
}

// GormStore implements position, budget, and breaker persistence.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (or creates) the sqlite database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path must not be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&positionModel{},
		&budgetStateModel{},
		&breakerStateModel{},
		&tradeOperationModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP
	// reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- Positions -------------------------

// UpsertPosition writes the full position row, inserting or replacing.
func (s *GormStore) UpsertPosition(ctx context.Context, p *types.Position) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("position id is required")
	}
	// Snapshot under the position lock; the live instance may still be
	// marked by the monitor while this row is written.
	m, err := newPositionModel(p.Clone())
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// GetPosition loads one position by id.
func (s *GormStore) GetPosition(ctx context.Context, id string) (*types.Position, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var m positionModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return positionModelToType(m)
}

// ListOpenPositions returns every position with status open, oldest first.
// Used by startup reconciliation.
func (s *GormStore) ListOpenPositions(ctx context.Context) ([]*types.Position, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []positionModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(types.StatusOpen)).
		Order("entry_time ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.Position, 0, len(models))
	for _, m := range models {
		p, err := positionModelToType(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListPositions returns the most recent positions regardless of status.
func (s *GormStore) ListPositions(ctx context.Context, limit int) ([]*types.Position, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	var models []positionModel
	err := s.db.WithContext(ctx).
		Order("entry_time DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.Position, 0, len(models))
	for _, m := range models {
		p, err := positionModelToType(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ClosedSince returns terminal positions closed at or after the cutoff,
// used by the session summary report.
func (s *GormStore) ClosedSince(ctx context.Context, cutoff time.Time) ([]*types.Position, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []positionModel
	err := s.db.WithContext(ctx).
		Where("status != ? AND closed_at >= ?", string(types.StatusOpen), cutoff.Unix()).
		Order("closed_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.Position, 0, len(models))
	for _, m := range models {
		p, err := positionModelToType(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newPositionModel(p *types.Position) (positionModel, error) {
	now := time.Now().Unix()
	m := positionModel{
		ID:               p.ID,
		Mint:             p.Mint,
		Symbol:           p.Symbol,
		WalletAddress:    p.WalletAddress,
		AssetClass:       string(p.AssetClass),
		PresetID:         p.PresetID,
		Status:           string(p.Status),
		SolInvested:      p.SolInvested.String(),
		AmountLamports:   p.AmountLamports,
		EntryPrice:       p.EntryPrice,
		EntryTime:        p.EntryTime.Unix(),
		PnlPercent:       p.PnlPercent,
		PnlSol:           p.PnlSol.String(),
		HighWaterMarkPct: p.HighWaterMarkPct,
		RecommendedSL:    p.RecommendedSL,
		RecommendedTP:    p.RecommendedTP,
		RecommendedTrail: p.RecommendedTrail,
		ExitTx:           p.ExitTx,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.ClosedAt != nil {
		ts := p.ClosedAt.Unix()
		m.ClosedAt = &ts
	}
	if p.ExitPending != nil {
		raw, err := json.Marshal(p.ExitPending)
		if err != nil {
			return positionModel{}, fmt.Errorf("encoding exit pending failed: %w", err)
		}
		m.ExitPendingJSON = datatypes.JSON(raw)
	}
	return m, nil
}

func positionModelToType(m positionModel) (*types.Position, error) {
	invested, err := decimal.NewFromString(m.SolInvested)
	if err != nil {
		return nil, fmt.Errorf("position %s has bad sol_invested %q: %w", m.ID, m.SolInvested, err)
	}
	pnlSol, err := decimal.NewFromString(m.PnlSol)
	if err != nil {
		return nil, fmt.Errorf("position %s has bad pnl_sol %q: %w", m.ID, m.PnlSol, err)
	}
	p := &types.Position{
		ID:               m.ID,
		Mint:             m.Mint,
		Symbol:           m.Symbol,
		WalletAddress:    m.WalletAddress,
		AssetClass:       types.AssetClass(m.AssetClass),
		PresetID:         m.PresetID,
		Status:           types.PositionStatus(m.Status),
		SolInvested:      invested,
		AmountLamports:   m.AmountLamports,
		EntryPrice:       m.EntryPrice,
		EntryTime:        time.Unix(m.EntryTime, 0),
		PnlPercent:       m.PnlPercent,
		PnlSol:           pnlSol,
		HighWaterMarkPct: m.HighWaterMarkPct,
		RecommendedSL:    m.RecommendedSL,
		RecommendedTP:    m.RecommendedTP,
		RecommendedTrail: m.RecommendedTrail,
		ExitTx:           m.ExitTx,
	}
	if m.ClosedAt != nil {
		ts := time.Unix(*m.ClosedAt, 0)
		p.ClosedAt = &ts
	}
	if len(m.ExitPendingJSON) > 0 {
		var ep types.ExitPending
		if err := json.Unmarshal(m.ExitPendingJSON, &ep); err != nil {
			return nil, fmt.Errorf("position %s has bad exit pending payload: %w", m.ID, err)
		}
		p.ExitPending = &ep
	}
	return p, nil
}

// --------------------- Budget -------------------------

const budgetRowID = 1

// SaveBudget persists the budget read model as the singleton row.
func (s *GormStore) SaveBudget(ctx context.Context, payload interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding budget state failed: %w", err)
	}
	m := budgetStateModel{ID: budgetRowID, Payload: datatypes.JSON(raw), UpdatedAt: time.Now().Unix()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// LoadBudget decodes the singleton budget row into out. The second return
// is false when no row exists yet.
func (s *GormStore) LoadBudget(ctx context.Context, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("gorm store not initialized")
	}
	var m budgetStateModel
	err := s.db.WithContext(ctx).Where("id = ?", budgetRowID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return false, fmt.Errorf("decoding budget state failed: %w", err)
	}
	return true, nil
}

// --------------------- Circuit breakers -------------------------

// BreakerRecord is the persistence shape for one breaker scope.
type BreakerRecord struct {
	Scope             string
	ConsecutiveLosses int
	DailyLossSol      decimal.Decimal
	Tripped           bool
	Reason            string
	CooldownUntil     time.Time
	Day               string
}

// SaveBreakers upserts every scope's state.
func (s *GormStore) SaveBreakers(ctx context.Context, records []BreakerRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if len(records) == 0 {
		return nil
	}
	now := time.Now().Unix()
	models := make([]breakerStateModel, 0, len(records))
	for _, r := range records {
		var cooldown int64
		if !r.CooldownUntil.IsZero() {
			cooldown = r.CooldownUntil.Unix()
		}
		models = append(models, breakerStateModel{
			Scope:             r.Scope,
			ConsecutiveLosses: r.ConsecutiveLosses,
			DailyLossSol:      r.DailyLossSol.String(),
			Tripped:           r.Tripped,
			Reason:            r.Reason,
			CooldownUntil:     cooldown,
			Day:               r.Day,
			UpdatedAt:         now,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}},
			UpdateAll: true,
		}).
		Create(&models).Error
}

// LoadBreakers returns every persisted breaker scope.
func (s *GormStore) LoadBreakers(ctx context.Context) ([]BreakerRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []breakerStateModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]BreakerRecord, 0, len(models))
	for _, m := range models {
		loss, err := decimal.NewFromString(m.DailyLossSol)
		if err != nil {
			return nil, fmt.Errorf("breaker %s has bad daily_loss_sol %q: %w", m.Scope, m.DailyLossSol, err)
		}
		rec := BreakerRecord{
			Scope:             m.Scope,
			ConsecutiveLosses: m.ConsecutiveLosses,
			DailyLossSol:      loss,
			Tripped:           m.Tripped,
			Reason:            m.Reason,
			Day:               m.Day,
		}
		if m.CooldownUntil > 0 {
			rec.CooldownUntil = time.Unix(m.CooldownUntil, 0)
		}
		out = append(out, rec)
	}
	return out, nil
}

// --------------------- Trade operation audit log -------------------------

// AppendTradeOperation records one execution attempt.
func (s *GormStore) AppendTradeOperation(ctx context.Context, op TradeOperation) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	m := tradeOperationModel{
		PositionID: op.PositionID,
		Operation:  op.Operation,
		Success:    op.Success,
		TxHash:     op.TxHash,
		Error:      op.Error,
		CreatedAt:  op.CreatedAt.Unix(),
	}
	if op.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().Unix()
	}
	if len(op.Details) > 0 {
		raw, err := json.Marshal(op.Details)
		if err != nil {
			return fmt.Errorf("encoding operation details failed: %w", err)
		}
		m.Details = datatypes.JSON(raw)
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// ListTradeOperations returns the audit trail for one position, oldest
// first.
func (s *GormStore) ListTradeOperations(ctx context.Context, positionID string) ([]TradeOperation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []tradeOperationModel
	err := s.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]TradeOperation, 0, len(models))
	for _, m := range models {
		op := TradeOperation{
			PositionID: m.PositionID,
			Operation:  m.Operation,
			Success:    m.Success,
			TxHash:     m.TxHash,
			Error:      m.Error,
			CreatedAt:  time.Unix(m.CreatedAt, 0),
		}
		if len(m.Details) > 0 {
			_ = json.Unmarshal(m.Details, &op.Details)
		}
		out = append(out, op)
	}
	return out, nil
}
