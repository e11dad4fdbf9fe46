package risk

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"sniperd/internal/logger"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// SignerMode selects how trades get signed.
type SignerMode string

const (
	ModeInteractive SignerMode = "interactive"
	ModeAutonomous  SignerMode = "autonomous"
)

var (
	ErrKeyMissing    = errors.New("delegated key is missing")
	ErrKeyMismatch   = errors.New("delegated key does not match expected wallet address")
	ErrBalanceTooLow = errors.New("wallet balance below budget plus fee buffer")
	ErrNotAutonomous = errors.New("session is not in autonomous mode")
	ErrBalanceCheck  = errors.New("fresh balance check failed")
)

// BalanceChecker performs a live balance lookup, never from cache.
type BalanceChecker interface {
	BalanceSol(ctx context.Context, address string) (decimal.Decimal, error)
}

// SessionState is the read model for the signer session.
type SessionState struct {
	Mode          SignerMode `json:"mode"`
	WalletAddress string     `json:"wallet_address,omitempty"`
}

// SignerSession is the Interactive <-> Autonomous state machine. Invariants
// after every transition: switching to interactive forces auto-trading off;
// limits are re-entered on every activation, never inherited; open
// positions are untouched by any transition.
type SignerSession struct {
	mu            sync.Mutex
	mode          SignerMode
	walletAddress string
	key           ed25519.PrivateKey

	budget       *Budget
	balances     BalanceChecker
	feeBufferSol decimal.Decimal
}

// NewSignerSession starts in interactive mode with auto-trading disabled.
func NewSignerSession(budget *Budget, balances BalanceChecker, feeBufferSol decimal.Decimal) *SignerSession {
	return &SignerSession{
		mode:         ModeInteractive,
		budget:       budget,
		balances:     balances,
		feeBufferSol: feeBufferSol,
	}
}

// deriveAddress computes the base58 wallet address for the delegated key.
func deriveAddress(key ed25519.PrivateKey) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", ErrKeyMissing
	}
	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return "", ErrKeyMissing
	}
	return base58.Encode(pub), nil
}

// ActivateAutonomous transitions into autonomous mode. Every precondition
// is checked before any mutation; a failed activation leaves the session
// exactly as it was.
func (s *SignerSession) ActivateAutonomous(ctx context.Context, key ed25519.PrivateKey, expectedAddress string, limits Limits) error {
	address, err := deriveAddress(key)
	if err != nil {
		return err
	}
	if address != expectedAddress {
		return fmt.Errorf("%w: derived %s, expected %s", ErrKeyMismatch, address, expectedAddress)
	}
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("limits must be entered explicitly: %w", err)
	}
	if s.balances == nil {
		return ErrBalanceCheck
	}
	balance, err := s.balances.BalanceSol(ctx, address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBalanceCheck, err)
	}
	required := limits.BudgetSol.Add(s.feeBufferSol)
	if balance.LessThan(required) {
		return fmt.Errorf("%w: have %s SOL, need %s SOL", ErrBalanceTooLow, balance, required)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.budget.Authorize(limits); err != nil {
		return err
	}
	s.mode = ModeAutonomous
	s.walletAddress = address
	s.key = key
	logger.Infof("SignerSession: autonomous mode active for %s", address)
	return nil
}

// SwitchToInteractive leaves autonomous mode. New opens are disabled at
// once; open positions keep their monitoring and close paths.
func (s *SignerSession) SwitchToInteractive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeInteractive {
		return
	}
	s.mode = ModeInteractive
	s.key = nil
	s.budget.Revoke()
	logger.Infof("SignerSession: switched to interactive mode, auto-trading off")
}

// Mode returns the current signer mode.
func (s *SignerSession) Mode() SignerMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// DelegatedKey returns the active autonomous key.
func (s *SignerSession) DelegatedKey() (ed25519.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeAutonomous || s.key == nil {
		return nil, ErrNotAutonomous
	}
	return s.key, nil
}

// State returns the session read model.
func (s *SignerSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{Mode: s.mode, WalletAddress: s.walletAddress}
}
