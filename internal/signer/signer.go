// Package signer provides the two signing backends: an interactive signer
// that requires per-trade human approval, and a session signer bound to
// the delegated autonomous key. Both honor the same contract and the same
// timeout bound, so a wedged approver or key store never locks a position.
package signer

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"sniperd/internal/risk"

	"github.com/mr-tron/base58"
)

var (
	ErrApprovalDenied  = errors.New("trade approval denied")
	ErrApprovalTimeout = errors.New("trade approval timed out")
	ErrNoApprover      = errors.New("no approver configured")
)

// Request describes the transaction presented for signing.
type Request struct {
	PositionID string
	Mint       string
	Side       string // "buy" or "sell"
	Summary    string
	Payload    []byte // serialized transaction message
}

// Signer signs a transaction payload. Implementations must respect ctx
// cancellation; callers bound every Sign with a deadline.
type Signer interface {
	Sign(ctx context.Context, req Request) ([]byte, error)
	Address() string
}

// ApprovalFunc asks a human to approve one trade. It must return promptly
// when ctx is cancelled.
type ApprovalFunc func(ctx context.Context, req Request) (bool, error)

// Interactive signs only after explicit approval of each request.
type Interactive struct {
	key     ed25519.PrivateKey
	approve ApprovalFunc
	timeout time.Duration
}

func NewInteractive(key ed25519.PrivateKey, approve ApprovalFunc, timeout time.Duration) *Interactive {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Interactive{key: key, approve: approve, timeout: timeout}
}

func (s *Interactive) Address() string {
	if len(s.key) != ed25519.PrivateKeySize {
		return ""
	}
	return base58.Encode(s.key.Public().(ed25519.PublicKey))
}

func (s *Interactive) Sign(ctx context.Context, req Request) ([]byte, error) {
	if s.approve == nil {
		return nil, ErrNoApprover
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := s.approve(ctx, req)
		done <- result{ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrApprovalTimeout, s.timeout)
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("approval failed: %w", res.err)
		}
		if !res.ok {
			return nil, ErrApprovalDenied
		}
	}
	return ed25519.Sign(s.key, req.Payload), nil
}

// Session signs with the delegated autonomous key, no per-trade approval.
// The key is resolved on every call so a mode switch takes effect at once.
type Session struct {
	session *risk.SignerSession
}

func NewSession(session *risk.SignerSession) *Session {
	return &Session{session: session}
}

func (s *Session) Address() string {
	return s.session.State().WalletAddress
}

func (s *Session) Sign(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := s.session.DelegatedKey()
	if err != nil {
		return nil, fmt.Errorf("session signer unavailable: %w", err)
	}
	return ed25519.Sign(key, req.Payload), nil
}
