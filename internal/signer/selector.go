package signer

import "sniperd/internal/risk"

// Selector resolves the signer matching the current session mode. Mode is
// read on every call, so a switch takes effect on the next trade.
type Selector struct {
	session     *risk.SignerSession
	autonomous  Signer
	interactive Signer
}

func NewSelector(session *risk.SignerSession, interactive Signer) *Selector {
	return &Selector{
		session:     session,
		autonomous:  NewSession(session),
		interactive: interactive,
	}
}

// Current returns the session signer in autonomous mode and the interactive
// signer otherwise.
func (s *Selector) Current() Signer {
	if s.session.Mode() == risk.ModeAutonomous {
		return s.autonomous
	}
	return s.interactive
}
