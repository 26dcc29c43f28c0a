// Package boundary enforces the one-way Perception -> Decision -> Ledger
// data flow at runtime, complementing the compile-time layering already
// imposed by Go's import graph (internal/ingestion and internal/tracker
// never import internal/persistence or internal/audit directly; they
// flow through this enforcer instead): a small stateful guard wrapped
// as a callable gate, a plain method rather than HTTP middleware since
// the boundary check applies to in-process calls, not HTTP requests.
package boundary

import (
	"fmt"
	"sync"
)

// Domain is one of the three one-way stages data flows through.
type Domain string

const (
	DomainPerception Domain = "PERCEPTION"
	DomainDecision   Domain = "DECISION"
	DomainLedger     Domain = "LEDGER"
)

// Policy selects what happens when an illegal cross-domain access is
// attempted.
type Policy int

const (
	PolicyWarn Policy = iota
	PolicyHardFail
)

// Access records one observed cross-domain call for audit.
type Access struct {
	From    Domain
	To      Domain
	Legal   bool
	Warned  bool
}

// legal reports whether data may flow directly from `from` to `to`.
// Identity flows within a domain are always legal; otherwise only
// Perception->Decision and Decision->Ledger are legal.
func legal(from, to Domain) bool {
	if from == to {
		return true
	}
	return (from == DomainPerception && to == DomainDecision) ||
		(from == DomainDecision && to == DomainLedger)
}

// Enforcer checks and records every cross-domain access.
type Enforcer struct {
	mu      sync.Mutex
	policy  Policy
	log     []Access
	onWarn  func(Access)
}

// New returns an enforcer applying policy to every check. onWarn, if
// non-nil, is invoked (outside the lock) whenever PolicyWarn logs and
// continues on an illegal access — wiring point for the audit emitter.
func New(policy Policy, onWarn func(Access)) *Enforcer {
	return &Enforcer{policy: policy, onWarn: onWarn}
}

// Check validates a data flow from `from` to `to`. Under PolicyWarn an
// illegal flow is recorded and allowed to proceed (err is nil); under
// PolicyHardFail an illegal flow is recorded and rejected (err is
// non-nil). Every access, legal or not, is recorded for audit.
func (e *Enforcer) Check(from, to Domain) error {
	isLegal := legal(from, to)
	access := Access{From: from, To: to, Legal: isLegal}

	e.mu.Lock()
	if !isLegal && e.policy == PolicyWarn {
		access.Warned = true
	}
	e.log = append(e.log, access)
	onWarn := e.onWarn
	e.mu.Unlock()

	if isLegal {
		return nil
	}

	if access.Warned && onWarn != nil {
		onWarn(access)
	}

	if e.policy == PolicyHardFail {
		return fmt.Errorf("boundary: illegal data flow %s -> %s", from, to)
	}
	return nil
}

// Log returns a copy of every access recorded so far, in order.
func (e *Enforcer) Log() []Access {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Access, len(e.log))
	copy(out, e.log)
	return out
}
