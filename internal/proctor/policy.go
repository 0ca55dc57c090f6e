package proctor

import (
	"fmt"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// DecisionKind is what the session must do about a violation.
type DecisionKind int

const (
	DecisionIgnored DecisionKind = iota
	DecisionWarn
	DecisionTerminate
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionWarn:
		return "warn"
	case DecisionTerminate:
		return "terminate"
	default:
		return "ignored"
	}
}

// Decision is the policy verdict for one violation.
type Decision struct {
	Kind    DecisionKind
	Reason  model.ViolationReason
	Count   int
	Message string
}

// Policy decides between warning and terminating a session. Count starts
// inactive (-1), is armed to 0 by Activate and only ever grows.
type Policy struct {
	mu         sync.Mutex
	state      model.ViolationState
	terminated bool
	halted     bool
	cooldown   *Cooldown
}

// NewPolicy creates an inactive policy allowing maxViolations warnings.
func NewPolicy(maxViolations int, cooldown *Cooldown) *Policy {
	return &Policy{
		state: model.ViolationState{
			Count:         model.ViolationCountInactive,
			MaxViolations: maxViolations,
		},
		cooldown: cooldown,
	}
}

// Activate starts counting. It has no effect once counting has started.
func (p *Policy) Activate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Count == model.ViolationCountInactive && !p.halted {
		p.state.Count = 0
	}
}

// Halt makes the policy inert for the rest of the session.
func (p *Policy) Halt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = true
}

// State returns a copy of the violation counters.
func (p *Policy) State() model.ViolationState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a violation is still inside its cooldown.
func (p *Policy) Busy() bool {
	return p.cooldown.Held()
}

// Evaluate records a violation and returns what to do about it.
func (p *Policy) Evaluate(reason model.ViolationReason) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	ignored := Decision{Kind: DecisionIgnored, Reason: reason, Count: p.state.Count}
	if !p.state.Active() || p.halted || p.terminated {
		return ignored
	}
	if !p.cooldown.TryAcquire() {
		return ignored
	}

	p.state.Count++
	n, max := p.state.Count, p.state.MaxViolations
	if n > max {
		p.terminated = true
		return Decision{Kind: DecisionTerminate, Reason: reason, Count: n}
	}
	return Decision{Kind: DecisionWarn, Reason: reason, Count: n, Message: WarningMessage(reason, n, max)}
}

// WarningMessage renders the warning shown for the count-th violation.
func WarningMessage(reason model.ViolationReason, count, max int) string {
	if count == max {
		return fmt.Sprintf("FINAL WARNING: You have attempted to leave the exam (%s). One more violation will result in automatic submission.", reason)
	}
	return fmt.Sprintf("Warning: You attempted to leave the exam window (%s). This is violation %d of %d.", reason, count, max)
}
