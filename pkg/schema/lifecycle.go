package schema

import "fmt"

// ElementState is the lifecycle state of a schema element within the engine.
type ElementState string

const (
	StateProposed   ElementState = "proposed"
	StatePlanned    ElementState = "planned"
	StateDeprecated ElementState = "deprecated"
	StateRestored   ElementState = "restored"
	// StateRemoved exists so history records can represent the manual
	// removal phase, but no transition into it is permitted here.
	StateRemoved ElementState = "removed"
)

// TransitionRule defines an allowed lifecycle transition and its gate.
type TransitionRule struct {
	From ElementState
	To   ElementState
	// Gate names the precondition enforced elsewhere (safety checks,
	// transactional execution). Informational, used in error messages.
	Gate string
}

// DefaultTransitions are the lifecycle transitions the engine performs.
var DefaultTransitions = []TransitionRule{
	{From: StateProposed, To: StatePlanned, Gate: "all critical safety checks passed"},
	{From: StatePlanned, To: StateDeprecated, Gate: "migration transaction committed"},
	{From: StateDeprecated, To: StateRestored, Gate: "rollback transaction committed"},
}

// Lifecycle validates element state transitions.
type Lifecycle struct {
	transitions []TransitionRule
}

// NewLifecycle returns a machine with the default transition rules.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{transitions: DefaultTransitions}
}

// ValidateTransition checks whether from->to is permitted. Same-state is a
// no-op. Any transition into StateRemoved is rejected: permanent removal is
// a separate, manually gated phase outside this engine.
func (l *Lifecycle) ValidateTransition(from, to ElementState) error {
	if from == to {
		return nil
	}
	if to == StateRemoved {
		return &TransitionError{
			Code:    "LIFECYCLE_REMOVAL_OUT_OF_SCOPE",
			From:    from,
			To:      to,
			Message: "permanent removal is a manually gated phase and is not performed by this engine",
		}
	}
	for _, t := range l.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return &TransitionError{
		Code:    "LIFECYCLE_INVALID_TRANSITION",
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// Gate returns the precondition description for a transition, or "" when
// the transition is unknown.
func (l *Lifecycle) Gate(from, to ElementState) string {
	for _, t := range l.transitions {
		if t.From == from && t.To == to {
			return t.Gate
		}
	}
	return ""
}

// AllowedTransitions returns all valid target states from the given state.
func (l *Lifecycle) AllowedTransitions(from ElementState) []ElementState {
	var allowed []ElementState
	for _, t := range l.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// TransitionError is a structured error for invalid lifecycle transitions.
type TransitionError struct {
	Code    string       `json:"code"`
	From    ElementState `json:"from"`
	To      ElementState `json:"to"`
	Message string       `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}
