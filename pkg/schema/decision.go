package schema

// DecisionType is the outcome of evaluating one event.
type DecisionType string

const (
	DecisionAllow  DecisionType = "allow"
	DecisionBlock  DecisionType = "block"
	DecisionModify DecisionType = "modify"
)

// Decision is the step engine's verdict for one event against one instance.
// Block decisions carry a human-readable reason; modify decisions carry
// context text shown to the agent on the next turn; allow is silent.
type Decision struct {
	Decision DecisionType `json:"decision"`
	Reason   string       `json:"reason,omitempty"`
	Context  string       `json:"context,omitempty"`
}

// Allow is the silent pass-through decision.
func Allow() Decision {
	return Decision{Decision: DecisionAllow}
}

// AllowWithContext passes the event through but injects context text.
func AllowWithContext(context string) Decision {
	return Decision{Decision: DecisionAllow, Context: context}
}

// Block rejects the event with a reason.
func Block(reason string) Decision {
	return Decision{Decision: DecisionBlock, Reason: reason}
}

// Modify allows the event while altering agent behavior via context text.
func Modify(context string) Decision {
	return Decision{Decision: DecisionModify, Context: context}
}

// EvaluationResult is the unified evaluator's merged verdict across all
// instances active on a session.
type EvaluationResult struct {
	Decision  DecisionType `json:"decision"` // allow or block
	BlockedBy string       `json:"blocked_by,omitempty"`

	// Transitions maps workflow name to its new current step, recorded
	// only for instances whose step actually changed during this event.
	Transitions map[string]string `json:"transitions,omitempty"`

	// ContextParts are injected text fragments in instance-priority order.
	ContextParts []string `json:"context_parts,omitempty"`
}

// NewEvaluationResult returns an allow result with initialized maps.
func NewEvaluationResult() *EvaluationResult {
	return &EvaluationResult{
		Decision:    DecisionAllow,
		Transitions: make(map[string]string),
	}
}
