package schema

import "time"

// WorkflowInstance is the mutable per-session runtime state of one
// attached workflow. Mutated exclusively by the step engine and the
// unified evaluator; persisted by the caller after evaluation.
type WorkflowInstance struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	WorkflowName string `json:"workflow_name"`

	// Priority orders evaluation across instances on the same session.
	// Lower value is evaluated earlier.
	Priority       int    `json:"priority"`
	Enabled        bool   `json:"enabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`

	CurrentStep           string    `json:"current_step"`
	StepEnteredAt         time.Time `json:"step_entered_at"`
	StepActionCount       int       `json:"step_action_count"`
	FilesModifiedThisTask []string  `json:"files_modified_this_task,omitempty"`

	// Variables are instance-local overrides layered over the
	// definition's defaults.
	Variables map[string]any `json:"variables,omitempty"`

	// ApprovalPending is set when an exit condition required
	// confirmation and no approve/deny signal has arrived yet.
	ApprovalPending     bool   `json:"approval_pending"`
	ApprovalConditionID string `json:"approval_condition_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnterStep moves the instance to the named step and resets per-step counters.
func (in *WorkflowInstance) EnterStep(step string, now time.Time) {
	in.CurrentStep = step
	in.StepEnteredAt = now
	in.StepActionCount = 0
	in.UpdatedAt = now
}

// TimeInStep returns how long the instance has been in its current step.
func (in *WorkflowInstance) TimeInStep(now time.Time) time.Duration {
	if in.StepEnteredAt.IsZero() {
		return 0
	}
	return now.Sub(in.StepEnteredAt)
}

// ClearApproval resets the pending approval gate.
func (in *WorkflowInstance) ClearApproval() {
	in.ApprovalPending = false
	in.ApprovalConditionID = ""
}
