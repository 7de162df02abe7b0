package schema

// FindingLevel grades a dry-run validation finding.
type FindingLevel string

const (
	LevelError   FindingLevel = "error"
	LevelWarning FindingLevel = "warning"
	LevelInfo    FindingLevel = "info"
)

// Finding codes emitted by the dry-run validator.
const (
	FindingEmptyWorkflow     = "EMPTY_WORKFLOW"
	FindingDuplicateStep     = "DUPLICATE_STEP"
	FindingBadTransition     = "INVALID_TRANSITION_TARGET"
	FindingUnreachableStep   = "UNREACHABLE_STEP"
	FindingDeadEndStep       = "DEAD_END_STEP"
	FindingNoTerminal        = "NO_TERMINAL_STEP"
	FindingToolConflict      = "TOOL_CONFLICT"
	FindingUndefinedVariable = "UNDEFINED_VARIABLE"
	FindingUnknownServer     = "UNKNOWN_SERVER"
	FindingUnknownTool       = "UNKNOWN_TOOL"
	FindingSchemaViolation   = "SCHEMA_VIOLATION"
	FindingChecksSkipped     = "CHECKS_SKIPPED"
	FindingLoadFailure       = "LOAD_FAILURE"
)

// EvaluationItem is a single dry-run finding with location context.
type EvaluationItem struct {
	Level   FindingLevel `json:"level"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Step    string       `json:"step,omitempty"`
}

// StepTraceEntry documents one step for the authoring report.
type StepTraceEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	OnEnter     []string `json:"on_enter,omitempty"`
}

// WorkflowEvaluation is the full dry-run report for one definition.
type WorkflowEvaluation struct {
	Workflow string           `json:"workflow"`
	Valid    bool             `json:"valid"`
	Items    []EvaluationItem `json:"items,omitempty"`

	StepTrace []StepTraceEntry `json:"step_trace,omitempty"`

	// LifecyclePath is populated only when the transition graph forms a
	// simple linear chain from the entry step to the terminal step.
	LifecyclePath []string `json:"lifecycle_path,omitempty"`
}

// NewWorkflowEvaluation starts an empty report. A report with no
// error-level findings stays valid.
func NewWorkflowEvaluation(workflow string) *WorkflowEvaluation {
	return &WorkflowEvaluation{Workflow: workflow, Valid: true}
}

// AddError appends an error-level finding. Any error marks the
// evaluation invalid.
func (ev *WorkflowEvaluation) AddError(code, message, step string) {
	ev.Valid = false
	ev.Items = append(ev.Items, EvaluationItem{Level: LevelError, Code: code, Message: message, Step: step})
}

// AddWarning appends a warning-level finding.
func (ev *WorkflowEvaluation) AddWarning(code, message, step string) {
	ev.Items = append(ev.Items, EvaluationItem{Level: LevelWarning, Code: code, Message: message, Step: step})
}

// AddInfo appends an informational finding.
func (ev *WorkflowEvaluation) AddInfo(code, message string) {
	ev.Items = append(ev.Items, EvaluationItem{Level: LevelInfo, Code: code, Message: message})
}

// CountLevel returns how many findings carry the given level.
func (ev *WorkflowEvaluation) CountLevel(level FindingLevel) int {
	n := 0
	for _, it := range ev.Items {
		if it.Level == level {
			n++
		}
	}
	return n
}
