package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// WorkflowType distinguishes how a definition is evaluated.
type WorkflowType string

const (
	// WorkflowTypeStep is a state machine driven by step transitions.
	WorkflowTypeStep WorkflowType = "step"
	// WorkflowTypeLifecycle is driven purely by event-keyed triggers.
	WorkflowTypeLifecycle WorkflowType = "lifecycle"
	// WorkflowTypePipeline is a linear sequence executed by an external runner.
	WorkflowTypePipeline WorkflowType = "pipeline"
)

// WorkflowDefinition is the immutable authored description of a workflow.
// Authored as YAML on disk; also JSON-serializable for the store and MCP surface.
type WorkflowDefinition struct {
	Name        string       `yaml:"name" json:"name"`
	Type        WorkflowType `yaml:"type,omitempty" json:"type,omitempty"` // default: step
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`

	Steps     []Step                  `yaml:"steps,omitempty" json:"steps,omitempty"`
	Triggers  map[string][]ActionSpec `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Variables map[string]any          `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Definition-level escape hatches, evaluated like step exit conditions.
	ExitCondition   string       `yaml:"exit_condition,omitempty" json:"exit_condition,omitempty"`
	OnPrematureStop []ActionSpec `yaml:"on_premature_stop,omitempty" json:"on_premature_stop,omitempty"`

	// Sources restricts lifecycle discovery to the named event sources.
	// Empty means the workflow applies to every source.
	Sources []string `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// EffectiveType returns the workflow type, defaulting to step.
func (d *WorkflowDefinition) EffectiveType() WorkflowType {
	if d.Type == "" {
		return WorkflowTypeStep
	}
	return d.Type
}

// GetStep returns the step with the given name, or nil.
func (d *WorkflowDefinition) GetStep(name string) *Step {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// EntryStep returns the first declared step, or nil for an empty definition.
func (d *WorkflowDefinition) EntryStep() *Step {
	if len(d.Steps) == 0 {
		return nil
	}
	return &d.Steps[0]
}

// TerminalStep returns the last declared step, or nil for an empty definition.
func (d *WorkflowDefinition) TerminalStep() *Step {
	if len(d.Steps) == 0 {
		return nil
	}
	return &d.Steps[len(d.Steps)-1]
}

// AppliesTo reports whether the definition accepts events from the given source.
func (d *WorkflowDefinition) AppliesTo(source string) bool {
	if len(d.Sources) == 0 {
		return true
	}
	for _, s := range d.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// Step is a named state with entry/exit actions, tool restrictions,
// rules, and outgoing transitions.
type Step struct {
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description,omitempty" json:"description,omitempty"`
	StatusMessage string `yaml:"status_message,omitempty" json:"status_message,omitempty"`

	Transitions []Transition `yaml:"transitions,omitempty" json:"transitions,omitempty"`

	OnEnter []ActionSpec `yaml:"on_enter,omitempty" json:"on_enter,omitempty"`
	OnExit  []ActionSpec `yaml:"on_exit,omitempty" json:"on_exit,omitempty"`

	AllowedTools    ToolList `yaml:"allowed_tools,omitempty" json:"allowed_tools,omitempty"`
	BlockedTools    []string `yaml:"blocked_tools,omitempty" json:"blocked_tools,omitempty"`
	AllowedMCPTools ToolList `yaml:"allowed_mcp_tools,omitempty" json:"allowed_mcp_tools,omitempty"`
	BlockedMCPTools []string `yaml:"blocked_mcp_tools,omitempty" json:"blocked_mcp_tools,omitempty"`

	OnMCPSuccess []ActionSpec `yaml:"on_mcp_success,omitempty" json:"on_mcp_success,omitempty"`
	OnMCPError   []ActionSpec `yaml:"on_mcp_error,omitempty" json:"on_mcp_error,omitempty"`

	Rules          []Rule          `yaml:"rules,omitempty" json:"rules,omitempty"`
	ExitConditions []ExitCondition `yaml:"exit_conditions,omitempty" json:"exit_conditions,omitempty"`
}

// Transition is a guarded edge between two steps.
type Transition struct {
	To   string `yaml:"to" json:"to"`
	When string `yaml:"when,omitempty" json:"when,omitempty"` // empty means always
}

// RuleAction is the closed vocabulary of rule outcomes.
type RuleAction string

const (
	RuleActionBlock           RuleAction = "block"
	RuleActionRequireApproval RuleAction = "require_approval"
	RuleActionWarn            RuleAction = "warn"
	RuleActionAllow           RuleAction = "allow"
)

// Rule is a guarded action evaluated after the tool-restriction check.
type Rule struct {
	Name   string     `yaml:"name,omitempty" json:"name,omitempty"`
	When   string     `yaml:"when" json:"when"`
	Action RuleAction `yaml:"action" json:"action"`
	Reason string     `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// ExitCondition gates exit from a step. A bare string in the authored
// format is shorthand for {when: <string>}.
type ExitCondition struct {
	ID               string `yaml:"id,omitempty" json:"id,omitempty"`
	When             string `yaml:"when" json:"when"`
	RequiresApproval bool   `yaml:"requires_approval,omitempty" json:"requires_approval,omitempty"`
	Prompt           string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	TimeoutSeconds   int    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// UnmarshalYAML accepts either a bare expression string or a mapping.
func (c *ExitCondition) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.When = value.Value
		return nil
	}

	type plain ExitCondition
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = ExitCondition(p)
	return nil
}

// UnmarshalJSON accepts either a bare expression string or an object.
func (c *ExitCondition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.When = s
		return nil
	}

	type plain ExitCondition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ExitCondition(p)
	return nil
}

// ToolList is either the sentinel "all" or an explicit list of tool names.
// The zero value (unset in the authored definition) is unrestricted.
type ToolList struct {
	All   bool
	Names []string
}

// Restricted reports whether the list constrains tool usage.
func (l ToolList) Restricted() bool {
	return !l.All && l.Names != nil
}

// Contains reports whether the list explicitly names the tool.
func (l ToolList) Contains(name string) bool {
	for _, n := range l.Names {
		if n == name {
			return true
		}
	}
	return false
}

// UnmarshalYAML accepts the scalar "all" or a sequence of names.
func (l *ToolList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value == "all" {
			l.All = true
			return nil
		}
		return fmt.Errorf("tool list must be %q or a sequence, got %q", "all", value.Value)
	}
	return value.Decode(&l.Names)
}

// MarshalYAML renders "all" or the explicit list.
func (l ToolList) MarshalYAML() (any, error) {
	if l.All {
		return "all", nil
	}
	return l.Names, nil
}

// UnmarshalJSON accepts the string "all" or an array of names.
func (l *ToolList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "all" {
			l.All = true
			return nil
		}
		return fmt.Errorf("tool list must be %q or an array, got %q", "all", s)
	}
	return json.Unmarshal(data, &l.Names)
}

// MarshalJSON renders "all" or the explicit list.
func (l ToolList) MarshalJSON() ([]byte, error) {
	if l.All {
		return json.Marshal("all")
	}
	if l.Names == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.Names)
}

// ActionSpec is one entry of a trigger or on_enter/on_exit list:
// {action: <name>, when?: <expr>, ...params}. The extra keys are the
// action's parameters and are kept as an opaque map.
type ActionSpec struct {
	Action string
	When   string // optional guard, default true
	Params map[string]any
}

// UnmarshalYAML flattens {action, when, ...params} into the struct.
func (a *ActionSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return a.fromMap(raw)
}

// UnmarshalJSON flattens {action, when, ...params} into the struct.
func (a *ActionSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return a.fromMap(raw)
}

func (a *ActionSpec) fromMap(raw map[string]any) error {
	name, _ := raw["action"].(string)
	if name == "" {
		return fmt.Errorf("action spec missing %q key", "action")
	}
	a.Action = name
	a.When, _ = raw["when"].(string)

	a.Params = make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "action" || k == "when" {
			continue
		}
		a.Params[k] = v
	}
	return nil
}

func (a ActionSpec) toMap() map[string]any {
	raw := make(map[string]any, len(a.Params)+2)
	for k, v := range a.Params {
		raw[k] = v
	}
	raw["action"] = a.Action
	if a.When != "" {
		raw["when"] = a.When
	}
	return raw
}

// MarshalYAML renders the flat authored form.
func (a ActionSpec) MarshalYAML() (any, error) {
	return a.toMap(), nil
}

// MarshalJSON renders the flat authored form.
func (a ActionSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.toMap())
}
