package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Zeeeepa/gobby/internal/conditions"
	"github.com/Zeeeepa/gobby/internal/logging"
	"github.com/Zeeeepa/gobby/pkg/schema"
)

// toolDiscoveryNames are exempt from every tool restriction: an agent
// must always be able to discover what it is allowed to call.
var toolDiscoveryNames = map[string]bool{
	"list_mcp_servers": true,
	"list_mcp_tools":   true,
}

// isToolDiscovery matches plain and fully-qualified discovery names
// ("list_mcp_servers", "server:list_mcp_servers", "mcp__s__list_mcp_servers").
func isToolDiscovery(name string) bool {
	if toolDiscoveryNames[name] {
		return true
	}
	if i := strings.LastIndex(name, ":"); i >= 0 && toolDiscoveryNames[name[i+1:]] {
		return true
	}
	if i := strings.LastIndex(name, "__"); i >= 0 && toolDiscoveryNames[name[i+2:]] {
		return true
	}
	return false
}

// StepEngine evaluates one event against one workflow instance,
// mutating the instance in place. The caller serializes events per
// session; the engine performs no internal locking.
type StepEngine struct {
	conds    *conditions.Evaluator
	executor ActionExecutor
	audit    AuditSink
	logger   *slog.Logger
	cfg      Config

	// now is swappable for tests.
	now func() time.Time
}

// NewStepEngine creates a StepEngine. executor and audit may be nil.
func NewStepEngine(conds *conditions.Evaluator, executor ActionExecutor, audit AuditSink, logger *slog.Logger, cfg Config) *StepEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepEngine{
		conds:    conds,
		executor: executor,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// HandleEvent runs the full single-workflow algorithm for one event.
// sessionVars are layered into the evaluation context below instance
// and definition variables. The returned error is non-nil only when an
// on_enter/on_exit action of a taken transition failed: the instance
// has already committed to the new step, and the caller must decide how
// to handle the partial state.
func (se *StepEngine) HandleEvent(ctx context.Context, event *schema.HookEvent, inst *schema.WorkflowInstance, def *schema.WorkflowDefinition, sessionVars map[string]any) (schema.Decision, error) {
	if !inst.Enabled {
		return schema.Allow(), nil
	}

	ctx = logging.WithIDs(ctx, event.SessionID, inst.WorkflowName, inst.CurrentStep)
	now := se.now()

	// Late binding: an instance attached without a step starts at the
	// definition's entry step.
	if inst.CurrentStep == "" {
		if entry := def.EntryStep(); entry != nil {
			inst.EnterStep(entry.Name, now)
		}
	}

	// Stuck-step detection pre-empts everything else for this call.
	if d, stuck := se.checkStuck(ctx, inst, now); stuck {
		se.recordDecision(ctx, event, inst, d)
		return d, nil
	}

	step := def.GetStep(inst.CurrentStep)
	if step == nil {
		// Fail open: the validator, not the runtime, flags dangling steps.
		se.logger.WarnContext(ctx, "current step not found in definition, allowing",
			slog.String("step", inst.CurrentStep))
		return schema.Allow(), nil
	}

	data := BuildContext(event, inst, def, sessionVars)

	// Definition-level exit condition: when it holds, the workflow as a
	// whole is complete and the instance detaches, whatever step it is in.
	if def.ExitCondition != "" && se.conds.EvaluateBool(ctx, def.ExitCondition, data) {
		inst.ClearApproval()
		inst.Enabled = false
		inst.DisabledReason = "exit condition met"
		d := schema.AllowWithContext(fmt.Sprintf("Workflow %q complete: exit condition met", def.Name))
		se.recordDecision(ctx, event, inst, d)
		return d, nil
	}

	// Approval resolution: a deny ends the call, an approve falls through.
	// A grant must not re-arm the gate below in the same call.
	approvedNow := false
	if inst.ApprovalPending {
		if d, resolved := se.resolveApproval(ctx, event, inst); resolved {
			se.recordDecision(ctx, event, inst, d)
			return d, nil
		}
		approvedNow = !inst.ApprovalPending
	}

	// Tool-restriction check, only for tool-call events.
	if event.IsToolCall() {
		inst.StepActionCount++
		if d, blocked := se.checkToolRestrictions(ctx, event, inst, step, data); blocked {
			se.recordDecision(ctx, event, inst, d)
			return d, nil
		}
	}

	// Exit-condition / approval-gate engagement.
	if !approvedNow && se.conds.CheckExitConditions(ctx, step.ExitConditions, data) {
		ar := se.conds.CheckPendingApproval(ctx, step, data, inst.ApprovalPending, inst.StepEnteredAt, now)
		switch {
		case ar.IsTimedOut:
			inst.ClearApproval()
			d := schema.Block(fmt.Sprintf("approval for step %q timed out after %ds", step.Name, ar.TimeoutSeconds))
			se.recordDecision(ctx, event, inst, d)
			return d, nil
		case ar.NeedsApproval:
			if !inst.ApprovalPending {
				inst.ApprovalPending = true
				inst.ApprovalConditionID = ar.ConditionID
			}
			prompt := ar.Prompt
			if prompt == "" {
				prompt = fmt.Sprintf("confirm exit from step %q", step.Name)
			}
			// Arming and holding look the same to the agent: the event is
			// allowed, the prompt is re-injected, and no transition runs.
			d := schema.AllowWithContext("Approval Required: " + prompt)
			se.recordDecision(ctx, event, inst, d)
			return d, nil
		}
	}

	// MCP tool outcome hooks fire on after-tool events, isolated like
	// lifecycle triggers. Premature-stop actions fire when the session
	// stops before the workflow reached its terminal step.
	outcome := se.runMCPOutcomeActions(ctx, event, step, data)
	outcome = append(outcome, se.runPrematureStopActions(ctx, event, inst, def, data)...)

	// Transition evaluation with auto-chaining.
	finalStep, injected, moved, err := se.runTransitions(ctx, event, inst, def, sessionVars)
	injected = append(outcome, injected...)
	if err != nil {
		return schema.Allow(), err
	}
	if moved {
		msg := "Transitioning to step: " + finalStep
		if len(injected) > 0 {
			msg += "\n\n" + strings.Join(injected, "\n")
		}
		d := schema.Modify(msg)
		se.recordDecision(ctx, event, inst, d)
		return d, nil
	}

	if len(injected) > 0 {
		return schema.AllowWithContext(strings.Join(injected, "\n")), nil
	}
	return schema.Allow(), nil
}

// runMCPOutcomeActions fires on_mcp_success or on_mcp_error when an
// after-tool event reports the outcome of a server-qualified tool call.
// Failures are isolated per action, like lifecycle triggers.
func (se *StepEngine) runMCPOutcomeActions(ctx context.Context, event *schema.HookEvent, step *schema.Step, data map[string]any) []string {
	if event.EventType != schema.EventAfterToolCall {
		return nil
	}
	tool := event.ToolName()
	if !strings.Contains(tool, ":") {
		return nil
	}

	specs := step.OnMCPSuccess
	if mcpCallFailed(event) {
		specs = step.OnMCPError
	}
	return se.runIsolatedActions(ctx, specs, data, "mcp outcome")
}

// runPrematureStopActions fires the definition's on_premature_stop
// actions when a stop or session-end event arrives while the instance
// has not reached the terminal step. Failures are isolated per action,
// like lifecycle triggers.
func (se *StepEngine) runPrematureStopActions(ctx context.Context, event *schema.HookEvent, inst *schema.WorkflowInstance, def *schema.WorkflowDefinition, data map[string]any) []string {
	if event.EventType != schema.EventStop && event.EventType != schema.EventSessionEnd {
		return nil
	}
	if len(def.OnPrematureStop) == 0 {
		return nil
	}
	term := def.TerminalStep()
	if term == nil || inst.CurrentStep == term.Name {
		return nil
	}
	return se.runIsolatedActions(ctx, def.OnPrematureStop, data, "premature stop")
}

// mcpCallFailed reports whether the after-tool event carries an error outcome.
func mcpCallFailed(event *schema.HookEvent) bool {
	if event.Data == nil {
		return false
	}
	if b, ok := event.Data["is_error"].(bool); ok && b {
		return true
	}
	if s, ok := event.Data["error"].(string); ok && s != "" {
		return true
	}
	return false
}

// runIsolatedActions executes action specs with per-action error
// isolation: a failing action is logged and skipped.
func (se *StepEngine) runIsolatedActions(ctx context.Context, specs []schema.ActionSpec, data map[string]any, label string) []string {
	if se.executor == nil || len(specs) == 0 {
		return nil
	}

	var injected []string
	for i := range specs {
		spec := &specs[i]
		if !se.conds.EvaluateBool(ctx, spec.When, data) {
			continue
		}
		result, err := se.executor.Execute(ctx, spec.Action, data, spec.Params)
		if err != nil {
			se.logger.WarnContext(ctx, "action failed, continuing",
				slog.String("kind", label),
				slog.String("action", spec.Action),
				slog.String("error", err.Error()))
			continue
		}
		if result != nil {
			if text, ok := result[injectContextKey].(string); ok && text != "" {
				injected = append(injected, text)
			}
		}
	}
	return injected
}

// checkStuck forces a transition to the recovery step when the instance
// has been in its current step longer than the configured threshold.
func (se *StepEngine) checkStuck(ctx context.Context, inst *schema.WorkflowInstance, now time.Time) (schema.Decision, bool) {
	if se.cfg.StuckStepThreshold <= 0 || se.cfg.RecoveryStep == "" {
		return schema.Decision{}, false
	}
	if inst.CurrentStep == se.cfg.RecoveryStep {
		return schema.Decision{}, false
	}
	if inst.TimeInStep(now) <= se.cfg.StuckStepThreshold {
		return schema.Decision{}, false
	}

	from := inst.CurrentStep
	inst.ClearApproval()
	inst.EnterStep(se.cfg.RecoveryStep, now)
	se.recordTransition(ctx, inst, from, se.cfg.RecoveryStep)
	se.logger.InfoContext(ctx, "stuck step detected, forcing recovery transition",
		slog.String("from", from),
		slog.String("to", se.cfg.RecoveryStep),
		slog.Duration("threshold", se.cfg.StuckStepThreshold))

	return schema.Modify("Transitioning to step: " + se.cfg.RecoveryStep), true
}

// resolveApproval inspects the event data for an approve/deny signal.
// Returns (decision, true) when the call should end here.
func (se *StepEngine) resolveApproval(ctx context.Context, event *schema.HookEvent, inst *schema.WorkflowInstance) (schema.Decision, bool) {
	signal, reason := approvalSignal(event)
	switch signal {
	case approvalDenied:
		inst.ClearApproval()
		if reason == "" {
			reason = "operator denied the request"
		}
		return schema.Block("approval denied: " + reason), true
	case approvalGranted:
		inst.ClearApproval()
		se.logger.InfoContext(ctx, "pending approval granted")
	}
	return schema.Decision{}, false
}

type approvalOutcome int

const (
	approvalUnresolved approvalOutcome = iota
	approvalGranted
	approvalDenied
)

// approvalSignal extracts an approve/deny signal from event data.
// Accepted forms: approval: "approve"|"deny", approved: bool.
func approvalSignal(event *schema.HookEvent) (approvalOutcome, string) {
	if event.Data == nil {
		return approvalUnresolved, ""
	}
	reason, _ := event.Data["approval_reason"].(string)

	if s, ok := event.Data["approval"].(string); ok {
		switch s {
		case "approve", "approved":
			return approvalGranted, reason
		case "deny", "denied", "reject":
			return approvalDenied, reason
		}
	}
	if b, ok := event.Data["approved"].(bool); ok {
		if b {
			return approvalGranted, reason
		}
		return approvalDenied, reason
	}
	return approvalUnresolved, ""
}

// checkToolRestrictions applies the step's tool lists and rules to a
// tool-call event. Returns (decision, true) on block.
func (se *StepEngine) checkToolRestrictions(ctx context.Context, event *schema.HookEvent, inst *schema.WorkflowInstance, step *schema.Step, data map[string]any) (schema.Decision, bool) {
	tool := event.ToolName()
	if tool == "" || isToolDiscovery(tool) {
		return schema.Decision{}, false
	}

	// server:tool qualified names use the MCP pair, plain names the other.
	if strings.Contains(tool, ":") {
		for _, blocked := range step.BlockedMCPTools {
			if blocked == tool {
				return schema.Block(fmt.Sprintf("MCP tool %q is blocked in step %q", tool, step.Name)), true
			}
		}
		if step.AllowedMCPTools.Restricted() && !step.AllowedMCPTools.Contains(tool) {
			return schema.Block(fmt.Sprintf("MCP tool %q is not in the allowed list for step %q", tool, step.Name)), true
		}
	} else {
		for _, blocked := range step.BlockedTools {
			if blocked == tool {
				return schema.Block(fmt.Sprintf("tool %q is blocked in step %q", tool, step.Name)), true
			}
		}
		if step.AllowedTools.Restricted() && !step.AllowedTools.Contains(tool) {
			return schema.Block(fmt.Sprintf("tool %q is not in the allowed list for step %q", tool, step.Name)), true
		}
	}

	// Rules run in declared order; the first firing block rule wins.
	for i := range step.Rules {
		rule := &step.Rules[i]
		fired := se.conds.EvaluateBool(ctx, rule.When, data)
		se.recordRule(ctx, inst, ruleLabel(rule, i), fired)
		if !fired {
			continue
		}
		switch rule.Action {
		case schema.RuleActionBlock:
			reason := rule.Reason
			if reason == "" {
				reason = fmt.Sprintf("blocked by rule %q in step %q", ruleLabel(rule, i), step.Name)
			}
			return schema.Block(reason), true
		case schema.RuleActionRequireApproval:
			if !inst.ApprovalPending {
				inst.ApprovalPending = true
				inst.ApprovalConditionID = ruleLabel(rule, i)
			}
		}
	}

	return schema.Decision{}, false
}

func ruleLabel(rule *schema.Rule, idx int) string {
	if rule.Name != "" {
		return rule.Name
	}
	return fmt.Sprintf("rule[%d]", idx)
}

// runTransitions iterates the current step's transitions in declared
// order, firing the first whose guard is true, then re-runs against the
// new step until no transition fires (auto-chaining). on_exit/on_enter
// failures propagate: the instance has already committed to the new step.
func (se *StepEngine) runTransitions(ctx context.Context, event *schema.HookEvent, inst *schema.WorkflowInstance, def *schema.WorkflowDefinition, sessionVars map[string]any) (string, []string, bool, error) {
	var injected []string
	moved := false

	for hops := se.cfg.chainLimit(def); hops > 0; hops-- {
		step := def.GetStep(inst.CurrentStep)
		if step == nil {
			break
		}

		data := BuildContext(event, inst, def, sessionVars)
		var fired *schema.Transition
		for i := range step.Transitions {
			if se.conds.EvaluateBool(ctx, step.Transitions[i].When, data) {
				fired = &step.Transitions[i]
				break
			}
		}
		if fired == nil {
			break
		}

		from := inst.CurrentStep
		out, err := se.runActions(ctx, step.OnExit, data)
		injected = append(injected, out...)
		if err != nil {
			return inst.CurrentStep, injected, moved, err
		}

		inst.ClearApproval()
		inst.EnterStep(fired.To, se.now())
		moved = true
		se.recordTransition(ctx, inst, from, fired.To)

		if next := def.GetStep(fired.To); next != nil {
			data = BuildContext(event, inst, def, sessionVars)
			out, err = se.runActions(ctx, next.OnEnter, data)
			injected = append(injected, out...)
			if err != nil {
				return inst.CurrentStep, injected, moved, err
			}
		}
	}

	return inst.CurrentStep, injected, moved, nil
}

// runActions executes action specs in order, honoring per-action `when`
// guards, and collects injected context. Errors propagate to the caller.
func (se *StepEngine) runActions(ctx context.Context, specs []schema.ActionSpec, data map[string]any) ([]string, error) {
	if se.executor == nil || len(specs) == 0 {
		return nil, nil
	}

	var injected []string
	for i := range specs {
		spec := &specs[i]
		if !se.conds.EvaluateBool(ctx, spec.When, data) {
			continue
		}
		result, err := se.executor.Execute(ctx, spec.Action, data, spec.Params)
		if err != nil {
			return injected, schema.NewErrorf(schema.ErrCodeAction,
				"action %q failed: %s", spec.Action, err.Error()).WithCause(err)
		}
		if result != nil {
			if text, ok := result[injectContextKey].(string); ok && text != "" {
				injected = append(injected, text)
			}
		}
	}
	return injected, nil
}

// --- best-effort audit helpers ---

func (se *StepEngine) recordDecision(ctx context.Context, event *schema.HookEvent, inst *schema.WorkflowInstance, d schema.Decision) {
	if se.audit == nil {
		return
	}
	if err := se.audit.RecordDecision(ctx, event, inst, d); err != nil {
		se.logger.DebugContext(ctx, "audit sink failed", slog.String("error", err.Error()))
	}
}

func (se *StepEngine) recordRule(ctx context.Context, inst *schema.WorkflowInstance, rule string, fired bool) {
	if se.audit == nil {
		return
	}
	if err := se.audit.RecordRule(ctx, inst, rule, fired); err != nil {
		se.logger.DebugContext(ctx, "audit sink failed", slog.String("error", err.Error()))
	}
}

func (se *StepEngine) recordTransition(ctx context.Context, inst *schema.WorkflowInstance, from, to string) {
	if se.audit == nil {
		return
	}
	if err := se.audit.RecordTransition(ctx, inst, from, to); err != nil {
		se.logger.DebugContext(ctx, "audit sink failed", slog.String("error", err.Error()))
	}
}
