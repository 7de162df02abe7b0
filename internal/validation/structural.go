package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Zeeeepa/gobby/internal/conditions"
	"github.com/Zeeeepa/gobby/internal/engine"
	"github.com/Zeeeepa/gobby/pkg/schema"
)

// checkStructure runs the graph and naming checks for step-typed
// definitions: empty step list, duplicate names, dangling transition
// targets, unreachable steps, dead ends, terminal-free cycles, and
// allowed/blocked tool conflicts.
func checkStructure(def *schema.WorkflowDefinition, ev *schema.WorkflowEvaluation) {
	if len(def.Steps) == 0 {
		ev.AddError(schema.FindingEmptyWorkflow, "step workflow declares no steps", "")
		return
	}

	names := make(map[string]bool, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		if names[step.Name] {
			ev.AddError(schema.FindingDuplicateStep,
				fmt.Sprintf("step name %q declared more than once", step.Name), step.Name)
			continue
		}
		names[step.Name] = true
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		for _, tr := range step.Transitions {
			if !names[tr.To] {
				ev.AddError(schema.FindingBadTransition,
					fmt.Sprintf("transition targets undeclared step %q", tr.To), step.Name)
			}
		}
		checkToolConflicts(step, ev)
	}

	checkReachability(def, ev)
}

// checkToolConflicts flags tool names present in both an allowed and a
// blocked set on the same step.
func checkToolConflicts(step *schema.Step, ev *schema.WorkflowEvaluation) {
	for _, blocked := range step.BlockedTools {
		if step.AllowedTools.Contains(blocked) {
			ev.AddError(schema.FindingToolConflict,
				fmt.Sprintf("tool %q is both allowed and blocked", blocked), step.Name)
		}
	}
	for _, blocked := range step.BlockedMCPTools {
		if step.AllowedMCPTools.Contains(blocked) {
			ev.AddError(schema.FindingToolConflict,
				fmt.Sprintf("MCP tool %q is both allowed and blocked", blocked), step.Name)
		}
	}
}

// checkReachability walks the transition graph forward from the entry
// step. Unreachable steps warn; a reachable step without outgoing
// transitions is a dead end unless it is the last reachable step in
// declaration order (the effective terminal); a reachable graph where
// every step has outgoing transitions is a terminal-free cycle.
func checkReachability(def *schema.WorkflowDefinition, ev *schema.WorkflowEvaluation) {
	entry := def.EntryStep()

	reachable := map[string]bool{entry.Name: true}
	queue := []string{entry.Name}
	for len(queue) > 0 {
		cur := def.GetStep(queue[0])
		queue = queue[1:]
		if cur == nil {
			continue
		}
		for _, tr := range cur.Transitions {
			if !reachable[tr.To] && def.GetStep(tr.To) != nil {
				reachable[tr.To] = true
				queue = append(queue, tr.To)
			}
		}
	}

	effectiveTerminal := ""
	for i := range def.Steps {
		if reachable[def.Steps[i].Name] {
			effectiveTerminal = def.Steps[i].Name
		}
	}

	hasSink := false
	for i := range def.Steps {
		step := &def.Steps[i]
		if !reachable[step.Name] {
			ev.AddWarning(schema.FindingUnreachableStep,
				fmt.Sprintf("step %q is unreachable from entry step %q", step.Name, entry.Name), step.Name)
			continue
		}
		if len(step.Transitions) == 0 {
			hasSink = true
			if step.Name != effectiveTerminal {
				ev.AddWarning(schema.FindingDeadEndStep,
					fmt.Sprintf("step %q has no outgoing transitions and is not the terminal step", step.Name), step.Name)
			}
		}
	}

	if !hasSink {
		ev.AddError(schema.FindingNoTerminal,
			"every reachable step has outgoing transitions; the workflow can never terminate", "")
	}
}

// templateRefPattern matches {{ variable }} references in authored text.
var templateRefPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// checkTemplateVariables flags template references to variables that are
// neither declared defaults nor built-in context values. Namespaced
// references (session.*, variables.*, event.*, workflow.*) cannot be
// statically resolved and are skipped.
func checkTemplateVariables(def *schema.WorkflowDefinition, ev *schema.WorkflowEvaluation) {
	known := make(map[string]bool, len(def.Variables)+16)
	for name := range def.Variables {
		known[name] = true
	}
	for _, name := range engine.BuiltinContextKeys {
		known[name] = true
	}
	for _, name := range conditions.BuiltinNames {
		known[name] = true
	}

	seen := make(map[string]bool)
	walkTemplates(def, func(text, step string) {
		for _, match := range templateRefPattern.FindAllStringSubmatch(text, -1) {
			ref := match[1]
			root := ref
			if i := strings.Index(ref, "."); i >= 0 {
				root = ref[:i]
			}
			switch root {
			case "session", "variables", "event", "workflow":
				continue
			}
			if known[root] || seen[ref] {
				continue
			}
			seen[ref] = true
			ev.AddWarning(schema.FindingUndefinedVariable,
				fmt.Sprintf("template references %q, which is neither a declared variable nor a built-in", ref), step)
		}
	})
}

// walkTemplates visits every authored text field that supports
// {{variable}} interpolation.
func walkTemplates(def *schema.WorkflowDefinition, visit func(text, step string)) {
	visitSpecs := func(specs []schema.ActionSpec, step string) {
		for i := range specs {
			for _, v := range specs[i].Params {
				if s, ok := v.(string); ok {
					visit(s, step)
				}
			}
		}
	}

	for _, specs := range def.Triggers {
		visitSpecs(specs, "")
	}
	visitSpecs(def.OnPrematureStop, "")

	for i := range def.Steps {
		step := &def.Steps[i]
		visit(step.StatusMessage, step.Name)
		visit(step.Description, step.Name)
		visitSpecs(step.OnEnter, step.Name)
		visitSpecs(step.OnExit, step.Name)
		visitSpecs(step.OnMCPSuccess, step.Name)
		visitSpecs(step.OnMCPError, step.Name)
		for j := range step.ExitConditions {
			visit(step.ExitConditions[j].Prompt, step.Name)
		}
	}
}
