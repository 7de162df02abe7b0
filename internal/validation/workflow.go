// Package validation implements the dry-run validator: pure static
// analysis of a workflow definition, invoked at authoring time and
// never on the event path. Pre-deployment checking is strict where the
// runtime fails open.
package validation

import (
	"context"
	"fmt"

	"github.com/Zeeeepa/gobby/internal/catalog"
	"github.com/Zeeeepa/gobby/internal/engine"
	"github.com/Zeeeepa/gobby/pkg/schema"
)

// WorkflowValidator runs the full dry-run pipeline: JSON Schema,
// structural graph analysis, template variable checks, and (when a
// catalog is supplied) semantic MCP reference checks.
type WorkflowValidator struct {
	schemaCheck *schemaValidator
}

// NewWorkflowValidator creates a WorkflowValidator with the embedded
// definition schema pre-compiled.
func NewWorkflowValidator() (*WorkflowValidator, error) {
	sv, err := newSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{schemaCheck: sv}, nil
}

// EvaluateWorkflow loads the named definition and produces the dry-run
// report. cat may be nil, in which case semantic checks are skipped
// with an informational notice. A load failure is a hard error here,
// unlike the runtime's fail-open policy.
func (wv *WorkflowValidator) EvaluateWorkflow(ctx context.Context, name string, loader engine.Loader, cat catalog.Catalog) *schema.WorkflowEvaluation {
	ev := schema.NewWorkflowEvaluation(name)

	def, err := loader.LoadWorkflow(name)
	if err != nil {
		ev.AddError(schema.FindingLoadFailure,
			fmt.Sprintf("workflow %q could not be loaded: %s", name, err.Error()), "")
		return ev
	}
	if def == nil {
		ev.AddError(schema.FindingLoadFailure,
			fmt.Sprintf("workflow %q not found", name), "")
		return ev
	}

	wv.EvaluateDefinition(ctx, def, cat, ev)
	return ev
}

// EvaluateDefinition runs all checks against an already-loaded
// definition, appending findings to ev.
func (wv *WorkflowValidator) EvaluateDefinition(ctx context.Context, def *schema.WorkflowDefinition, cat catalog.Catalog, ev *schema.WorkflowEvaluation) {
	wv.schemaCheck.check(def, ev)

	switch def.EffectiveType() {
	case schema.WorkflowTypeStep:
		checkStructure(def, ev)
	default:
		ev.AddInfo(schema.FindingChecksSkipped,
			fmt.Sprintf("%s workflow: structural graph checks (reachability, dead ends, terminal analysis) do not apply and were skipped",
				def.EffectiveType()))
	}

	checkTemplateVariables(def, ev)

	if cat != nil {
		checkSemantics(ctx, def, cat, ev)
	} else {
		ev.AddInfo(schema.FindingChecksSkipped,
			"no tool catalog supplied; semantic MCP reference checks were skipped")
	}

	ev.StepTrace = buildStepTrace(def)
	ev.LifecyclePath = linearPath(def)
}

// buildStepTrace documents each step and a human-readable label per
// on_enter action.
func buildStepTrace(def *schema.WorkflowDefinition) []schema.StepTraceEntry {
	if len(def.Steps) == 0 {
		return nil
	}

	trace := make([]schema.StepTraceEntry, 0, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		entry := schema.StepTraceEntry{
			Name:        step.Name,
			Description: step.Description,
		}
		for j := range step.OnEnter {
			entry.OnEnter = append(entry.OnEnter, actionLabel(&step.OnEnter[j]))
		}
		trace = append(trace, entry)
	}
	return trace
}

// actionLabel renders an action spec for the authoring report.
func actionLabel(spec *schema.ActionSpec) string {
	if spec.When != "" {
		return fmt.Sprintf("%s (when: %s)", spec.Action, spec.When)
	}
	return spec.Action
}

// linearPath returns the step names in order when the transition graph
// is a simple linear chain covering every step from entry to terminal,
// as a documentation aid. Any branching, cycle, or orphan yields nil.
func linearPath(def *schema.WorkflowDefinition) []string {
	if def.EffectiveType() != schema.WorkflowTypeStep || len(def.Steps) == 0 {
		return nil
	}

	visited := make(map[string]bool, len(def.Steps))
	path := make([]string, 0, len(def.Steps))

	cur := def.EntryStep()
	for cur != nil && !visited[cur.Name] {
		visited[cur.Name] = true
		path = append(path, cur.Name)

		next := ""
		for _, tr := range cur.Transitions {
			if next == "" {
				next = tr.To
				continue
			}
			if tr.To != next {
				return nil // branching
			}
		}
		if next == "" {
			break
		}
		cur = def.GetStep(next)
		if cur == nil {
			return nil
		}
	}

	if len(path) != len(def.Steps) {
		return nil
	}
	// The walk must end on a sink, not re-enter the chain.
	last := def.GetStep(path[len(path)-1])
	if last == nil || len(last.Transitions) != 0 {
		return nil
	}
	return path
}
