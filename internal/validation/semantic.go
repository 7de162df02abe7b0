package validation

import (
	"context"
	"fmt"

	"github.com/Zeeeepa/gobby/internal/catalog"
	"github.com/Zeeeepa/gobby/pkg/schema"
)

// mcpActionNames are action kinds whose params reference a live server/tool.
var mcpActionNames = map[string]bool{
	"call_mcp_tool": true,
}

// checkSemantics verifies that every server-qualified tool reference in
// the definition resolves against the live catalog, distinguishing an
// unknown server from an unknown tool on a known server.
func checkSemantics(ctx context.Context, def *schema.WorkflowDefinition, cat catalog.Catalog, ev *schema.WorkflowEvaluation) {
	tools, err := cat.ListTools(ctx)
	if err != nil {
		ev.AddWarning(schema.FindingChecksSkipped,
			"tool catalog unavailable, semantic checks skipped: "+err.Error(), "")
		return
	}

	checkRef := func(server, tool, step string) {
		serverTools, known := tools[server]
		if !known {
			ev.AddWarning(schema.FindingUnknownServer,
				fmt.Sprintf("server %q is not in the live tool catalog", server), step)
			return
		}
		for _, t := range serverTools {
			if t == tool {
				return
			}
		}
		ev.AddWarning(schema.FindingUnknownTool,
			fmt.Sprintf("tool %q is unknown on server %q", tool, server), step)
	}

	checkName := func(name, step string) {
		if server, tool, ok := catalog.SplitQualified(name); ok {
			checkRef(server, tool, step)
		}
	}

	checkSpecs := func(specs []schema.ActionSpec, step string) {
		for i := range specs {
			spec := &specs[i]
			if !mcpActionNames[spec.Action] {
				continue
			}
			server, _ := spec.Params["server"].(string)
			tool, _ := spec.Params["tool"].(string)
			if server != "" {
				checkRef(server, tool, step)
			}
		}
	}

	for _, specs := range def.Triggers {
		checkSpecs(specs, "")
	}
	checkSpecs(def.OnPrematureStop, "")

	for i := range def.Steps {
		step := &def.Steps[i]
		for _, name := range step.AllowedMCPTools.Names {
			checkName(name, step.Name)
		}
		for _, name := range step.BlockedMCPTools {
			checkName(name, step.Name)
		}
		checkSpecs(step.OnEnter, step.Name)
		checkSpecs(step.OnExit, step.Name)
		checkSpecs(step.OnMCPSuccess, step.Name)
		checkSpecs(step.OnMCPError, step.Name)
	}
}
