// Package diagram renders workflow definitions as Mermaid flowcharts,
// an authoring aid surfaced through the dry-run validator.
package diagram

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// RenderMermaid renders the step transition graph of a definition as a
// Mermaid flowchart. Lifecycle and pipeline workflows have no step
// graph and render as a single trigger summary node.
func RenderMermaid(def *schema.WorkflowDefinition) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if def.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", def.Name))
	}

	if def.EffectiveType() != schema.WorkflowTypeStep || len(def.Steps) == 0 {
		b.WriteString(fmt.Sprintf("    w[\"%s (%s)\"]\n", escapeLabel(def.Name), def.EffectiveType()))
		return b.String()
	}

	entry := def.EntryStep().Name
	for i := range def.Steps {
		step := &def.Steps[i]
		b.WriteString(fmt.Sprintf("    %s\n", nodeDef(step, step.Name == entry)))
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		for _, tr := range step.Transitions {
			label := ""
			if tr.When != "" {
				label = fmt.Sprintf("|%s|", escapeLabel(tr.When))
			}
			b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
				safeID(step.Name), label, safeID(tr.To)))
		}
	}

	b.WriteString("\n")
	b.WriteString("    classDef entry fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef terminal fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString(fmt.Sprintf("    class %s entry\n", safeID(entry)))
	for i := range def.Steps {
		step := &def.Steps[i]
		if len(step.Transitions) == 0 {
			b.WriteString(fmt.Sprintf("    class %s terminal\n", safeID(step.Name)))
		}
	}
	return b.String()
}

// nodeDef renders one step node. Steps with approval-gated exit
// conditions use a hexagon, plain steps a rounded box.
func nodeDef(step *schema.Step, isEntry bool) string {
	label := escapeLabel(step.Name)
	for i := range step.ExitConditions {
		if step.ExitConditions[i].RequiresApproval {
			return fmt.Sprintf("%s{{\"%s\"}}", safeID(step.Name), label)
		}
	}
	if isEntry {
		return fmt.Sprintf("%s([\"%s\"])", safeID(step.Name), label)
	}
	return fmt.Sprintf("%s[\"%s\"]", safeID(step.Name), label)
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// safeID converts a step name into a Mermaid-safe node identifier.
func safeID(name string) string {
	id := unsafeIDChars.ReplaceAllString(name, "_")
	if id == "" {
		return "_"
	}
	return id
}

// escapeLabel strips characters that break Mermaid label parsing.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
