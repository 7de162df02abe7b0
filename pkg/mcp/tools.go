package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Zeeeepa/gobby/internal/diagram"
	"github.com/Zeeeepa/gobby/internal/store"
	"github.com/Zeeeepa/gobby/pkg/schema"
)

// handleEvent evaluates one hook event against the session's workflows.
func (s *GobbyServer) handleEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	eventType, err := req.RequireString("event_type")
	if err != nil {
		return mcp.NewToolResultError("event_type is required"), nil
	}
	source := req.GetString("source", "")
	data := mcp.ParseStringMap(req, "data", nil)

	if !schema.KnownEventType(eventType) {
		s.logger.Warn("unknown event type, evaluating anyway",
			slog.String("event_type", eventType))
	}

	event := &schema.HookEvent{
		EventType: eventType,
		SessionID: sessionID,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	session, sessErr := s.ensureSession(ctx, sessionID, source)
	if sessErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session setup failed: %v", sessErr)), nil
	}

	s.recordEvent(ctx, event)

	instances, listErr := s.store.ListInstances(ctx, store.InstanceFilter{SessionID: sessionID})
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list instances: %v", listErr)), nil
	}

	definitions := make(map[string]*schema.WorkflowDefinition, len(instances))
	for _, inst := range instances {
		if _, ok := definitions[inst.WorkflowName]; ok {
			continue
		}
		def, loadErr := s.loader.LoadWorkflow(inst.WorkflowName)
		if loadErr != nil {
			// Missing definitions are skipped downstream.
			continue
		}
		definitions[inst.WorkflowName] = def
	}

	result, evalErr := s.evaluator.EvaluateEvent(ctx, event, instances, definitions, session.Variables)

	// Persist instance state even when an action failed mid-evaluation.
	for _, inst := range instances {
		if upErr := s.store.UpsertInstance(ctx, inst); upErr != nil {
			s.logger.Warn("failed to persist instance",
				slog.String("instance_id", inst.ID),
				slog.String("error", upErr.Error()))
		}
	}

	if eventType == schema.EventSessionEnd {
		if endErr := s.store.EndSession(ctx, sessionID, event.Timestamp); endErr != nil {
			s.logger.Warn("failed to end session",
				slog.String("session_id", sessionID),
				slog.String("error", endErr.Error()))
		}
	}

	if evalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", evalErr)), nil
	}
	return marshalResult(result)
}

// handleAttach binds a workflow to a session.
func (s *GobbyServer) handleAttach(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	workflow, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	priority := extractInt(req.GetArguments(), "priority", 0)

	if _, loadErr := s.loader.LoadWorkflow(workflow); loadErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", loadErr)), nil
	}
	if _, sessErr := s.ensureSession(ctx, sessionID, ""); sessErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session setup failed: %v", sessErr)), nil
	}

	inst := store.NewInstance(sessionID, workflow, priority)
	if upErr := s.store.UpsertInstance(ctx, inst); upErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to attach workflow: %v", upErr)), nil
	}

	return marshalResult(inst)
}

// handleStatus returns a session's instances and their current steps.
func (s *GobbyServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	session, getErr := s.store.GetSession(ctx, sessionID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", getErr)), nil
	}
	instances, listErr := s.store.ListInstances(ctx, store.InstanceFilter{SessionID: sessionID})
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list instances: %v", listErr)), nil
	}

	return marshalResult(map[string]any{
		"session":   session,
		"instances": instances,
	})
}

// handleValidate dry-runs a named or inline workflow definition.
func (s *GobbyServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("workflow", "")
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	wantDiagram := req.GetBool("diagram", false)

	if name == "" && defRaw == nil {
		return mcp.NewToolResultError("one of workflow or definition is required"), nil
	}

	var def *schema.WorkflowDefinition
	var ev *schema.WorkflowEvaluation

	if defRaw != nil {
		defBytes, marshalErr := json.Marshal(defRaw)
		if marshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
		}
		def = &schema.WorkflowDefinition{}
		if unmarshalErr := json.Unmarshal(defBytes, def); unmarshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", unmarshalErr)), nil
		}
		if def.Name == "" {
			def.Name = name
		}
		ev = schema.NewWorkflowEvaluation(def.Name)
		s.validator.EvaluateDefinition(ctx, def, s.catalog, ev)
	} else {
		ev = s.validator.EvaluateWorkflow(ctx, name, s.loader, s.catalog)
		if wantDiagram {
			def, _ = s.loader.LoadWorkflow(name)
		}
	}

	if wantDiagram && def != nil {
		return marshalResult(map[string]any{
			"evaluation": ev,
			"diagram":    diagram.RenderMermaid(def),
		})
	}
	return marshalResult(ev)
}

// --- Internal helpers ---

// ensureSession loads the session, creating it and auto-attaching the
// applicable lifecycle workflows on first contact.
func (s *GobbyServer) ensureSession(ctx context.Context, sessionID, source string) (*store.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}

	now := time.Now().UTC()
	session = &store.Session{
		ID:        sessionID,
		Source:    source,
		CreatedAt: now,
	}
	if createErr := s.store.CreateSession(ctx, session); createErr != nil {
		return nil, createErr
	}

	defs, discErr := s.loader.DiscoverLifecycleWorkflows()
	if discErr != nil {
		s.logger.Warn("lifecycle workflow discovery failed",
			slog.String("error", discErr.Error()))
		return session, nil
	}
	for _, def := range defs {
		if !def.AppliesTo(source) {
			continue
		}
		inst := store.NewInstance(sessionID, def.Name, 0)
		if upErr := s.store.UpsertInstance(ctx, inst); upErr != nil {
			s.logger.Warn("failed to attach lifecycle workflow",
				slog.String("workflow", def.Name),
				slog.String("error", upErr.Error()))
		}
	}
	return session, nil
}

// recordEvent appends the event to the session log, best-effort.
func (s *GobbyServer) recordEvent(ctx context.Context, event *schema.HookEvent) {
	var payload json.RawMessage
	if len(event.Data) > 0 {
		payload, _ = json.Marshal(event.Data)
	}
	record := &store.EventRecord{
		SessionID: event.SessionID,
		EventType: event.EventType,
		Source:    event.Source,
		Payload:   payload,
		Timestamp: event.Timestamp,
	}
	if err := s.store.AppendEvent(ctx, record); err != nil {
		s.logger.Debug("failed to append hook event",
			slog.String("session_id", event.SessionID),
			slog.String("error", err.Error()))
	}
}

// extractInt safely extracts an integer from an argument map.
func extractInt(args map[string]any, key string, defaultVal int) int {
	if args == nil {
		return defaultVal
	}
	switch val := args[key].(type) {
	case float64:
		return int(val)
	case int:
		return val
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
