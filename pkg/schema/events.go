package schema

import "time"

// Event types delivered by the session-lifecycle layer. Closed set.
const (
	EventSessionStart      = "session_start"
	EventSessionEnd        = "session_end"
	EventBeforeAgentTurn   = "before_agent_turn"
	EventAfterAgentTurn    = "after_agent_turn"
	EventBeforeToolCall    = "before_tool_call"
	EventAfterToolCall     = "after_tool_call"
	EventStop              = "stop"
	EventPreCompact        = "pre_compact"
	EventSubagentStart     = "subagent_start"
	EventSubagentStop      = "subagent_stop"
	EventNotification      = "notification"
	EventPermissionRequest = "permission_request"

	// Provider-specific hook variants, normalized by the dispatch layer
	// but kept distinct so triggers can target them directly.
	EventProviderSessionConfig = "provider_session_config"
	EventProviderToolResult    = "provider_tool_result"
	EventProviderTurnLimit     = "provider_turn_limit"
)

// Trigger keys an authored definition may declare under `triggers`.
const (
	TriggerSessionStart      = "on_session_start"
	TriggerSessionEnd        = "on_session_end"
	TriggerPromptSubmit      = "on_prompt_submit"
	TriggerBeforeAgentTurn   = "on_before_agent_turn"
	TriggerAfterAgentTurn    = "on_after_agent_turn"
	TriggerBeforeTool        = "on_before_tool"
	TriggerAfterTool         = "on_after_tool"
	TriggerStop              = "on_stop"
	TriggerPreCompact        = "on_pre_compact"
	TriggerSubagentStart     = "on_subagent_start"
	TriggerSubagentStop      = "on_subagent_stop"
	TriggerNotification      = "on_notification"
	TriggerPermissionRequest = "on_permission_request"
)

// triggerAliases maps each event type to the trigger keys it satisfies,
// in evaluation order. An event type may satisfy more than one key:
// a before-agent-turn event also fires on_prompt_submit triggers.
var triggerAliases = map[string][]string{
	EventSessionStart:      {TriggerSessionStart},
	EventSessionEnd:        {TriggerSessionEnd},
	EventBeforeAgentTurn:   {TriggerBeforeAgentTurn, TriggerPromptSubmit},
	EventAfterAgentTurn:    {TriggerAfterAgentTurn},
	EventBeforeToolCall:    {TriggerBeforeTool},
	EventAfterToolCall:     {TriggerAfterTool},
	EventStop:              {TriggerStop},
	EventPreCompact:        {TriggerPreCompact},
	EventSubagentStart:     {TriggerSubagentStart},
	EventSubagentStop:      {TriggerSubagentStop},
	EventNotification:      {TriggerNotification},
	EventPermissionRequest: {TriggerPermissionRequest},

	EventProviderSessionConfig: {TriggerSessionStart},
	EventProviderToolResult:    {TriggerAfterTool},
	EventProviderTurnLimit:     {TriggerNotification},
}

// TriggerKeysFor returns the trigger keys satisfied by an event type,
// in evaluation order. Unknown event types satisfy no keys.
func TriggerKeysFor(eventType string) []string {
	return triggerAliases[eventType]
}

// KnownEventType reports whether the event type belongs to the closed set.
func KnownEventType(eventType string) bool {
	_, ok := triggerAliases[eventType]
	return ok
}

// HookEvent is one lifecycle event delivered to the evaluator.
type HookEvent struct {
	EventType string         `json:"event_type"`
	SessionID string         `json:"session_id"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToolName extracts the tool name from the event data, or "".
func (e *HookEvent) ToolName() string {
	if e.Data == nil {
		return ""
	}
	name, _ := e.Data["tool_name"].(string)
	return name
}

// IsToolCall reports whether the event is a before-tool-call event,
// the only event type subject to the tool-restriction check.
func (e *HookEvent) IsToolCall() bool {
	return e.EventType == EventBeforeToolCall
}
