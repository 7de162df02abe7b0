package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zeeeepa/gobby/internal/actions"
	"github.com/Zeeeepa/gobby/internal/catalog"
	"github.com/Zeeeepa/gobby/internal/conditions"
	"github.com/Zeeeepa/gobby/internal/engine"
	"github.com/Zeeeepa/gobby/internal/store"
	"github.com/Zeeeepa/gobby/internal/validation"
	"github.com/Zeeeepa/gobby/pkg/schema"
)

// --- Mock store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	sessions  map[string]*store.Session
	instances []*schema.WorkflowInstance
	events    []*store.EventRecord
	ended     []string
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]*store.Session)}
}

func (m *mockStore) CreateSession(_ context.Context, session *store.Session) error {
	m.sessions[session.ID] = session
	return nil
}

func (m *mockStore) GetSession(_ context.Context, id string) (*store.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, schema.NewError(schema.ErrCodeNotFound, "session not found")
}

func (m *mockStore) EndSession(_ context.Context, id string, at time.Time) error {
	s, ok := m.sessions[id]
	if !ok {
		return schema.NewError(schema.ErrCodeNotFound, "session not found")
	}
	s.EndedAt = &at
	m.ended = append(m.ended, id)
	return nil
}

func (m *mockStore) UpsertInstance(_ context.Context, inst *schema.WorkflowInstance) error {
	for i, existing := range m.instances {
		if existing.ID == inst.ID {
			m.instances[i] = inst
			return nil
		}
	}
	m.instances = append(m.instances, inst)
	return nil
}

func (m *mockStore) ListInstances(_ context.Context, filter store.InstanceFilter) ([]*schema.WorkflowInstance, error) {
	result := make([]*schema.WorkflowInstance, 0)
	for _, inst := range m.instances {
		if filter.SessionID != "" && inst.SessionID != filter.SessionID {
			continue
		}
		result = append(result, inst)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Priority < result[j].Priority })
	return result, nil
}

func (m *mockStore) AppendEvent(_ context.Context, record *store.EventRecord) error {
	record.Sequence = int64(len(m.events) + 1)
	m.events = append(m.events, record)
	return nil
}

// --- Mock loader ---

type mockLoader struct {
	defs      map[string]*schema.WorkflowDefinition
	lifecycle []*schema.WorkflowDefinition
}

func (l *mockLoader) LoadWorkflow(name string) (*schema.WorkflowDefinition, error) {
	if def, ok := l.defs[name]; ok {
		return def, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", name)
}

func (l *mockLoader) DiscoverLifecycleWorkflows() ([]*schema.WorkflowDefinition, error) {
	return l.lifecycle, nil
}

// --- Helpers ---

func newTestServer(t *testing.T, ms *mockStore, ml *mockLoader) *GobbyServer {
	t.Helper()
	conds, err := conditions.NewEvaluator(nil)
	require.NoError(t, err)
	evaluator := engine.NewUnifiedEvaluator(
		engine.NewStepEngine(conds, actions.NewRegistry(), nil, nil, engine.Config{}), nil)
	validator, err := validation.NewWorkflowValidator()
	require.NoError(t, err)

	return NewGobbyServer(GobbyServerDeps{
		Evaluator: evaluator,
		Validator: validator,
		Loader:    ml,
		Store:     ms,
		Catalog:   catalog.NewStatic(nil),
	})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(extractText(t, result)), target))
}

func seedSession(ms *mockStore, id string) {
	ms.sessions[id] = &store.Session{ID: id, Source: "claude", CreatedAt: time.Now().UTC()}
}

// guardDef blocks one tool on its single step.
func guardDef(blockedTool string) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name: "guard",
		Steps: []schema.Step{
			{Name: "work", BlockedTools: []string{blockedTool}},
		},
	}
}

// --- Tests ---

func TestEventTool_Block(t *testing.T) {
	ms := newMockStore()
	seedSession(ms, "sess-1")
	ms.instances = append(ms.instances, store.NewInstance("sess-1", "guard", 0))

	ml := &mockLoader{defs: map[string]*schema.WorkflowDefinition{"guard": guardDef("rm")}}
	s := newTestServer(t, ms, ml)

	req := buildRequest("gobby.event", map[string]any{
		"session_id": "sess-1",
		"event_type": schema.EventBeforeToolCall,
		"data":       map[string]any{"tool_name": "rm"},
	})

	result, err := s.handleEvent(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res schema.EvaluationResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, schema.DecisionBlock, res.Decision)
	assert.Equal(t, "guard", res.BlockedBy)

	// Event appended, instance state persisted.
	require.Len(t, ms.events, 1)
	assert.Equal(t, schema.EventBeforeToolCall, ms.events[0].EventType)
}

func TestEventTool_Allow(t *testing.T) {
	ms := newMockStore()
	seedSession(ms, "sess-1")
	inst := store.NewInstance("sess-1", "guard", 0)
	ms.instances = append(ms.instances, inst)

	ml := &mockLoader{defs: map[string]*schema.WorkflowDefinition{"guard": guardDef("rm")}}
	s := newTestServer(t, ms, ml)

	req := buildRequest("gobby.event", map[string]any{
		"session_id": "sess-1",
		"event_type": schema.EventBeforeToolCall,
		"data":       map[string]any{"tool_name": "ls"},
	})

	result, err := s.handleEvent(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res schema.EvaluationResult
	unmarshalResult(t, result, &res)
	assert.Equal(t, schema.DecisionAllow, res.Decision)
	assert.Equal(t, 1, inst.StepActionCount, "allowed tool call counts as a step action")
}

func TestEventTool_MissingArgs(t *testing.T) {
	s := newTestServer(t, newMockStore(), &mockLoader{})

	result, err := s.handleEvent(context.Background(), buildRequest("gobby.event", map[string]any{
		"session_id": "sess-1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestEventTool_AutoAttachesLifecycleWorkflows(t *testing.T) {
	ms := newMockStore()
	ml := &mockLoader{
		defs: map[string]*schema.WorkflowDefinition{},
		lifecycle: []*schema.WorkflowDefinition{
			{Name: "everywhere", Type: schema.WorkflowTypeLifecycle},
			{Name: "cursor-only", Type: schema.WorkflowTypeLifecycle, Sources: []string{"cursor"}},
		},
	}
	s := newTestServer(t, ms, ml)

	req := buildRequest("gobby.event", map[string]any{
		"session_id": "fresh",
		"event_type": schema.EventSessionStart,
		"source":     "claude",
	})

	result, err := s.handleEvent(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	// Session created on first contact; only the source-applicable
	// lifecycle workflow is attached.
	require.Contains(t, ms.sessions, "fresh")
	require.Len(t, ms.instances, 1)
	assert.Equal(t, "everywhere", ms.instances[0].WorkflowName)
}

func TestEventTool_SessionEnd(t *testing.T) {
	ms := newMockStore()
	seedSession(ms, "sess-9")
	s := newTestServer(t, ms, &mockLoader{})

	req := buildRequest("gobby.event", map[string]any{
		"session_id": "sess-9",
		"event_type": schema.EventSessionEnd,
	})

	result, err := s.handleEvent(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"sess-9"}, ms.ended)
}

func TestAttachTool(t *testing.T) {
	ms := newMockStore()
	ml := &mockLoader{defs: map[string]*schema.WorkflowDefinition{"guard": guardDef("rm")}}
	s := newTestServer(t, ms, ml)

	req := buildRequest("gobby.attach", map[string]any{
		"session_id": "sess-2",
		"workflow":   "guard",
		"priority":   float64(5),
	})

	result, err := s.handleAttach(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, ms.instances, 1)
	assert.Equal(t, "guard", ms.instances[0].WorkflowName)
	assert.Equal(t, 5, ms.instances[0].Priority)
	assert.True(t, ms.instances[0].Enabled)
	assert.Contains(t, ms.sessions, "sess-2", "attach creates the session when missing")
}

func TestAttachTool_UnknownWorkflow(t *testing.T) {
	s := newTestServer(t, newMockStore(), &mockLoader{})

	result, err := s.handleAttach(context.Background(), buildRequest("gobby.attach", map[string]any{
		"session_id": "sess-2",
		"workflow":   "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatusTool(t *testing.T) {
	ms := newMockStore()
	seedSession(ms, "sess-3")
	ms.instances = append(ms.instances, store.NewInstance("sess-3", "guard", 0))
	s := newTestServer(t, ms, &mockLoader{})

	result, err := s.handleStatus(context.Background(), buildRequest("gobby.status", map[string]any{
		"session_id": "sess-3",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var status struct {
		Session   *store.Session             `json:"session"`
		Instances []*schema.WorkflowInstance `json:"instances"`
	}
	unmarshalResult(t, result, &status)
	assert.Equal(t, "sess-3", status.Session.ID)
	require.Len(t, status.Instances, 1)
	assert.Equal(t, "guard", status.Instances[0].WorkflowName)
}

func TestStatusTool_UnknownSession(t *testing.T) {
	s := newTestServer(t, newMockStore(), &mockLoader{})

	result, err := s.handleStatus(context.Background(), buildRequest("gobby.status", map[string]any{
		"session_id": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestValidateTool_Named(t *testing.T) {
	broken := guardDef("rm")
	broken.Steps[0].Transitions = []schema.Transition{{To: "nowhere"}}
	ml := &mockLoader{defs: map[string]*schema.WorkflowDefinition{"guard": broken}}
	s := newTestServer(t, newMockStore(), ml)

	result, err := s.handleValidate(context.Background(), buildRequest("gobby.validate", map[string]any{
		"workflow": "guard",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var ev schema.WorkflowEvaluation
	unmarshalResult(t, result, &ev)
	assert.False(t, ev.Valid)
}

func TestValidateTool_Inline(t *testing.T) {
	s := newTestServer(t, newMockStore(), &mockLoader{})

	result, err := s.handleValidate(context.Background(), buildRequest("gobby.validate", map[string]any{
		"definition": map[string]any{
			"name": "inline",
			"steps": []any{
				map[string]any{"name": "only"},
			},
		},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var ev schema.WorkflowEvaluation
	unmarshalResult(t, result, &ev)
	assert.True(t, ev.Valid)
	assert.Equal(t, "inline", ev.Workflow)
}

func TestValidateTool_WithDiagram(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Name: "task-loop",
		Steps: []schema.Step{
			{Name: "plan", Transitions: []schema.Transition{{To: "verify"}}},
			{Name: "verify"},
		},
	}
	ml := &mockLoader{defs: map[string]*schema.WorkflowDefinition{"task-loop": def}}
	s := newTestServer(t, newMockStore(), ml)

	result, err := s.handleValidate(context.Background(), buildRequest("gobby.validate", map[string]any{
		"workflow": "task-loop",
		"diagram":  true,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Evaluation *schema.WorkflowEvaluation `json:"evaluation"`
		Diagram    string                     `json:"diagram"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Evaluation.Valid)
	assert.Contains(t, out.Diagram, "graph TD")
	assert.Contains(t, out.Diagram, "plan --> verify")
}

func TestValidateTool_NoArgs(t *testing.T) {
	s := newTestServer(t, newMockStore(), &mockLoader{})

	result, err := s.handleValidate(context.Background(), buildRequest("gobby.validate", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExtractInt(t *testing.T) {
	args := map[string]any{"a": float64(3), "b": 7, "c": "nope"}
	assert.Equal(t, 3, extractInt(args, "a", 0))
	assert.Equal(t, 7, extractInt(args, "b", 0))
	assert.Equal(t, 1, extractInt(args, "c", 1))
	assert.Equal(t, 4, extractInt(nil, "a", 4))
}
