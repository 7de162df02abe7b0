// Package mcp exposes the evaluation core over the Model Context
// Protocol: dry-run validation, single-event evaluation, and session
// status, served over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Zeeeepa/gobby/internal/catalog"
	"github.com/Zeeeepa/gobby/internal/engine"
	"github.com/Zeeeepa/gobby/internal/store"
	"github.com/Zeeeepa/gobby/internal/validation"
)

// GobbyServerDeps holds the dependencies for creating a GobbyServer.
type GobbyServerDeps struct {
	Evaluator *engine.UnifiedEvaluator
	Validator *validation.WorkflowValidator
	Loader    engine.Loader
	Store     store.Store
	Catalog   catalog.Catalog
	Logger    *slog.Logger
}

// GobbyServer wraps an MCP server with gobby-specific tool handlers.
type GobbyServer struct {
	evaluator *engine.UnifiedEvaluator
	validator *validation.WorkflowValidator
	loader    engine.Loader
	store     store.Store
	catalog   catalog.Catalog
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewGobbyServer creates a new GobbyServer with all tools registered.
func NewGobbyServer(deps GobbyServerDeps) *GobbyServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &GobbyServer{
		evaluator: deps.Evaluator,
		validator: deps.Validator,
		loader:    deps.Loader,
		store:     deps.Store,
		catalog:   deps.Catalog,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"gobby",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Gobby coordinates coding-agent sessions through declarative workflows. Use gobby.event to evaluate a hook event against a session's workflows, gobby.attach to attach a workflow to a session, gobby.status to inspect session state, and gobby.validate to dry-run a workflow definition."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *GobbyServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *GobbyServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *GobbyServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: eventTool(), Handler: s.handleEvent},
		{Tool: attachTool(), Handler: s.handleAttach},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: validateTool(), Handler: s.handleValidate},
	}
}

// --- Tool definitions ---

func eventTool() mcp.Tool {
	return mcp.NewTool("gobby.event",
		mcp.WithDescription("Evaluate one hook event against every workflow attached to a session. Returns a decision (allow, block, or modify) plus context to inject"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Agent session identifier")),
		mcp.WithString("event_type", mcp.Required(), mcp.Description("Hook event type, e.g. before_tool_call, session_start, stop")),
		mcp.WithString("source", mcp.Description("Originating harness, e.g. claude, vscode")),
		mcp.WithObject("data", mcp.Description("Event payload (tool_name, approval, prompt text, ...)")),
	)
}

func attachTool() mcp.Tool {
	return mcp.NewTool("gobby.attach",
		mcp.WithDescription("Attach a workflow to a session so subsequent events are evaluated against it"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Agent session identifier")),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Workflow definition name")),
		mcp.WithNumber("priority", mcp.Description("Evaluation priority; lower runs first (default 0)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("gobby.status",
		mcp.WithDescription("Get a session's workflow instances and their current steps"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Agent session identifier")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("gobby.validate",
		mcp.WithDescription("Dry-run a workflow definition without executing actions. Returns findings (errors, warnings, info) and a step trace"),
		mcp.WithString("workflow", mcp.Description("Name of an authored workflow to load and validate")),
		mcp.WithObject("definition", mcp.Description("Inline workflow definition to validate instead of a named one")),
		mcp.WithBoolean("diagram", mcp.Description("Include a Mermaid flowchart of the step graph in the result")),
	)
}
