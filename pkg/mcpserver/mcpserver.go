// Package mcpserver exposes forge as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nstogner/forge/pkg/action"
	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/generate"
	"github.com/nstogner/forge/pkg/orchestrator"
)

const (
	toolGenerateApp  = "generate_app"
	toolExecutePlan  = "execute_plan"
	toolParseActions = "parse_actions"
)

// Server holds the services behind the MCP tools.
type Server struct {
	generator    *generate.Service
	orchestrator *orchestrator.Orchestrator
	version      string
}

// New creates a Server.
func New(generator *generate.Service, orch *orchestrator.Orchestrator, version string) *Server {
	return &Server{generator: generator, orchestrator: orch, version: version}
}

// MCPServer builds the MCP server with every tool registered.
func (s *Server) MCPServer() *server.MCPServer {
	m := server.NewMCPServer("forge", s.version, server.WithToolCapabilities(true))

	m.AddTool(mcp.NewTool(toolGenerateApp,
		mcp.WithDescription("Generate a self-contained HTML app from a natural-language request. Returns the html and its signature."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to build")),
		mcp.WithString("model", mcp.Description("Model id; the configured default when empty")),
		mcp.WithString("theme", mcp.Description("Visual theme, e.g. dark")),
	), s.handleGenerateApp)

	m.AddTool(mcp.NewTool(toolExecutePlan,
		mcp.WithDescription("Execute a multi-step implementation plan and return the generated files, step statuses and shell commands."),
		mcp.WithString("plan_json", mcp.Required(), mcp.Description("The plan as JSON: objectives, requirements, technologies, architecture, implementation[]")),
		mcp.WithString("model", mcp.Description("Model id; the configured default when empty")),
	), s.handleExecutePlan)

	m.AddTool(mcp.NewTool(toolParseActions,
		mcp.WithDescription("Extract <action> tags (file writes and shell commands) from model output."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Model output containing action tags")),
	), s.handleParseActions)

	return m
}

// ServeStdio serves the tools on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) handleGenerateApp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	resp, err := s.generator.Generate(ctx, generate.Request{
		Query: query,
		Model: request.GetString("model", ""),
		Theme: request.GetString("theme", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Generation failed: %v", err)), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleExecutePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var plan domain.Plan
	if err := json.Unmarshal([]byte(request.GetString("plan_json", "")), &plan); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid plan_json: %v", err)), nil
	}
	res := s.orchestrator.Execute(ctx, &plan, request.GetString("model", ""), nil)
	return jsonResult(res)
}

func (s *Server) handleParseActions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := request.GetString("text", "")
	out := struct {
		Actions []domain.Action `json:"actions"`
		Bundle  *action.Bundle  `json:"bundle,omitempty"`
	}{Actions: action.Parse(text)}
	if out.Actions == nil {
		out.Actions = []domain.Action{}
	}
	if b, ok := action.ParseBundle(text); ok {
		out.Bundle = &b
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
