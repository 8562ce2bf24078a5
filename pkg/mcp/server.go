// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the tool registry as an MCP server. Calls arriving
// over MCP take the same path as calls proposed by the oracle: safety gate
// first, then the executor.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/governance"
	"github.com/jllopis/opsagent/pkg/tools"
)

// Gate decides whether a tool call may run.
type Gate interface {
	Check(ctx context.Context, call core.ToolCall) governance.Decision
}

// Executor runs an allowed tool call.
type Executor interface {
	Execute(ctx context.Context, call core.ToolCall) core.Observation
}

var emptySchema = json.RawMessage(`{"type":"object"}`)

// Server wraps the mcp-go server around the registry.
type Server struct {
	mcpServer *server.MCPServer
	registry  *tools.Registry
	gate      Gate
	executor  Executor
	logger    *slog.Logger
}

// NewServer creates an MCP server with one MCP tool per registered tool, in
// registration order.
func NewServer(name, version string, registry *tools.Registry, gate Gate, executor Executor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		registry:  registry,
		gate:      gate,
		executor:  executor,
		logger:    logger,
	}
	for _, spec := range registry.List() {
		s.registerTool(spec)
	}
	return s
}

func (s *Server) registerTool(spec core.ToolSpec) {
	schema := spec.InputSchema
	if len(schema) == 0 {
		schema = emptySchema
	}
	tool := mcp.NewToolWithRawSchema(spec.Name, spec.Description, schema)
	name := spec.Name
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.CallTool(ctx, name, request.Params.Arguments), nil
	})
}

// CallTool runs one tool call through the gate and the executor. Failures
// come back as error results, never as protocol errors.
func (s *Server) CallTool(ctx context.Context, name string, arguments any) *mcp.CallToolResult {
	call := core.ToolCall{ToolName: name, RawInput: rawInput(arguments)}
	if !s.registry.Has(name) {
		return mcp.NewToolResultError("unrecognized tool: " + name)
	}

	decision := s.gate.Check(ctx, call)
	if decision.IsDenied() {
		s.logger.WarnContext(ctx, "mcp.tool.rejected",
			slog.String("tool", name),
			slog.String("rule_id", decision.RuleID),
			slog.String("reason", decision.Reason),
		)
		return mcp.NewToolResultError("refused: " + decision.Reason)
	}

	obs := s.executor.Execute(ctx, call)
	s.logger.InfoContext(ctx, "mcp.tool.observed",
		slog.String("tool", name),
		slog.String("status", string(obs.Status)),
	)
	if !obs.OK() {
		return mcp.NewToolResultError(obs.Text())
	}
	return mcp.NewToolResultText(obs.Content)
}

// HandleMessage processes one JSON-RPC message, as the stdio transport does.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ServeStdio serves MCP on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// rawInput turns MCP arguments back into the raw tool input the executor
// decodes. Objects are re-encoded as JSON; strings pass through.
func rawInput(arguments any) string {
	switch v := arguments.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.RawMessage:
		return string(v)
	}
	encoded, err := json.Marshal(arguments)
	if err != nil {
		return ""
	}
	if string(encoded) == "{}" || string(encoded) == "null" {
		return ""
	}
	return string(encoded)
}
