// Package mcp exposes the answer pipeline over the Model Context Protocol,
// letting MCP clients (editors, agents) query the knowledge base through
// the same orchestrator the HTTP API uses.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragcache/ragcache/internal/knowledge"
	"github.com/ragcache/ragcache/internal/log"
)

// Answerer produces an answer for a prompt. Satisfied by the rag pipeline.
type Answerer interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

// Server wraps the MCP SDK server around the answer pipeline.
type Server struct {
	mcpServer *mcp.Server
	pipeline  Answerer
	logger    log.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name     string
	Version  string
	Pipeline Answerer
	// Logger defaults to a plain text logger when nil.
	Logger log.Logger
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Config{})
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		pipeline: cfg.Pipeline,
		logger:   logger,
	}

	if err := s.registerAsk(); err != nil {
		return nil, err
	}

	return s, nil
}

// Run serves MCP requests on the transport until ctx is canceled.
// This is a blocking call.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Prompt string `json:"prompt" jsonschema:"the question to answer from the knowledge base"`
}

func (s *Server) registerAsk() error {
	schema, err := jsonschema.For[AskInput](nil)
	if err != nil {
		return fmt.Errorf("schema for ask tool: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "ask",
		Description: "Answer a question from the indexed knowledge base. " +
			"Retrieves the most relevant document and generates a grounded answer; " +
			"semantically similar questions are served from cache.",
		InputSchema: schema,
	}, s.Ask)

	return nil
}

// Ask handles the ask MCP tool call. Every failure reaches the client as an
// error result the model can read: domain outcomes (empty prompt, nothing
// indexed) get a plain message, upstream failures carry the wrapped cause.
func (s *Server) Ask(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, any, error) {
	if input.Prompt == "" {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "prompt is required"}},
			IsError: true,
		}, nil, nil
	}

	answer, err := s.pipeline.Answer(ctx, input.Prompt)
	if err != nil {
		if errors.Is(err, knowledge.ErrNoMatch) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "no matching knowledge found"}},
				IsError: true,
			}, nil, nil
		}
		s.logger.Error("ask tool failed", "error", err)
		return nil, nil, fmt.Errorf("answering prompt: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: answer}},
	}, nil, nil
}
