// Package mcptool exposes the chat controller as MCP tools so agents can ask
// the writer for content the same way the web page does.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/comigor/writer-chat/internal/chat"
	"github.com/comigor/writer-chat/internal/session"
)

const defaultSession = "mcp-default"

// Server registers the writer tools on an MCP server.
type Server struct {
	sessions *session.Manager
	srv      *mcpserver.MCPServer
}

// New creates the MCP server and registers its tools.
func New(sessions *session.Manager, version string) *Server {
	s := &Server{
		sessions: sessions,
		srv: mcpserver.NewMCPServer(
			"writer-chat",
			version,
			mcpserver.WithRecovery(),
			mcpserver.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// Handler serves the MCP streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.srv)
}

func (s *Server) registerTools() {
	s.srv.AddTool(
		mcp.NewTool("write",
			mcp.WithDescription("Ask the writer agent for an essay, story, poem, email, or letter. Earlier prompts of the same MCP session are part of the conversation."),
			mcp.WithString("prompt",
				mcp.Description("What to write"),
				mcp.Required(),
			),
		),
		s.handleWrite,
	)

	s.srv.AddTool(
		mcp.NewTool("transcript",
			mcp.WithDescription("Return the conversation of this MCP session as JSON"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleTranscript,
	)

	s.srv.AddTool(
		mcp.NewTool("reset",
			mcp.WithDescription("Forget the conversation of this MCP session"),
			mcp.WithDestructiveHintAnnotation(true),
		),
		s.handleReset,
	)
}

// sessionID maps the MCP client session onto a chat session.
func sessionID(ctx context.Context) string {
	if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil && cs.SessionID() != "" {
		return "mcp-" + cs.SessionID()
	}
	return defaultSession
}

func (s *Server) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("missing required argument: prompt"), nil
	}

	ctrl := s.sessions.Open(sessionID(ctx))
	snap, err := ctrl.Submit(ctx, prompt)
	switch {
	case errors.Is(err, chat.ErrEmptyPrompt), errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrClosed):
		return mcp.NewToolResultError(err.Error()), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("write failed: %v", err)), nil
	}

	last := snap.Turns[len(snap.Turns)-1]
	if last.Diagnostic {
		return mcp.NewToolResultError(last.Content), nil
	}
	return mcp.NewToolResultText(last.Content), nil
}

func (s *Server) handleTranscript(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctrl, ok := s.sessions.Get(sessionID(ctx))
	if !ok {
		return mcp.NewToolResultText("[]"), nil
	}
	snap, err := ctrl.Snapshot()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading transcript: %v", err)), nil
	}
	data, err := json.Marshal(snap.Turns)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding transcript: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleReset(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.sessions.End(sessionID(ctx)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("conversation cleared"), nil
}
