// Package mcp exposes the assistant as an MCP server over websocket and
// provides the client used by askcamctl.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askcam-lab/internal/assistant"
	"github.com/askcam-lab/internal/logging"
)

const (
	ToolStatus = "status"
	ToolAsk    = "ask"
)

// Service is the part of the coordinator the tools drive.
type Service interface {
	Snapshot() assistant.Snapshot
	Ask(ctx context.Context, question string) (assistant.Turn, error)
}

type statusArgs struct{}

type askArgs struct {
	Question string `json:"question" jsonschema:"question about what the camera currently sees"`
}

// NewServer builds an MCP server with the status and ask tools.
func NewServer(svc Service, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "askcam", Version: version}, nil)

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolStatus,
		Description: "Current assistant phase, last question and last answer.",
	}, func(ctx context.Context, req *sdk.CallToolRequest, _ statusArgs) (*sdk.CallToolResult, any, error) {
		b, err := json.Marshal(svc.Snapshot())
		if err != nil {
			return nil, nil, err
		}
		return textResult(string(b), false), nil, nil
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolAsk,
		Description: "Ask a question about the current camera frame. The answer is also spoken aloud.",
	}, func(ctx context.Context, req *sdk.CallToolRequest, args askArgs) (*sdk.CallToolResult, any, error) {
		if args.Question == "" {
			return textResult("question is required", true), nil, nil
		}
		turn, err := svc.Ask(ctx, args.Question)
		switch {
		case errors.Is(err, assistant.ErrBusy):
			return textResult("assistant is busy with another question, try again shortly", true), nil, nil
		case err != nil:
			return textResult(fmt.Sprintf("ask failed: %v", err), true), nil, nil
		}
		logging.Infow("mcp ask answered", "correlation_id", turn.ID, "outcome", string(turn.Outcome))
		return textResult(turn.Answer, turn.Outcome == assistant.OutcomePanicked), nil, nil
	})
	return server
}

func textResult(text string, isError bool) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
		IsError: isError,
	}
}

// Handler accepts MCP sessions over websocket. Each connection gets its own
// server session that lives until the client disconnects.
func Handler(server *sdk.Server) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp websocket upgrade failed", "err", err)
			return
		}
		session, err := server.Connect(r.Context(), newWebSocketTransport(conn), nil)
		if err != nil {
			logging.Warnw("mcp server connect failed", "err", err)
			_ = conn.Close()
			return
		}
		logging.Infow("mcp session opened", "remote", r.RemoteAddr)
		if err := session.Wait(); err != nil {
			logging.Debugw("mcp session ended", "remote", r.RemoteAddr, "err", err)
		}
	})
}
