// Command askcamctl talks to a running askcam over MCP.
//
//	askcamctl status
//	askcamctl ask "what is on the table?"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/askcam-lab/internal/mcp"
)

var version = "dev"

func main() {
	addr := flag.String("url", envOr("ASKCAM_MCP_URL", "ws://127.0.0.1:8080/mcp/ws"), "askcam MCP websocket URL")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] status | ask <question>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	tool, args, err := parseCommand(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	out, err := call(ctx, *addr, tool, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "askcamctl:", err)
		os.Exit(1)
	}
	fmt.Println(out)
}

func parseCommand(argv []string) (string, map[string]any, error) {
	if len(argv) == 0 {
		return "", nil, fmt.Errorf("missing command")
	}
	switch argv[0] {
	case mcp.ToolStatus:
		return mcp.ToolStatus, map[string]any{}, nil
	case mcp.ToolAsk:
		q := strings.TrimSpace(strings.Join(argv[1:], " "))
		if q == "" {
			return "", nil, fmt.Errorf("ask needs a question")
		}
		return mcp.ToolAsk, map[string]any{"question": q}, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", argv[0])
	}
}

func call(ctx context.Context, url, tool string, args map[string]any) (string, error) {
	c := mcp.NewClientWrapper("askcamctl", version)
	if err := c.ConnectWebSocket(ctx, url); err != nil {
		return "", fmt.Errorf("connect %s: %w", url, err)
	}
	defer c.Close()
	return c.CallText(ctx, tool, args)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
