package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcampbell/loom/internal/config"
	"github.com/mcampbell/loom/internal/llm"
)

const (
	clientName    = "loom"
	clientVersion = "0.1.0"
)

// Connection wraps an mcp-go client for a single tool server.
type Connection struct {
	name   string
	client *client.Client
	tools  []mcp.Tool
}

// Connect starts a connection to an MCP server described by the config entry.
// Stdio servers are launched as subprocesses; sse and http servers are reached
// at their configured URL.
func Connect(ctx context.Context, name string, cfg config.ServerConfig, env []string) (*Connection, error) {
	c, err := newTransportClient(cfg, env)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server %s: %w", name, err)
	}

	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("starting MCP transport for %s: %w", name, err)
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing MCP server %s: %w", name, err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("listing tools from %s: %w", name, err)
	}

	return &Connection{
		name:   name,
		client: c,
		tools:  result.Tools,
	}, nil
}

func newTransportClient(cfg config.ServerConfig, env []string) (*client.Client, error) {
	switch cfg.Transport {
	case "", "stdio":
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		return client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	case "sse":
		if cfg.URL == "" {
			return nil, fmt.Errorf("sse transport requires a url")
		}
		return client.NewSSEMCPClient(cfg.URL)
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("http transport requires a url")
		}
		return client.NewStreamableHttpClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown transport %q (want stdio, sse, or http)", cfg.Transport)
	}
}

// ToolDefs converts MCP tool schemas to llm.ToolDef for the LLM API.
func (c *Connection) ToolDefs() []llm.ToolDef {
	var defs []llm.ToolDef
	for _, t := range c.tools {
		params := map[string]any{
			"type": t.InputSchema.Type,
		}
		if t.InputSchema.Properties != nil {
			params["properties"] = t.InputSchema.Properties
		}
		if len(t.InputSchema.Required) > 0 {
			params["required"] = t.InputSchema.Required
		}
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return defs
}

// CallTool invokes a tool on this MCP server and returns the text result.
// Server-side failures come back as "error: ..." text, not a Go error, so the
// agent can feed them to the model.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling tool %s on %s: %w", name, c.name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}

	text := strings.Join(parts, "\n")
	if result.IsError {
		return "error: " + text, nil
	}
	return text, nil
}

// ToolNames returns the names of all tools on this server.
func (c *Connection) ToolNames() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}

// Close shuts down the connection (and the subprocess for stdio servers).
func (c *Connection) Close() {
	c.client.Close()
}
