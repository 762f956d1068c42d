package tools

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/mcampbell/loom/internal/config"
	"github.com/mcampbell/loom/internal/llm"
)

// Registry manages connections to multiple MCP tool servers and routes tool
// calls to the server that owns each tool.
type Registry struct {
	connections map[string]*Connection // server name → connection
	toolIndex   map[string]string      // tool name → server name
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		toolIndex:   make(map[string]string),
	}
}

// LoadFromConfig connects to the MCP servers configured under mcp.servers and
// registers their tools. When names are given, only those servers are loaded.
// A server that fails to start is logged and skipped; the rest stay usable.
func LoadFromConfig(ctx context.Context, cfg *config.Config, names ...string) *Registry {
	r := NewRegistry()

	servers := cfg.MCPServers()
	if len(servers) == 0 {
		log.Println("no MCP servers configured; agent will run without tools")
		return r
	}

	for name, sc := range servers {
		if len(names) > 0 && !slices.Contains(names, name) {
			continue
		}
		if err := r.Register(ctx, name, sc); err != nil {
			log.Printf("warning: MCP server %s unavailable: %v", name, err)
		}
	}
	return r
}

// Register connects to a single MCP server and adds its tools to the registry.
// Disabled servers are skipped without error.
func (r *Registry) Register(ctx context.Context, name string, cfg config.ServerConfig) error {
	if cfg.Disabled {
		return nil
	}

	env := append([]string{}, os.Environ()...)
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	conn, err := Connect(ctx, name, cfg, env)
	if err != nil {
		return err
	}

	r.connections[name] = conn
	for _, toolName := range conn.ToolNames() {
		r.toolIndex[toolName] = name
	}

	return nil
}

// AllTools returns tool definitions from all registered servers.
func (r *Registry) AllTools() []llm.ToolDef {
	var all []llm.ToolDef
	for _, conn := range r.connections {
		all = append(all, conn.ToolDefs()...)
	}
	return all
}

// CallTool routes a tool call to the MCP server that owns the tool.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	serverName, ok := r.toolIndex[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	conn := r.connections[serverName]
	return conn.CallTool(ctx, name, args)
}

// ServerNames returns the names of connected servers.
func (r *Registry) ServerNames() []string {
	names := make([]string, 0, len(r.connections))
	for name := range r.connections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ToolsFor returns the tool definitions provided by one server.
func (r *Registry) ToolsFor(server string) []llm.ToolDef {
	conn, ok := r.connections[server]
	if !ok {
		return nil
	}
	return conn.ToolDefs()
}

// HasTools returns true if any tools are registered.
func (r *Registry) HasTools() bool {
	return len(r.toolIndex) > 0
}

// Close shuts down all MCP server connections.
func (r *Registry) Close() {
	for _, conn := range r.connections {
		conn.Close()
	}
}
