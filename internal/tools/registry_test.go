package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcampbell/loom/internal/config"
	"github.com/mcampbell/loom/internal/tools"
)

// The integration tests below need the demo tool server binary.
// Run: make build-tools && go test ./internal/tools/ -v

func binPath(name string) string {
	// Walk up from the test's working directory to find the project root bin/
	wd, _ := os.Getwd()
	for d := wd; d != "/"; d = filepath.Dir(d) {
		candidate := filepath.Join(d, "bin", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join("bin", name) // fallback
}

func skipIfNoBinary(t *testing.T, name string) string {
	t.Helper()
	path := binPath(name)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("binary %s not found at %s (run make build-tools first)", name, path)
	}
	return path
}

// --- Registry tests ---

func TestRegistryEmpty(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	if r.HasTools() {
		t.Fatal("empty registry should not have tools")
	}
	if got := r.AllTools(); len(got) != 0 {
		t.Fatalf("AllTools() = %d, want 0", len(got))
	}

	_, err := r.CallTool(context.Background(), "nonexistent", nil)
	if err == nil {
		t.Fatal("CallTool on empty registry should return error")
	}
}

func TestRegistrySkipsDisabled(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	err := r.Register(context.Background(), "disabled-server", config.ServerConfig{
		Command:  "/nonexistent/binary",
		Disabled: true,
	})
	if err != nil {
		t.Fatalf("Register disabled server should not error: %v", err)
	}
	if r.HasTools() {
		t.Fatal("disabled server should not register tools")
	}
}

func TestRegisterBadCommand(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	err := r.Register(context.Background(), "bad", config.ServerConfig{
		Command: "/nonexistent/binary",
	})
	if err == nil {
		t.Fatal("Register with bad command should return error")
	}
}

func TestRegisterTransportValidation(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	tests := []struct {
		name string
		cfg  config.ServerConfig
	}{
		{"stdio without command", config.ServerConfig{Transport: "stdio"}},
		{"sse without url", config.ServerConfig{Transport: "sse"}},
		{"http without url", config.ServerConfig{Transport: "http"}},
		{"unknown transport", config.ServerConfig{Transport: "carrier-pigeon", Command: "bin/x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(context.Background(), "srv", tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFromConfigEmpty(t *testing.T) {
	cfg := &config.Config{}
	r := tools.LoadFromConfig(context.Background(), cfg)
	defer r.Close()

	if r.HasTools() {
		t.Fatal("expected no tools for empty config")
	}
}

func TestLoadFromConfigSkipsBroken(t *testing.T) {
	cfg := &config.Config{
		MCP: config.MCPConfig{
			Servers: map[string]config.ServerConfig{
				"broken": {Command: "/nonexistent/binary"},
			},
		},
	}
	// A broken server must not prevent the registry from being returned.
	r := tools.LoadFromConfig(context.Background(), cfg)
	defer r.Close()

	if r.HasTools() {
		t.Fatal("broken server should not register tools")
	}
}

// --- demo server integration tests ---

func demoConfig(bin string) config.ServerConfig {
	return config.ServerConfig{Command: bin, Transport: "stdio"}
}

func TestDemoServerTools(t *testing.T) {
	bin := skipIfNoBinary(t, "loom-tool-demo")

	r := tools.NewRegistry()
	defer r.Close()

	ctx := context.Background()
	if err := r.Register(ctx, "demo", demoConfig(bin)); err != nil {
		t.Fatalf("Register demo: %v", err)
	}

	expected := map[string]bool{"greet": false, "calculate": false, "get_info": false}
	for _, td := range r.AllTools() {
		if _, ok := expected[td.Name]; ok {
			expected[td.Name] = true
		}
		if td.Description == "" {
			t.Errorf("tool %s should have a description", td.Name)
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("tool %s not discovered", name)
		}
	}

	result, err := r.CallTool(ctx, "greet", map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("greet: %v", err)
	}
	if !strings.Contains(result, "Alice") {
		t.Errorf("greet result: %q", result)
	}

	result, err = r.CallTool(ctx, "calculate", map[string]any{
		"operation": "multiply",
		"a":         float64(25),
		"b":         float64(4),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !strings.Contains(result, "100") {
		t.Errorf("calculate result: %q", result)
	}

	result, err = r.CallTool(ctx, "get_info", map[string]any{})
	if err != nil {
		t.Fatalf("get_info: %v", err)
	}
	if !strings.Contains(result, "tools") {
		t.Errorf("get_info result: %q", result)
	}
}

func TestDemoServerToolErrors(t *testing.T) {
	bin := skipIfNoBinary(t, "loom-tool-demo")

	r := tools.NewRegistry()
	defer r.Close()

	ctx := context.Background()
	if err := r.Register(ctx, "demo", demoConfig(bin)); err != nil {
		t.Fatalf("Register demo: %v", err)
	}

	// Division by zero comes back as tool error text, not a Go error.
	result, err := r.CallTool(ctx, "calculate", map[string]any{
		"operation": "divide",
		"a":         float64(1),
		"b":         float64(0),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !strings.Contains(result, "error") {
		t.Errorf("expected division-by-zero error text, got: %q", result)
	}

	result, err = r.CallTool(ctx, "calculate", map[string]any{
		"operation": "modulo",
		"a":         float64(1),
		"b":         float64(2),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !strings.Contains(result, "error") {
		t.Errorf("expected unknown-operation error text, got: %q", result)
	}
}

func TestLoadFromConfigNameFilter(t *testing.T) {
	bin := skipIfNoBinary(t, "loom-tool-demo")

	cfg := &config.Config{
		MCP: config.MCPConfig{
			Servers: map[string]config.ServerConfig{
				"demo":  demoConfig(bin),
				"other": {Command: "/nonexistent/binary"},
			},
		},
	}

	r := tools.LoadFromConfig(context.Background(), cfg, "demo")
	defer r.Close()

	names := r.ServerNames()
	if len(names) != 1 || names[0] != "demo" {
		t.Fatalf("ServerNames() = %v, want [demo]", names)
	}
	if got := len(r.ToolsFor("demo")); got != 3 {
		t.Errorf("ToolsFor(demo) = %d tools, want 3", got)
	}
}
