package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const defaultPort = 8080

func main() {
	httpFlag := flag.Bool("http", false, "Serve over streamable HTTP instead of stdio")
	sseFlag := flag.Bool("sse", false, "Serve over SSE instead of stdio")
	portFlag := flag.Int("port", 0, "Port for HTTP/SSE transports")
	flag.Parse()

	s := server.NewMCPServer("loom-demo", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "greet",
		Description: "Greet someone by name.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Name of the person to greet",
				},
			},
			Required: []string{"name"},
		},
	}, handleGreet)

	s.AddTool(mcp.Tool{
		Name:        "calculate",
		Description: "Perform a basic arithmetic operation on two numbers.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"description": "One of: add, subtract, multiply, divide",
				},
				"a": map[string]any{
					"type":        "number",
					"description": "First operand",
				},
				"b": map[string]any{
					"type":        "number",
					"description": "Second operand",
				},
			},
			Required: []string{"operation", "a", "b"},
		},
	}, handleCalculate)

	s.AddTool(mcp.Tool{
		Name:        "get_info",
		Description: "Get information about this server and its tools.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, handleGetInfo)

	// Transport: flags win, then MCP_TRANSPORT, then stdio
	transport := "stdio"
	switch {
	case *httpFlag:
		transport = "http"
	case *sseFlag:
		transport = "sse"
	default:
		if t := os.Getenv("MCP_TRANSPORT"); t != "" {
			transport = t
		}
	}

	port := *portFlag
	if port == 0 {
		if p, err := strconv.Atoi(os.Getenv("MCP_PORT")); err == nil && p > 0 {
			port = p
		} else {
			port = defaultPort
		}
	}
	addr := fmt.Sprintf(":%d", port)

	var err error
	switch transport {
	case "stdio":
		err = server.ServeStdio(s)
	case "http":
		fmt.Fprintf(os.Stderr, "loom-demo listening on http://localhost%s/mcp\n", addr)
		err = server.NewStreamableHTTPServer(s).Start(addr)
	case "sse":
		fmt.Fprintf(os.Stderr, "loom-demo listening on http://localhost%s/sse\n", addr)
		err = server.NewSSEServer(s).Start(addr)
	default:
		err = fmt.Errorf("unknown transport %q (want stdio, http, or sse)", transport)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func getArgs(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}

// toFloat converts JSON numbers, which may arrive as float64 or string.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func handleGreet(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	name, _ := args["name"].(string)
	if name == "" {
		return errResult("error: 'name' is required"), nil
	}
	return textResult(fmt.Sprintf("Hello, %s! Welcome to the demo server.", name)), nil
}

func handleCalculate(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	op, _ := args["operation"].(string)
	a, okA := toFloat(args["a"])
	b, okB := toFloat(args["b"])
	if !okA || !okB {
		return errResult("error: 'a' and 'b' must be numbers"), nil
	}

	var result float64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return errResult("error: division by zero"), nil
		}
		result = a / b
	default:
		return errResult(fmt.Sprintf("error: unknown operation %q (want add, subtract, multiply, or divide)", op)), nil
	}

	return textResult(strconv.FormatFloat(result, 'f', -1, 64)), nil
}

func handleGetInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info := map[string]any{
		"name":        "loom-demo",
		"version":     "0.1.0",
		"tools":       []string{"greet", "calculate", "get_info"},
		"description": "A demo MCP server for trying out tool calling.",
	}
	data, err := json.Marshal(info)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return textResult(string(data)), nil
}
