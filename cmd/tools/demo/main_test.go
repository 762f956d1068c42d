package main

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestHandleGreet(t *testing.T) {
	res, err := handleGreet(context.Background(), callReq("greet", map[string]any{"name": "Alice"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	if got := resultText(t, res); !strings.Contains(got, "Alice") {
		t.Errorf("greet result = %q, want it to mention Alice", got)
	}
}

func TestHandleGreetMissingName(t *testing.T) {
	res, err := handleGreet(context.Background(), callReq("greet", map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error result for missing name")
	}
}

func TestHandleCalculate(t *testing.T) {
	tests := []struct {
		op      string
		a, b    float64
		want    string
		wantErr bool
	}{
		{op: "add", a: 2, b: 3, want: "5"},
		{op: "subtract", a: 10, b: 4, want: "6"},
		{op: "multiply", a: 25, b: 4, want: "100"},
		{op: "divide", a: 9, b: 2, want: "4.5"},
		{op: "divide", a: 1, b: 0, wantErr: true},
		{op: "modulo", a: 1, b: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			res, err := handleCalculate(context.Background(), callReq("calculate", map[string]any{
				"operation": tt.op,
				"a":         tt.a,
				"b":         tt.b,
			}))
			if err != nil {
				t.Fatal(err)
			}
			if res.IsError != tt.wantErr {
				t.Fatalf("IsError = %v, want %v (%s)", res.IsError, tt.wantErr, resultText(t, res))
			}
			if !tt.wantErr {
				if got := resultText(t, res); got != tt.want {
					t.Errorf("calculate(%s, %v, %v) = %q, want %q", tt.op, tt.a, tt.b, got, tt.want)
				}
			}
		})
	}
}

func TestHandleCalculateNonNumeric(t *testing.T) {
	res, err := handleCalculate(context.Background(), callReq("calculate", map[string]any{
		"operation": "add",
		"a":         "not a number",
		"b":         2.0,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error result for non-numeric operand")
	}
}

func TestHandleGetInfo(t *testing.T) {
	res, err := handleGetInfo(context.Background(), callReq("get_info", nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatal("unexpected error result")
	}
	got := resultText(t, res)
	for _, tool := range []string{"greet", "calculate", "get_info"} {
		if !strings.Contains(got, tool) {
			t.Errorf("get_info result missing tool %q: %s", tool, got)
		}
	}
}
