package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcampbell/loom/internal/llm"
	"github.com/mcampbell/loom/internal/tools"
)

const defaultSystemPrompt = `You are Loom, a helpful AI assistant with access to tools.
When a task needs information or actions you cannot produce yourself, use the available tools.
After using a tool, interpret the results for the user.`

const defaultMaxTokens = 6000

// Agent manages a conversation and executes the tool-calling loop.
type Agent struct {
	llm          llm.Client
	utilityLLM   llm.Client // optional, for summarization/titles
	registry     *tools.Registry
	history      []llm.Message
	tools        []llm.ToolDef
	maxIter      int
	maxTokens    int
	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result string)
	OnTextDelta  func(delta string)
}

// New creates an Agent with the given LLM client, tool registry, and iteration limit.
// A nil or empty registry yields a plain chat agent with no tools.
func New(client llm.Client, registry *tools.Registry, maxIterations int) *Agent {
	a := &Agent{
		llm:       client,
		registry:  registry,
		maxIter:   maxIterations,
		maxTokens: defaultMaxTokens,
		history: []llm.Message{
			llm.SystemMessage(defaultSystemPrompt),
		},
	}
	if registry != nil && registry.HasTools() {
		a.tools = registry.AllTools()
	}
	return a
}

// SetSystemPrompt overrides the default system prompt.
func (a *Agent) SetSystemPrompt(prompt string) {
	if prompt != "" {
		a.history[0] = llm.SystemMessage(prompt)
	}
}

// FilterTools restricts available tools to the given names.
func (a *Agent) FilterTools(names []string) {
	if len(names) == 0 {
		return
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var filtered []llm.ToolDef
	for _, t := range a.tools {
		if allowed[t.Name] {
			filtered = append(filtered, t)
		}
	}
	a.tools = filtered
}

// SetMaxTokens sets the context window token budget for history compaction.
func (a *Agent) SetMaxTokens(maxTokens int) {
	if maxTokens > 0 {
		a.maxTokens = maxTokens
	}
}

// SetUtilityLLM sets an optional lightweight LLM client for housekeeping tasks
// like summarization.
func (a *Agent) SetUtilityLLM(client llm.Client) {
	a.utilityLLM = client
}

// SetClient swaps the main conversation LLM client (for mid-session model switching).
func (a *Agent) SetClient(client llm.Client) {
	a.llm = client
}

// compactHistory summarizes older messages when history exceeds the token budget.
func (a *Agent) compactHistory(ctx context.Context) error {
	total := estimateHistoryTokens(a.history)
	if total <= a.maxTokens {
		return nil
	}

	// Keep recent messages within 60% of budget
	recentBudget := a.maxTokens * 60 / 100
	splitIdx := findSplitPoint(a.history, recentBudget)
	if splitIdx >= len(a.history) {
		return nil // nothing to compact
	}

	// Old messages are indices 1 through splitIdx-1 (skip system prompt at 0)
	oldMessages := a.history[1:splitIdx]
	if len(oldMessages) == 0 {
		return nil
	}

	summarizer := a.llm
	if a.utilityLLM != nil {
		summarizer = a.utilityLLM
	}
	summary, err := summarizeMessages(ctx, summarizer, oldMessages)
	if err != nil {
		// Fallback: simple trim, keep last few messages
		a.trimHistory(10)
		return nil
	}

	// Rebuild history: system prompt + summary + recent messages
	summaryMsg := llm.SystemMessage("[Prior conversation summary]\n" + summary)
	newHistory := make([]llm.Message, 0, 2+len(a.history)-splitIdx)
	newHistory = append(newHistory, a.history[0]) // system prompt
	newHistory = append(newHistory, summaryMsg)
	newHistory = append(newHistory, a.history[splitIdx:]...)
	a.history = newHistory

	return nil
}

// Run sends a user message and executes the full tool-calling loop.
// Returns the final assistant text response.
func (a *Agent) Run(ctx context.Context, userMessage string) (string, error) {
	a.compactHistory(ctx)
	a.history = append(a.history, llm.UserMessage(userMessage))

	for i := 0; i < a.maxIter; i++ {
		resp, err := a.llm.ChatCompletion(ctx, a.history, a.tools)
		if err != nil {
			return "", fmt.Errorf("llm call (iteration %d): %w", i+1, err)
		}

		a.history = append(a.history, resp.Message)

		// If no tool calls, the LLM is done — return the text response
		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		a.executeToolCalls(ctx, resp.Message.ToolCalls)
		// Loop back — LLM will see the tool results and decide next action
	}

	return "", fmt.Errorf("agent reached max iterations (%d) without a final response", a.maxIter)
}

// RunStreaming is like Run but streams text output token-by-token via OnTextDelta.
func (a *Agent) RunStreaming(ctx context.Context, userMessage string) (string, error) {
	a.compactHistory(ctx)
	a.history = append(a.history, llm.UserMessage(userMessage))

	for i := 0; i < a.maxIter; i++ {
		resp, err := a.llm.ChatCompletionStream(ctx, a.history, a.tools, a.OnTextDelta)
		if err != nil {
			return "", fmt.Errorf("llm call (iteration %d): %w", i+1, err)
		}

		a.history = append(a.history, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		a.executeToolCalls(ctx, resp.Message.ToolCalls)
	}

	return "", fmt.Errorf("agent reached max iterations (%d) without a final response", a.maxIter)
}

// ToolResult is the outcome of one tool invocation within a single round.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result string `json:"result,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Result aggregates a single-round agent invocation.
type Result struct {
	Content     string       `json:"content"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// RunOnce sends a user message and performs exactly one LLM round, executing
// any requested tool calls and returning their results alongside the model's
// text. Tool failures and unknown tool names are recorded per call, never
// returned as errors.
func (a *Agent) RunOnce(ctx context.Context, userMessage string) (*Result, error) {
	a.compactHistory(ctx)
	a.history = append(a.history, llm.UserMessage(userMessage))

	resp, err := a.llm.ChatCompletion(ctx, a.history, a.tools)
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}
	a.history = append(a.history, resp.Message)

	res := &Result{Content: resp.Message.Content}
	if len(resp.Message.ToolCalls) == 0 {
		return res, nil
	}

	for _, tc := range resp.Message.ToolCalls {
		if a.OnToolCall != nil {
			a.OnToolCall(tc.Name, tc.Args)
		}

		text := a.executeTool(ctx, tc)

		if a.OnToolResult != nil {
			a.OnToolResult(tc.Name, text)
		}
		a.history = append(a.history, llm.ToolResultMessage(tc.ID, text))

		tr := ToolResult{Tool: tc.Name}
		// executeTool reports failures and unknown tools as "error: " result
		// text, so that prefix is what marks an error here. A tool whose own
		// output starts with "error: " is indistinguishable and lands in Err.
		if strings.HasPrefix(text, "error: ") {
			tr.Err = strings.TrimPrefix(text, "error: ")
		} else {
			tr.Result = text
		}
		res.ToolResults = append(res.ToolResults, tr)
	}

	return res, nil
}

// executeToolCalls runs each tool call, firing callbacks and appending results
// to history.
func (a *Agent) executeToolCalls(ctx context.Context, calls []llm.ToolCall) {
	for _, tc := range calls {
		if a.OnToolCall != nil {
			a.OnToolCall(tc.Name, tc.Args)
		}

		result := a.executeTool(ctx, tc)

		if a.OnToolResult != nil {
			a.OnToolResult(tc.Name, result)
		}

		a.history = append(a.history, llm.ToolResultMessage(tc.ID, result))
	}
}

// executeTool dispatches a tool call to the registry. Failures become result
// text so the model can react to them.
func (a *Agent) executeTool(ctx context.Context, tc llm.ToolCall) string {
	if a.registry == nil || !a.registry.HasTools() {
		return fmt.Sprintf("error: no tools available (requested %q)", tc.Name)
	}
	result, err := a.registry.CallTool(ctx, tc.Name, tc.Args)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return result
}

// History returns the current conversation history (for persistence/display).
func (a *Agent) History() []llm.Message {
	return a.history
}

// HistoryJSON returns the conversation as formatted JSON (for debugging).
func (a *Agent) HistoryJSON() string {
	data, _ := json.MarshalIndent(a.history, "", "  ")
	return string(data)
}

// trimHistory keeps the conversation within reasonable bounds.
// Preserves the system message and last N messages.
func (a *Agent) trimHistory(keepLast int) {
	if len(a.history) <= keepLast+1 {
		return
	}
	system := a.history[0]
	recent := a.history[len(a.history)-keepLast:]
	a.history = append([]llm.Message{system}, recent...)
}

// SetHistory replaces the conversation history (used when resuming a session).
func (a *Agent) SetHistory(messages []llm.Message) {
	a.history = messages
}

// Reset clears conversation history (keeps system prompt).
func (a *Agent) Reset() {
	a.history = a.history[:1]
}

// String returns a summary of the agent state.
func (a *Agent) String() string {
	return fmt.Sprintf("Agent(tools=%d, history=%d messages, maxIter=%d)",
		len(a.tools), len(a.history), a.maxIter)
}

// FormatToolCall returns a human-readable string for a tool call.
func FormatToolCall(name string, args map[string]any) string {
	var parts []string
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
