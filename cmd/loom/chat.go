package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mcampbell/loom/internal/agent"
	"github.com/mcampbell/loom/internal/config"
	"github.com/mcampbell/loom/internal/llm"
	"github.com/mcampbell/loom/internal/storage"
	"github.com/mcampbell/loom/internal/storage/sqlite"
	"github.com/mcampbell/loom/internal/tools"
)

// Set by `loom sessions resume` before delegating to runChat.
var resumeID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session with an agent",
	Long: `Start an interactive conversation with a Loom agent.
The agent can call tools from the configured MCP servers.

Examples:
  loom chat
  loom chat --model 2
  loom chat --profile coder --server demo`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Load agent profile if specified
	var profile *agent.Profile
	if profileFlag != "" {
		profilePath := filepath.Join(cfg.Agent.ProfilesDir, profileFlag+".yaml")
		profile, err = agent.LoadProfile(profilePath)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Resume an existing session or start a fresh one
	var sess *storage.Session
	if resumeID != "" {
		sess, err = store.GetSession(ctx, resumeID)
		if err != nil {
			return err
		}
	}

	modelID := modelFlag
	if modelID == "" {
		if sess != nil && sess.Model != "" {
			modelID = sess.Model
		} else if profile != nil && profile.Model != "" {
			modelID = profile.Model
		} else {
			modelID = cfg.DefaultModel
		}
	}

	mc, err := cfg.Model(modelID)
	if err != nil {
		return err
	}

	maxIter := cfg.Agent.MaxIterations
	if profile != nil && profile.MaxIter > 0 {
		maxIter = profile.MaxIter
	}

	fmt.Printf("Loom - Interactive Agent Chat\n")
	if profile != nil {
		fmt.Printf("Profile: %s\n", profile.Name)
	}
	fmt.Printf("Model: %s (%s/%s)\n", modelID, mc.Provider, mc.ModelName)

	// Connect to MCP servers from config
	registry := tools.LoadFromConfig(ctx, cfg, serverFlags...)
	defer registry.Close()

	if registry.HasTools() {
		fmt.Printf("Tools: %s\n", strings.Join(registry.ServerNames(), ", "))
	} else {
		fmt.Printf("Tools: none\n")
	}

	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	client, err := llm.ForModel(cfg, modelID)
	if err != nil {
		return err
	}
	a := agent.New(client, registry, maxIter)
	a.SetMaxTokens(cfg.Agent.ContextMaxTokens)

	// Apply profile overrides
	if profile != nil {
		a.SetSystemPrompt(profile.SystemPrompt)
		a.FilterTools(profile.Tools)
	}

	if sess == nil {
		sess = &storage.Session{
			ID:      uuid.New().String(),
			Status:  storage.StatusActive,
			Model:   modelID,
			Profile: profileFlag,
		}
		if err := store.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
	} else {
		messages, err := store.LoadMessages(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("loading messages: %w", err)
		}
		if len(messages) > 0 {
			a.SetHistory(messages)
		}
		fmt.Printf("Resumed session %s (%d messages)\n\n", sess.ID[:8], len(messages))
	}

	// Wire up callbacks for display
	a.OnTextDelta = func(delta string) {
		fmt.Print(delta)
	}
	a.OnToolCall = func(name string, args map[string]any) {
		fmt.Printf("\n  \033[33m⚡ Tool: %s\033[0m\n", agent.FormatToolCall(name, args))
	}
	a.OnToolResult = func(name string, result string) {
		// Show first few lines of result
		lines := strings.Split(strings.TrimSpace(result), "\n")
		preview := lines
		if len(preview) > 8 {
			preview = preview[:8]
		}
		for _, line := range preview {
			fmt.Printf("  \033[90m│ %s\033[0m\n", line)
		}
		if len(lines) > 8 {
			fmt.Printf("  \033[90m│ ... (%d more lines)\033[0m\n", len(lines)-8)
		}
		fmt.Println()
	}

	// Set up readline for input with history
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36myou>\033[0m ",
		HistoryFile:     "/tmp/loom_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Per-request cancellation: Ctrl+C cancels the active LLM request,
	// not the whole app. A second Ctrl+C while idle exits.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Handle slash commands
		if strings.HasPrefix(input, "/") {
			if handleCommand(input, a) {
				continue
			}
		}

		// Title the session from its first message
		if sess.Title == "" {
			sess.Title = input
			if len(sess.Title) > 80 {
				sess.Title = sess.Title[:80] + "..."
			}
			store.UpdateSession(ctx, sess)
		}

		// Create a per-request context so Ctrl+C only cancels this request
		reqCtx, cancel := context.WithCancel(context.Background())
		reqCancel = cancel

		// Run the agent with streaming output
		fmt.Printf("\n\033[32mloom>\033[0m ")
		_, err = a.RunStreaming(reqCtx, input)
		wasInterrupted := reqCtx.Err() != nil
		cancel()
		reqCancel = nil

		// Persist the turn, interrupted or not
		if saveErr := store.SaveMessages(ctx, sess.ID, a.History()); saveErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save session: %v\n", saveErr)
		}

		if err != nil {
			if wasInterrupted {
				fmt.Println("\n(interrupted)")
				continue
			}
			fmt.Printf("\n\033[31merror: %s\033[0m\n\n", err)
			continue
		}

		fmt.Printf("\n\n")
	}
}

func handleCommand(input string, a *agent.Agent) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		os.Exit(0)
	case "/reset":
		a.Reset()
		fmt.Println("Conversation reset.")
		fmt.Println()
	case "/history":
		fmt.Println(a.HistoryJSON())
		fmt.Println()
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /reset    - Clear conversation history")
		fmt.Println("  /history  - Show raw conversation history (JSON)")
		fmt.Println("  /quit     - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return true
}
