package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcampbell/loom/internal/agent"
	"github.com/mcampbell/loom/internal/config"
	"github.com/mcampbell/loom/internal/llm"
	"github.com/mcampbell/loom/internal/tools"
)

var runCmd = &cobra.Command{
	Use:   "run <message>",
	Short: "Send one message and print the response",
	Long: `Send a single message through the agent and print the model's reply
along with the result of every tool it called.

Examples:
  loom run "What is 25 * 4?"
  loom run --model 2 --server demo "Greet Alice"`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var profile *agent.Profile
	if profileFlag != "" {
		profilePath := filepath.Join(cfg.Agent.ProfilesDir, profileFlag+".yaml")
		profile, err = agent.LoadProfile(profilePath)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
	}

	modelID := modelFlag
	if modelID == "" {
		if profile != nil && profile.Model != "" {
			modelID = profile.Model
		} else {
			modelID = cfg.DefaultModel
		}
	}

	client, err := llm.ForModel(cfg, modelID)
	if err != nil {
		return err
	}

	ctx := context.Background()

	registry := tools.LoadFromConfig(ctx, cfg, serverFlags...)
	defer registry.Close()

	maxIter := cfg.Agent.MaxIterations
	if profile != nil && profile.MaxIter > 0 {
		maxIter = profile.MaxIter
	}

	a := agent.New(client, registry, maxIter)
	a.SetMaxTokens(cfg.Agent.ContextMaxTokens)
	if profile != nil {
		a.SetSystemPrompt(profile.SystemPrompt)
		a.FilterTools(profile.Tools)
	}

	result, err := a.RunOnce(ctx, args[0])
	if err != nil {
		return err
	}

	if result.Content != "" {
		fmt.Println(result.Content)
	}
	for _, tr := range result.ToolResults {
		if tr.Err != "" {
			fmt.Printf("[%s] error: %s\n", tr.Tool, tr.Err)
			continue
		}
		out := strings.TrimSpace(tr.Result)
		fmt.Printf("[%s] %s\n", tr.Tool, out)
	}

	return nil
}
