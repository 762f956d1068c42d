package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcampbell/loom/internal/config"
	"github.com/mcampbell/loom/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List MCP servers and the tools they provide",
	Long: `Connect to the configured MCP servers and list every tool they expose.

Examples:
  loom tools
  loom tools --server demo`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	registry := tools.LoadFromConfig(ctx, cfg, serverFlags...)
	defer registry.Close()

	names := registry.ServerNames()
	if len(names) == 0 {
		fmt.Println("No MCP servers connected.")
		return nil
	}

	for _, name := range names {
		defs := registry.ToolsFor(name)
		fmt.Printf("%s (%d tools)\n", name, len(defs))
		for _, d := range defs {
			desc := strings.TrimSpace(d.Description)
			if i := strings.IndexByte(desc, '\n'); i >= 0 {
				desc = desc[:i]
			}
			fmt.Printf("  %-20s %s\n", d.Name, desc)
		}
		fmt.Println()
	}

	return nil
}
