package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	modelFlag   string
	profileFlag string
	serverFlags []string
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom - LLM orchestration with MCP tools",
	Long: `Loom connects configured LLM endpoints to MCP tool servers.

Models are configured as indexed entries in loom.yaml and selected by index.
MCP servers declared under mcp.servers provide the tools agents can call.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model index from config (e.g. 1, 2)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Agent profile to use (e.g. default, coder)")
	rootCmd.PersistentFlags().StringSliceVar(&serverFlags, "server", nil, "Only load the named MCP servers (repeatable)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
