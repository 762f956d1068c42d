package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcampbell/loom/internal/config"
	"github.com/mcampbell/loom/internal/server"
	"github.com/mcampbell/loom/internal/storage/sqlite"
	"github.com/mcampbell/loom/internal/tools"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Loom web server",
	Long: `Start the Loom HTTP server with REST API, WebSocket, and SSE support.

API endpoints are under /api.

Examples:
  loom serve
  loom serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Open storage
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	// Connect to MCP servers
	registry := tools.LoadFromConfig(context.Background(), cfg, serverFlags...)
	defer registry.Close()

	if registry.HasTools() {
		log.Printf("Tools: %s", strings.Join(registry.ServerNames(), ", "))
	} else {
		log.Println("Tools: none")
	}

	// Determine port
	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	// Create and start server
	srv := server.New(cfg, store, registry)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	return srv.Start(port)
}
