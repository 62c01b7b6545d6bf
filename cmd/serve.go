package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crm-manual-rag/internal/config"
	mcpserver "github.com/ziadkadry99/crm-manual-rag/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing manual search and question answering tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireAPIKeys(false); err != nil {
			return err
		}
		// Without chat model credentials the server still offers search.
		withLLM := cfg.RequireAPIKeys(true) == nil
		if !withLLM {
			fmt.Fprintf(os.Stderr, "Warning: %s is not set; ask_manual is disabled\n", config.APIKeyEnvVar(cfg.LLM.Provider))
		}

		// Stdout carries the protocol; progress and logs go to stderr.
		a, err := openAppWith(ctx, cfg, withLLM)
		if err != nil {
			return err
		}
		defer closeApp(a)

		mcpserver.Version = Version

		stats, _ := a.Router.Stats(ctx)
		points := 0
		for _, s := range stats {
			points += s.PointsCount
		}
		fmt.Fprintf(os.Stderr, "crmrag MCP server started on stdio (store=%s, points=%d)\n", a.Store.Name(), points)

		srv := mcpserver.NewServer(mcpserver.Deps{
			Retriever: a.Retriever,
			Assistant: a.Assistant,
			Embedder:  a.Embeddings,
			Router:    a.Router,
			History:   a.History,
		})
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
