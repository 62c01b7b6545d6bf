package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crm-manual-rag/internal/config"
	"github.com/ziadkadry99/crm-manual-rag/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP chat server",
	Long:  `Starts the crmrag HTTP server with the chat page, a streaming WebSocket chat, JSON search and ask endpoints, collection stats and the question history API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireAPIKeys(false); err != nil {
			return err
		}
		withLLM := cfg.RequireAPIKeys(true) == nil
		if !withLLM {
			fmt.Fprintf(os.Stderr, "Warning: %s is not set; answering is disabled\n", config.APIKeyEnvVar(cfg.LLM.Provider))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openAppWith(ctx, cfg, withLLM)
		if err != nil {
			return err
		}
		defer closeApp(a)

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = serverPort
		}
		srv := server.New(server.Config{
			Port:     port,
			AllowAll: cfg.Server.AllowAllOrigins,
		}, server.Deps{
			Retriever: a.Retriever,
			Assistant: a.Assistant,
			Router:    a.Router,
			History:   a.History,
			Logger:    a.Log,
		})

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "crmrag server %s starting on port %d\n", Version, port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", a.DB.Path())
		fmt.Fprintf(os.Stderr, "  Vector store: %s\n", a.Store.Name())
		fmt.Fprintf(os.Stderr, "  Embeddings: %s\n", a.Embeddings.Name())

		return srv.Start()
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
