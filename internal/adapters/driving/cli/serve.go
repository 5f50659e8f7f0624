package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/northwind-labs/atlas/internal/adapters/driven/storage/sqlite"
	"github.com/northwind-labs/atlas/internal/adapters/driving/httpapi"
	"github.com/northwind-labs/atlas/internal/core/services"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP chat API",
	Long: `Starts the HTTP API serving chat turns, streaming, chat history and
title generation. Requires an ingested corpus and an OpenAI API key.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	retrieval, _, closeRetrieval, err := buildRetrieval()
	if err != nil {
		return err
	}
	defer closeRetrieval()

	guard, closeGuard, err := buildQueryGuard()
	if err != nil {
		return err
	}
	defer closeGuard()

	llm, err := buildLLM()
	if err != nil {
		return err
	}
	defer llm.Close() //nolint:errcheck

	chatStore, err := sqlite.NewChatStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening chat store: %w", err)
	}
	defer chatStore.Close() //nolint:errcheck

	agent := services.NewAgent(llm, retrieval, guard)
	if cfg.Agent.MaxToolCalls > 0 {
		agent.SetMaxToolCalls(cfg.Agent.MaxToolCalls)
	}
	agent.SetRetrievalOptions(retrievalOptions())
	chat := services.NewChatManager(chatStore, agent, llm)

	server := httpapi.NewServer(chat, httpapi.AuthConfig{
		Enabled: cfg.Auth.Enabled,
		Secret:  cfg.Auth.JWTSecret,
		Expiry:  time.Duration(cfg.Auth.ExpiryHours) * time.Hour,
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Serving on %s (model %s)\n", addr, llm.ModelName())
	return server.Run(ctx, addr)
}
