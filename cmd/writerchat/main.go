package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/comigor/writer-chat/internal/config"
	"github.com/comigor/writer-chat/internal/eventbus"
	"github.com/comigor/writer-chat/internal/llm"
	"github.com/comigor/writer-chat/internal/logger"
	"github.com/comigor/writer-chat/internal/mcptool"
	"github.com/comigor/writer-chat/internal/session"
	"github.com/comigor/writer-chat/internal/web"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "writerchat: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is done. Configuration and client errors are returned
// before anything listens or dials out.
func run(ctx context.Context, logOut io.Writer) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Setup(logOut, cfg.Log.Format, cfg.Log.Level)

	// Initialize LLM client
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		logger.L.Error("failed to create llm client", "error", err)
		return err
	}
	completer := llm.NewCompleter(client, cfg.LLM)

	bus := eventbus.New()
	newStore, closeStores := session.Stores(cfg.History.Backend)
	defer func() {
		if err := closeStores(); err != nil {
			logger.L.Warn("closing history", "error", err)
		}
	}()
	sessions := session.NewManager(newStore, completer, cfg.LLM.SystemPrompt, bus)

	tools := mcptool.New(sessions, version)
	srv := web.New(sessions, bus, web.PageInfo{
		Title:  cfg.LLM.AppTitle,
		Icon:   "🤖",
		Model:  cfg.LLM.Model,
		API:    "OpenRouter",
		Footer: cfg.UI.Footer,
	}, web.WithMCP(tools.Handler()))

	logger.L.Info("writer chat ready", "model", cfg.LLM.Model, "base_url", cfg.LLM.BaseURL, "history", cfg.History.Backend)
	if err := srv.Start(ctx, cfg.Server.Addr()); err != nil {
		logger.L.Error("server failed", "error", err)
		return err
	}
	return nil
}
