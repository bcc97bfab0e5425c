package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/userloader/internal/app"
	"github.com/samvad-hq/userloader/internal/config"
	"github.com/samvad-hq/userloader/internal/logger"
	"github.com/samvad-hq/userloader/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "userserver start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("userserver starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	list, err := app.NewUserList(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize user list", "error", err)
		return err
	}
	defer list.Close()

	srv, err := server.New(cfg.HTTPAddr, list, log)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("userserver run: %w", err)
	}
	return nil
}
