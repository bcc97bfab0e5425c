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
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "userlist: %v\n", err)
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

	logger.DebugObj("userlist starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	list, err := app.NewUserList(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize user list", "error", err)
		return err
	}
	defer list.Close()

	fmt.Fprintln(os.Stdout, "This is UserList")
	return list.Run(ctx, os.Stdout)
}
