package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/daemon"
	"teanga/internal/logging"
	"teanga/internal/store"
	"teanga/internal/workflow"
)

func main() {
	// Secrets such as TEANGA_LLM_API_KEY may live in a local .env file.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "teangad: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open episode database: %w", err)
	}

	arts := artifacts.NewStore(cfg, st, logger)
	steps := workflow.DefaultSteps(cfg, st, arts, logger)
	manager := workflow.NewManager(cfg, st, arts, steps, logger)

	d, err := daemon.New(cfg, st, logger, manager)
	if err != nil {
		st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("teanga daemon shutting down")
	return nil
}
