package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ariefcatur/lightshow-market/internal/app"
	"github.com/ariefcatur/lightshow-market/internal/config"
	"github.com/ariefcatur/lightshow-market/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "marketctl",
		Short:         "Operator tooling for the lightshow marketplace",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads config and a logger for a command.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// withInfra runs fn with open connections and closes them afterwards.
func withInfra(ctx context.Context, fn func(*app.Infra) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open infra: %w", err)
	}
	defer infra.Close()
	return fn(infra)
}
