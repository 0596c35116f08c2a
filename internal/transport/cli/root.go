package cli

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"invofox/internal/app"
	"invofox/internal/config"
	"invofox/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "invofox",
		Short:         "Invoice and receipt ledger",
		Long:          "invofox issues invoices, receipts and invoice-receipts and settles invoice balances.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newCounterCmd())
	cmd.AddCommand(newInvoiceCmd())
	cmd.AddCommand(newDocumentsCmd())
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "invofox %s (%s)\n", version, commit)
		},
	}
}

// loadConfig reads .env, the optional YAML file and the environment, applies
// overrides, then sets up the global logger.
func loadConfig(overrides ...func(*config.AppConfig)) (config.AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using system env or defaults")
	}

	cfg, err := config.Load()
	if err != nil {
		return config.AppConfig{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := logger.Setup(logger.LogConfig{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: cfg.Log.TimeFormat,
		Output:     cfg.Log.Output,
	}); err != nil {
		return config.AppConfig{}, fmt.Errorf("logger setup: %w", err)
	}
	return cfg, nil
}

func openApp(ctx context.Context, overrides ...func(*config.AppConfig)) (*app.App, error) {
	cfg, err := loadConfig(overrides...)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log.Logger)
}
