package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	appctx "comanda/internal/core/context"
	"comanda/pkg/logger"
)

var (
	version = "1.0.0"

	// Global flags
	databaseURL string
	logLevel    string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fiscalctl",
		Short: "Operate the NFC-e emission pipeline",
		Long: `fiscalctl runs emissions and maintains the fiscal schema and numbering.

Examples:
  # Apply pending migrations
  fiscalctl migrate up

  # Align a numbering stream with the last number used by a previous system
  fiscalctl sequence seed --company 7 --env producao --serie 1 --value 1041

  # Emit the document of a sale
  fiscalctl emit 501

  # Check how a payment label is classified
  fiscalctl payment-code "Cartão de Crédito"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			log, err := logger.New(logger.Config{Level: logLevel, Development: true, OutputPaths: []string{"stderr"}})
			if err != nil {
				return err
			}
			ctx := appctx.WithTrace(cmd.Context(), appctx.NewTraceContext())
			cmd.SetContext(logger.WithLogger(ctx, log))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (env: DATABASE_URL)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newEmitCmd(), newMigrateCmd(), newSequenceCmd(), newPaymentCodeCmd(), newTokenCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return rootCmd.ExecuteContext(context.Background())
}

func requireDatabaseURL() (string, error) {
	if databaseURL == "" {
		return "", errors.New("database url not set (use --database-url or DATABASE_URL)")
	}
	return databaseURL, nil
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
