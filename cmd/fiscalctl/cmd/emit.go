package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"comanda/internal/app"
	"comanda/internal/config"
	appctx "comanda/internal/core/context"
	"comanda/internal/infrastructure/http/v1/dto"
)

func newEmitCmd() *cobra.Command {
	var companyID int64

	cmd := &cobra.Command{
		Use:   "emit <sale-id>",
		Short: "Emit the fiscal document of a sale",
		Long: `Run the emission pipeline for one sale and print the outcome.

Each run allocates a new document number; a failed emission is not retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			saleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || saleID <= 0 {
				return fmt.Errorf("invalid sale id %q", args[0])
			}

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if databaseURL != "" {
				cfg.DatabaseURL = databaseURL
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if companyID != 0 {
				ctx = appctx.WithCaller(ctx, &appctx.CallerContext{Subject: "fiscalctl", CompanyID: companyID})
			}

			res, err := a.Emission.Emit(ctx, saleID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.FromEmitResult(res))
		},
	}

	cmd.Flags().Int64Var(&companyID, "company", 0, "Refuse sales of any other company")
	return cmd
}
