package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"comanda/internal/domain/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		subject   string
		companyID int64
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token (needs JWT_SECRET)",
		Long: `Sign a bearer token for the fiscal API.

A token with --company scopes its bearer to that company; without it the
bearer may emit for any company.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET not set")
			}
			cfg := auth.DefaultJWTConfig(secret)
			if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
				cfg.Issuer = issuer
			}
			cfg.AccessTokenTTL = ttl

			token, expiresAt, err := auth.NewJWTService(cfg).GenerateAccessToken(subject, companyID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (terminal or operator name)")
	cmd.Flags().Int64Var(&companyID, "company", 0, "Company the bearer is scoped to")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
