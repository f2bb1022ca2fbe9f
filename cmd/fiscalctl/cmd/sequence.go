package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	corenumerator "comanda/internal/core/numerator"
	"comanda/internal/infrastructure/numerator"
	"comanda/internal/infrastructure/storage/postgres"
)

type sequenceFlags struct {
	companyID   int64
	environment string
	serie       int
}

func (f *sequenceFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.companyID, "company", 0, "Company id")
	cmd.Flags().StringVar(&f.environment, "env", string(corenumerator.Homologacao), "Environment (homologacao, producao)")
	cmd.Flags().IntVar(&f.serie, "serie", 1, "Document serie")
	_ = cmd.MarkFlagRequired("company")
}

func (f *sequenceFlags) key() (corenumerator.Key, error) {
	key := corenumerator.Key{
		CompanyID:   f.companyID,
		Environment: corenumerator.Environment(f.environment),
		Serie:       f.serie,
	}
	return key, key.Validate()
}

func newSequenceCmd() *cobra.Command {
	sequenceCmd := &cobra.Command{
		Use:   "sequence",
		Short: "Inspect and seed document numbering streams",
	}

	var currentFlags sequenceFlags
	current := &cobra.Command{
		Use:   "current",
		Short: "Print the last allocated number of a stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := currentFlags.key()
			if err != nil {
				return err
			}
			return withAllocator(cmd.Context(), func(alloc corenumerator.Allocator) error {
				n, err := alloc.Current(cmd.Context(), key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s last=%d\n", key, n)
				return nil
			})
		},
	}
	currentFlags.register(current)

	var seedFlags sequenceFlags
	var value int64
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Raise a stream to at least --value; never lowers it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := seedFlags.key()
			if err != nil {
				return err
			}
			return withAllocator(cmd.Context(), func(alloc corenumerator.Allocator) error {
				n, err := alloc.Seed(cmd.Context(), key, value)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s last=%d next=%d\n", key, n, n+1)
				return nil
			})
		},
	}
	seedFlags.register(seed)
	seed.Flags().Int64Var(&value, "value", 0, "Last number already used")
	_ = seed.MarkFlagRequired("value")

	sequenceCmd.AddCommand(current, seed)
	return sequenceCmd
}

func withAllocator(ctx context.Context, fn func(corenumerator.Allocator) error) error {
	dsn, err := requireDatabaseURL()
	if err != nil {
		return err
	}
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(numerator.New(pool))
}
