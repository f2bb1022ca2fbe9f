package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"comanda/internal/domain/fiscal/nfce"
)

func newPaymentCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "payment-code <label>",
		Short: "Print the tPag code a payment label maps to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := strings.Join(args, " ")
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", nfce.ClassifyPayment(label), label)
			return nil
		},
	}
}
