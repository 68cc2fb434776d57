package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSubscribeCmd() *cobra.Command {
	var months int64

	cmd := &cobra.Command{
		Use:   "subscribe <plan>",
		Short: "Purchase a plan, paying the freshly read price plus slippage allowance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := wireApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.connect(cmd); err != nil {
				return err
			}

			op, err := app.client.Subscribe(cmd.Context(), args[0], months)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "subscribed to %s for %d month(s)\ntx: %s\n",
				args[0], months, op.TxHash().Hex())
			return nil
		},
	}

	cmd.Flags().Int64Var(&months, "months", 1, "Duration: 1 or 12 months")
	return cmd
}

func newCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <plan>",
		Short: "Cancel an active subscription; the contract pays the prorated refund",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := wireApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.connect(cmd); err != nil {
				return err
			}

			op, err := app.client.CancelSubscription(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\ntx: %s\n", args[0], op.TxHash().Hex())
			return nil
		},
	}

	return cmd
}
