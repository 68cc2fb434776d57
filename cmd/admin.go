package cmd

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	ethersub "github.com/ethersub/ethersub-go"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator maintenance: catalog management, treasury, cleanup",
	}

	cmd.AddCommand(
		newCreateFeatureCmd(),
		newCreatePlanCmd(),
		newWithdrawCmd(),
		newCleanupCmd(),
		newBalanceCmd(),
	)

	return cmd
}

func newCreateFeatureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-feature <id> <name> <description>",
		Short: "Register a catalog feature (owner only)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := wireApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.connect(cmd); err != nil {
				return err
			}

			op, err := app.client.CreateFeature(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "feature %s created\ntx: %s\n", args[0], op.TxHash().Hex())
			return nil
		},
	}
	return cmd
}

func newCreatePlanCmd() *cobra.Command {
	var monthlyUSD string
	var features []string

	cmd := &cobra.Command{
		Use:   "create-plan <name>",
		Short: "Register a plan referencing existing features (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, ok := new(big.Int).SetString(monthlyUSD, 10)
			if !ok {
				return fmt.Errorf("invalid monthly amount %q: want an integer in 18-decimal USD", monthlyUSD)
			}

			app, err := wireApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.connect(cmd); err != nil {
				return err
			}

			op, err := app.client.CreatePlan(cmd.Context(), args[0], amount, features)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan %s created\ntx: %s\n", args[0], op.TxHash().Hex())
			return nil
		},
	}

	cmd.Flags().StringVar(&monthlyUSD, "monthly-usd", "", "Monthly price in 18-decimal USD units")
	cmd.Flags().StringSliceVar(&features, "feature", nil, "Feature id to include (repeatable)")
	_ = cmd.MarkFlagRequired("monthly-usd")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw",
		Short: "Move the contract balance to the owner (owner only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.connect(cmd); err != nil {
				return err
			}

			op, err := app.client.Withdraw(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "withdrawal confirmed\ntx: %s\n", op.TxHash().Hex())
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired subscriptions from contract storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.connect(cmd); err != nil {
				return err
			}

			op, err := app.client.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleanup confirmed\ntx: %s\n", op.TxHash().Hex())
			return nil
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the contract treasury and key account balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.connect(cmd); err != nil {
				return err
			}

			treasury, err := app.client.TreasuryBalance(cmd.Context())
			if err != nil {
				return err
			}
			account, err := app.client.AccountBalance(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "treasury: %s ETH\n", ethersub.FormatEther(treasury))
			fmt.Fprintf(out, "account %s: %s ETH\n",
				ethersub.FormatAddress(app.signer.Address()), ethersub.FormatEther(account))

			isOwner, err := app.client.IsOwner(cmd.Context())
			if err == nil && isOwner {
				fmt.Fprintln(out, "connected account is the contract owner")
			}
			return nil
		},
	}
}
